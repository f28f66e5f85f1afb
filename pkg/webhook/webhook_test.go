package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/txsociety/ton-agent/pkg/core"
)

func TestSendRetriesWithFullBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var op core.OperationPrintable
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&op))
		assert.Equal(t, "mint", op.Kind)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewClient(server.URL + "/webhook")
	require.NoError(t, err)
	c.backoff = time.Millisecond
	require.NoError(t, c.Send(context.Background(), core.OperationPrintable{ID: "1", Kind: "mint"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendGivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	require.NoError(t, err)
	c.backoff = time.Millisecond
	assert.Error(t, c.Send(context.Background(), core.OperationPrintable{ID: "1"}))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)
}
