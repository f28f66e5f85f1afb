package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/txsociety/ton-agent/pkg/core"
)

type Client struct {
	client *http.Client
	url    string
	// backoff is the pause unit between attempts.
	backoff time.Duration
}

func NewClient(webhookURL string) (*Client, error) {
	_, err := url.ParseRequestURI(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %s", webhookURL)
	}
	return &Client{
		client:  &http.Client{Timeout: 10 * time.Second},
		url:     webhookURL,
		backoff: time.Second,
	}, nil
}

func (s *Client) Send(ctx context.Context, op core.OperationPrintable) error {
	jsonData, err := json.Marshal(op)
	if err != nil {
		return err
	}
	for i := 1; i < 4; i++ {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(jsonData))
		if err != nil {
			return err
		}
		request.Header.Set("Content-Type", "application/json; charset=UTF-8")
		err = doRequest(s.client, request)
		if err != nil {
			slog.Info("webhook sending", "operation", op.ID, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff * time.Duration(i)):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("attempts to send a webhook ended")
}

func doRequest(client *http.Client, request *http.Request) error {
	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook sending error: %v", err)
	}
	defer func() {
		err := response.Body.Close()
		if err != nil {
			slog.Error("response body close", "error", err)
		}
	}()
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook response status: %v", response.Status)
}
