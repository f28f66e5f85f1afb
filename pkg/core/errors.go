package core

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/tonkeeper/tongo/ton"
)

var (
	ErrInternalServerError = errors.New("internal server error")
	ErrNotFound            = errors.New("not found")

	ErrEncoding = errors.New("encoding error")

	ErrSeqnoTimeout = errors.New("seqno did not advance before timeout")
	ErrSubmitFailed = errors.New("submit failed")

	ErrWrongListingKind    = errors.New("wrong listing kind")
	ErrUnrecognizedListing = errors.New("unrecognized listing reply")
	ErrAuctionEnded        = errors.New("auction ended")
	ErrBidTooLow           = errors.New("bid too low")
	ErrMethodUnavailable   = errors.New("get method unavailable")

	ErrPoolNotFound                = errors.New("pool not found")
	ErrInvalidDepositConfiguration = errors.New("invalid deposit configuration")
	ErrUnsupportedOperation        = errors.New("unsupported operation")

	ErrMasterRequired = errors.New("jetton master address is required")
)

// ContractExecutionError is a failure reported by the ledger while executing a message.
type ContractExecutionError struct {
	Code   int
	Reason string
	Raw    string
}

func (e *ContractExecutionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("contract execution failed (exit code %d): %s", e.Code, e.Reason)
	}
	return "contract execution failed: " + e.Reason
}

var exitCodeReasons = map[int]string{
	33:  "wallet seqno mismatch, another transfer consumed it",
	34:  "wallet subwallet id mismatch",
	35:  "invalid wallet signature",
	36:  "transfer expired before it was accepted",
	37:  "not enough TON on the wallet balance",
	40:  "not enough TON to pay for the message value",
	705: "sender is not the jetton wallet owner",
	706: "not enough jettons on the wallet balance",
	707: "jetton wallet rejected the sender",
	709: "not enough TON attached to the jetton transfer",
	73:  "only the minter admin can do this",
}

var (
	exitCodeRe  = regexp.MustCompile(`(?i)exit[ _]?code[=: ]+(-?\d+)`)
	reasonHints = []struct {
		hint   string
		reason string
	}{
		{"not enough balance", exitCodeReasons[37]},
		{"insufficient", exitCodeReasons[37]},
		{"cannot apply external message", "wallet rejected the external message"},
		{"external message was not accepted", "wallet rejected the external message"},
	}
)

// ClassifyExecutionError recognises ledger execution-failure signatures.
// It returns nil when err looks like a transport problem.
func ClassifyExecutionError(err error) *ContractExecutionError {
	if err == nil {
		return nil
	}
	var execErr *ContractExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	msg := err.Error()
	if m := exitCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		reason, ok := exitCodeReasons[code]
		if !ok {
			reason = "contract threw an error"
		}
		return &ContractExecutionError{Code: code, Reason: reason, Raw: msg}
	}
	lower := strings.ToLower(msg)
	for _, h := range reasonHints {
		if strings.Contains(lower, h.hint) {
			return &ContractExecutionError{Reason: h.reason, Raw: msg}
		}
	}
	return nil
}

// ExitCodeError builds a ContractExecutionError from a TVM exit code.
func ExitCodeError(code int) *ContractExecutionError {
	reason, ok := exitCodeReasons[code]
	if !ok {
		reason = "contract threw an error"
	}
	return &ContractExecutionError{Code: code, Reason: reason, Raw: fmt.Sprintf("exit code %d", code)}
}

// OperationError is the user visible failure of an operation.
type OperationError struct {
	Op        string
	Addresses map[string]ton.AccountID
	Amounts   map[string]*big.Int
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	for _, k := range sortedKeys(e.Addresses) {
		fmt.Fprintf(&b, " %s=%s", k, e.Addresses[k].ToRaw())
	}
	for _, k := range sortedKeys(e.Amounts) {
		fmt.Fprintf(&b, " %s=%s", k, e.Amounts[k].String())
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether err is worth retrying at the transport level.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		ErrEncoding, ErrWrongListingKind, ErrUnrecognizedListing, ErrAuctionEnded, ErrBidTooLow,
		ErrMethodUnavailable, ErrPoolNotFound, ErrInvalidDepositConfiguration, ErrUnsupportedOperation,
		ErrMasterRequired, ErrSeqnoTimeout,
	} {
		if errors.Is(err, target) {
			return false
		}
	}
	return ClassifyExecutionError(err) == nil
}
