package core

import (
	"context"
	"fmt"

	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

// exitRecorder remembers what the executor answered so failures keep their type
// after the generated abi getters flatten them.
type exitRecorder struct {
	abi.Executor
	code   uint32
	called bool
	err    error
}

func (r *exitRecorder) RunSmcMethodByID(ctx context.Context, account ton.AccountID, methodID int, params tlb.VmStack) (uint32, tlb.VmStack, error) {
	code, stack, err := r.Executor.RunSmcMethodByID(ctx, account, methodID, params)
	r.called, r.code, r.err = true, code, err
	return code, stack, err
}

// Query runs a generated abi getter and returns its decoded result as T.
// A non-zero exit code becomes a ContractExecutionError and an undecodable
// reply wraps ErrEncoding.
func Query[T any](ctx context.Context, exec abi.Executor, getter func(context.Context, abi.Executor) (string, any, error)) (T, error) {
	var zero T
	rec := &exitRecorder{Executor: exec}
	_, res, err := getter(ctx, rec)
	switch {
	case rec.err != nil:
		return zero, rec.err
	case rec.called && rec.code != 0 && rec.code != 1:
		return zero, ExitCodeError(int(rec.code))
	case err != nil:
		return zero, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected get-method result %T", ErrEncoding, res)
	}
	return v, nil
}
