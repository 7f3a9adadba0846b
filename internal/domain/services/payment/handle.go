package payment

import (
	"context"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
)

// Handle tracks a submitted action until its transaction confirms or fails.
type Handle struct {
	submitted entities.PaymentAction
	done      chan struct{}
	result    entities.PaymentAction
	err       error
}

func newHandle(action *entities.PaymentAction) *Handle {
	return &Handle{submitted: *action, done: make(chan struct{})}
}

// ResolvedHandle returns a handle whose outcome is already known.
func ResolvedHandle(action entities.PaymentAction, err error) *Handle {
	h := newHandle(&action)
	h.resolve(&action, err)
	return h
}

func (h *Handle) resolve(action *entities.PaymentAction, err error) {
	h.result = *action
	h.err = err
	close(h.done)
}

// Action returns the action as it was when the transaction was broadcast.
func (h *Handle) Action() entities.PaymentAction {
	return h.submitted
}

func (h *Handle) TxHash() string    { return h.submitted.TxHash }
func (h *Handle) PaymentID() string { return h.submitted.PaymentID }

// Done is closed once the outcome is known.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the action is confirmed or failed, or ctx ends. Giving up
// on the wait does not stop confirmation tracking.
func (h *Handle) Wait(ctx context.Context) (*entities.PaymentAction, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		result := h.result
		return &result, h.err
	}
}
