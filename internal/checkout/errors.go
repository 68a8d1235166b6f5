package checkout

import "errors"

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrIllegalTransition  = errors.New("illegal transition of checkout state")
	ErrCheckoutInProgress = errors.New("a checkout session is already being created")
	ErrSessionMismatch    = errors.New("session does not belong to the current checkout")
	ErrPaymentCancelled   = errors.New("payment cancelled")
	ErrOrderNotRecorded   = errors.New("payment confirmed but the order could not be recorded")
)
