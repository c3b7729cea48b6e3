package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrBadRequest        = errors.New("bad request")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownStrategy   = errors.New("unknown progress strategy")
	ErrUnknownRewardable = errors.New("unknown rewardable type")
)

// RequestError is an error the caller can act on. Msg is safe to show to users.
type RequestError struct {
	Kind error
	Msg  string
}

func (e *RequestError) Error() string {
	return e.Msg
}

func (e *RequestError) Unwrap() error {
	return e.Kind
}

func NotFoundError(format string, args ...any) error {
	return &RequestError{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func ForbiddenError(format string, args ...any) error {
	return &RequestError{Kind: ErrForbidden, Msg: fmt.Sprintf(format, args...)}
}

func BadRequestError(format string, args ...any) error {
	return &RequestError{Kind: ErrBadRequest, Msg: fmt.Sprintf(format, args...)}
}

func InsufficientFundsError(balance, amount int64) error {
	return &RequestError{
		Kind: ErrInsufficientFunds,
		Msg:  fmt.Sprintf("insufficient funds: balance %d, requested %d", balance, amount),
	}
}

// UserMessage returns the message of a RequestError anywhere in the chain.
func UserMessage(err error) (string, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Msg, true
	}
	return "", false
}
