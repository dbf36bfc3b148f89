package models

import (
	"errors"
	"fmt"
)

var (
	ErrDataNotFound       = errors.New("data not found")
	ErrDisk               = errors.New("cannot write scratch file")
	ErrAssetLoad          = errors.New("cannot load asset image data")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrParsing            = errors.New("malformed request or response")
	ErrArtifactGeneration = errors.New("artifact generation failed")
	ErrPayment            = errors.New("payment rejected")
	ErrPollingExhausted   = errors.New("order status polling budget exhausted")
	ErrCancelled          = errors.New("order processing cancelled")
)

// TransportError is a connection or server failure during upload, submission
// or polling. The processing order survives it so the caller can retry.
type TransportError struct {
	Code    int
	Message string
}

func (e TransportError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("connection error: %s", e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// NewTransportError creates new TransportError instance
func NewTransportError(code int, message string) TransportError {
	return TransportError{Code: code, Message: message}
}

// Retryable reports whether the processing order should be kept after err
// so that the caller may retry.
func Retryable(err error) bool {
	var te TransportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrDisk)
}
