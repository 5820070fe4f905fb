package store

import (
	"errors"
	"fmt"

	"github.com/flashkv/fKV/lib/device"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message. All store operations return *Error (nil on
// success); callers switch on the code instead of parsing messages.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new store error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// CodeOf extracts the return code from an error. Errors that did not
// originate in this package map to RetCDevice; nil maps to RetCSuccess.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCDevice
}

// IsNotFound reports whether err carries the RetCNotFound code.
func IsNotFound(err error) bool {
	return CodeOf(err) == RetCNotFound
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCConfig                              // 1: Invalid path, version mismatch or expiry misconfiguration.
	RetCResourceExhausted                   // 2: Allocation failure, pool limit or iterator slots exhausted.
	RetCNotFound                            // 3: Key or pool absent.
	RetCValidation                          // 4: Key, value or tag violates a device bound.
	RetCDevice                              // 5: The device reported an I/O failure.
	RetCPartialBatch                        // 6: A batch failed as a whole; partial application is possible.
	RetCClosed                              // 7: Operation on a closed store.
	RetCUnsupportedOperation                // 8: Operation is not supported by the underlying device.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "RetCSuccess"
	case RetCConfig:
		return "RetCConfig"
	case RetCResourceExhausted:
		return "RetCResourceExhausted"
	case RetCNotFound:
		return "RetCNotFound"
	case RetCValidation:
		return "RetCValidation"
	case RetCDevice:
		return "RetCDevice"
	case RetCPartialBatch:
		return "RetCPartialBatch"
	case RetCClosed:
		return "RetCClosed"
	case RetCUnsupportedOperation:
		return "RetCUnsupportedOperation"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Device Error Mapping
// --------------------------------------------------------------------------

// fromDevice maps a device sentinel error onto a store error. The device
// message is preserved so the byte-level cause stays visible to callers.
func fromDevice(err error) *Error {
	if err == nil {
		return nil
	}

	var code RetCode
	switch {
	case errors.Is(err, device.ErrNotFound), errors.Is(err, device.ErrPoolNotFound):
		code = RetCNotFound
	case errors.Is(err, device.ErrClosed):
		code = RetCClosed
	case errors.Is(err, device.ErrVersionMismatch), errors.Is(err, device.ErrExpiryConfig):
		code = RetCConfig
	case errors.Is(err, device.ErrPoolLimit), errors.Is(err, device.ErrIteratorLimit):
		code = RetCResourceExhausted
	case errors.Is(err, device.ErrTagTooLong),
		errors.Is(err, device.ErrBufferTooSmall),
		errors.Is(err, device.ErrProtectedPool),
		errors.Is(err, device.ErrIteratorInvalid):
		code = RetCValidation
	case errors.Is(err, device.ErrBatchFailed):
		code = RetCPartialBatch
	default:
		code = RetCDevice
	}
	return NewError(code, err.Error())
}
