// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transaction failure
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPortUnavailable
	KindTimeout
	KindLoopbackFault
	KindChecksumMismatch
	KindMalformedFrame
	KindDeviceBusy
	KindDeviceRejectedCommand
	KindDeviceChecksumRejected
	KindDeviceCannotExecute
	KindDeviceInLocalMode
	KindUnknownResponse
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                "unknown",
	KindPortUnavailable:        "port_unavailable",
	KindTimeout:                "timeout",
	KindLoopbackFault:          "loopback_fault",
	KindChecksumMismatch:       "checksum_mismatch",
	KindMalformedFrame:         "malformed_frame",
	KindDeviceBusy:             "device_busy",
	KindDeviceRejectedCommand:  "device_rejected_command",
	KindDeviceChecksumRejected: "device_checksum_rejected",
	KindDeviceCannotExecute:    "device_cannot_execute",
	KindDeviceInLocalMode:      "device_in_local_mode",
	KindUnknownResponse:        "unknown_response",
}

// String returns the snake_case name used in logs and metrics labels
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseErrorKind is the inverse of ErrorKind.String
func ParseErrorKind(s string) (ErrorKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// Retryable reports whether the runner may resend the same frame after
// a failure of this kind. Port, loopback and decode faults never heal on
// their own and are surfaced immediately.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout,
		KindChecksumMismatch,
		KindMalformedFrame,
		KindDeviceBusy,
		KindDeviceRejectedCommand,
		KindDeviceChecksumRejected,
		KindDeviceCannotExecute,
		KindDeviceInLocalMode:
		return true
	}
	return false
}

// Error is a classified transaction failure
type Error struct {
	Kind     ErrorKind
	Message  string
	Attempts int
	Details  map[string]interface{}
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* sentinels work
// with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrPortUnavailable        = &Error{Kind: KindPortUnavailable}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrLoopbackFault          = &Error{Kind: KindLoopbackFault}
	ErrChecksumMismatch       = &Error{Kind: KindChecksumMismatch}
	ErrMalformedFrame         = &Error{Kind: KindMalformedFrame}
	ErrDeviceBusy             = &Error{Kind: KindDeviceBusy}
	ErrDeviceRejectedCommand  = &Error{Kind: KindDeviceRejectedCommand}
	ErrDeviceChecksumRejected = &Error{Kind: KindDeviceChecksumRejected}
	ErrDeviceCannotExecute    = &Error{Kind: KindDeviceCannotExecute}
	ErrDeviceInLocalMode      = &Error{Kind: KindDeviceInLocalMode}
	ErrUnknownResponse        = &Error{Kind: KindUnknownResponse}
)

// Errorf builds an *Error of the given kind
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error of the given kind around a cause
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of a classified error, or KindUnknown
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
