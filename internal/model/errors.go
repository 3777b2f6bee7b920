// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies printer failures so callers can react without string matching
type ErrorKind string

const (
	KindBluetoothUnsupported     ErrorKind = "BLUETOOTH_UNSUPPORTED"
	KindNoDeviceSelected         ErrorKind = "NO_DEVICE_SELECTED"
	KindServiceNotFound          ErrorKind = "SERVICE_NOT_FOUND"
	KindNoWritableCharacteristic ErrorKind = "NO_WRITABLE_CHARACTERISTIC"
	KindSecurityError            ErrorKind = "SECURITY_ERROR"
	KindConnectionTimeout        ErrorKind = "CONNECTION_TIMEOUT"
	KindWriteFailure             ErrorKind = "WRITE_FAILURE"
	KindNotConnected             ErrorKind = "NOT_CONNECTED"
	KindReconnectExhausted       ErrorKind = "RECONNECT_EXHAUSTED"
	KindPrinterBusy              ErrorKind = "PRINTER_BUSY"
	KindProbeSkipped             ErrorKind = "PROBE_SKIPPED"
)

var kindHints = map[ErrorKind]string{
	KindBluetoothUnsupported:     "no usable Bluetooth adapter on this host",
	KindNoDeviceSelected:         "no printer was chosen",
	KindServiceNotFound:          "printer exposes none of the candidate services",
	KindNoWritableCharacteristic: "no writable characteristic on the candidate services",
	KindSecurityError:            "Bluetooth access was refused, check pairing and permissions",
	KindConnectionTimeout:        "printer did not answer, check power and range",
	KindWriteFailure:             "printer rejected a write, the job was aborted",
	KindNotConnected:             "printer is not connected",
	KindReconnectExhausted:       "printer could not be reached again, connect manually",
	KindPrinterBusy:              "printer is busy, try again",
	KindProbeSkipped:             "keep-alive probe skipped while printing",
}

// Sentinels for errors.Is. PrinterError.Is matches on Kind only.
var (
	ErrBluetoothUnsupported     = &PrinterError{Kind: KindBluetoothUnsupported}
	ErrNoDeviceSelected         = &PrinterError{Kind: KindNoDeviceSelected}
	ErrServiceNotFound          = &PrinterError{Kind: KindServiceNotFound}
	ErrNoWritableCharacteristic = &PrinterError{Kind: KindNoWritableCharacteristic}
	ErrSecurityError            = &PrinterError{Kind: KindSecurityError}
	ErrConnectionTimeout        = &PrinterError{Kind: KindConnectionTimeout}
	ErrWriteFailure             = &PrinterError{Kind: KindWriteFailure}
	ErrNotConnected             = &PrinterError{Kind: KindNotConnected}
	ErrReconnectExhausted       = &PrinterError{Kind: KindReconnectExhausted}
	ErrPrinterBusy              = &PrinterError{Kind: KindPrinterBusy}
	ErrProbeSkipped             = &PrinterError{Kind: KindProbeSkipped}
)

// PrinterError carries a kind, an operator hint and the underlying cause
type PrinterError struct {
	Kind ErrorKind
	Hint string
	Err  error
}

// NewError creates a PrinterError with the default hint for kind
func NewError(kind ErrorKind, err error) *PrinterError {
	return &PrinterError{Kind: kind, Hint: kindHints[kind], Err: err}
}

// Errorf creates a PrinterError wrapping a formatted cause
func Errorf(kind ErrorKind, format string, args ...interface{}) *PrinterError {
	return NewError(kind, fmt.Errorf(format, args...))
}

func (e *PrinterError) Error() string {
	hint := e.Hint
	if hint == "" {
		hint = kindHints[e.Kind]
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, hint, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, hint)
}

func (e *PrinterError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PrinterError of the same kind
func (e *PrinterError) Is(target error) bool {
	t, ok := target.(*PrinterError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the ErrorKind from err, or "" when err carries none
func KindOf(err error) ErrorKind {
	var pe *PrinterError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// HintOf returns the operator hint for err
func HintOf(err error) string {
	var pe *PrinterError
	if errors.As(err, &pe) {
		if pe.Hint != "" {
			return pe.Hint
		}
		return kindHints[pe.Kind]
	}
	return ""
}

// NewErrorInfo snapshots err for status reporting
func NewErrorInfo(err error, at time.Time) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{
		Kind:      KindOf(err),
		Message:   err.Error(),
		ErrorTime: at,
	}
}
