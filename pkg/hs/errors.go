package hs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a missing or malformed setting. Returned at construction.
	ErrConfiguration = errors.New("hs: invalid configuration")
	// ErrProtocol is matched by every *ProtocolError.
	ErrProtocol = errors.New("hs: protocol error")
	// ErrArity is returned when a value list does not match the opened columns.
	ErrArity = errors.New("hs: value count does not match opened columns")
	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("hs: client closed")
	// ErrInvalidMode is returned for an unknown Mode.
	ErrInvalidMode = errors.New("hs: invalid mode")
	// ErrHandleMode is returned when a read handle is used for a write.
	ErrHandleMode = errors.New("hs: handle opened for another mode")
)

// Backend error texts with special meaning.
const (
	msgDuplicateKey  = "121"
	msgUnknownHandle = "stmtnum"
)

// TransportCode is the Code of a ProtocolError caused by I/O failure
// rather than by a server reply.
const TransportCode = -1

// ProtocolError carries a backend rejection or a transport failure.
// Message holds the server's own error text when there is one.
type ProtocolError struct {
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Code == TransportCode {
		return fmt.Sprintf("hs: %s: transport: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("hs: %s: code %d: %s", e.Op, e.Code, e.Message)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsDuplicateKey reports a unique key violation on insert.
func (e *ProtocolError) IsDuplicateKey() bool {
	return e.Code != TransportCode && e.Message == msgDuplicateKey
}

// IsUnknownHandle reports that the server no longer knows the index id.
func (e *ProtocolError) IsUnknownHandle() bool {
	return e.Message == msgUnknownHandle
}

// IsTransport reports an I/O failure.
func (e *ProtocolError) IsTransport() bool {
	return e.Code == TransportCode
}

// IsDuplicateKey reports whether err is a duplicate key *ProtocolError.
func IsDuplicateKey(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.IsDuplicateKey()
}

// Reject builds the error a backend returns for a refused request.
func Reject(op string, code int, message string) *ProtocolError {
	return &ProtocolError{Op: op, Code: code, Message: message}
}

func transportError(op string, err error) *ProtocolError {
	return &ProtocolError{Op: op, Code: TransportCode, Message: err.Error(), Err: err}
}
