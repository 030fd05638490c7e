package protocol

import (
	"errors"
	"fmt"
)

// Codec error classes. Test with errors.Is.
var (
	ErrCannotRead    = errors.New("cannot read")
	ErrInvalidString = errors.New("invalid string")
	ErrCannotWrite   = errors.New("cannot write")
)

// FieldError reports which field failed to decode or encode, together with
// its declared wire type.
type FieldError struct {
	Kind  error
	Field string
	Type  string
	Err   error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%v field %q (%s)", e.Kind, e.Field, e.Type)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error class so callers can use errors.Is(err, ErrCannotRead).
func (e *FieldError) Is(target error) bool {
	return target == e.Kind
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func readError(field, typ string, cause error) error {
	return &FieldError{Kind: ErrCannotRead, Field: field, Type: typ, Err: cause}
}

func stringError(field string, cause error) error {
	return &FieldError{Kind: ErrInvalidString, Field: field, Type: "TerminatedString", Err: cause}
}

func writeError(field, typ string, cause error) error {
	return &FieldError{Kind: ErrCannotWrite, Field: field, Type: typ, Err: cause}
}

var (
	errShortBuffer    = errors.New("short buffer")
	errNoTerminator   = errors.New("missing 0x00 terminator")
	errNotUTF8        = errors.New("not valid utf-8")
	errEmbeddedNull   = errors.New("embedded 0x00")
	errFieldTooLong   = errors.New("value exceeds field width")
	errSizeMismatch   = errors.New("declared size does not match payload")
	errHeaderTooShort = errors.New("header too short")
)
