package codec

import (
	"errors"
	"fmt"
)

// Error kind sentinels. Decoders surface every failure as a *Error whose
// Kind matches exactly one of these, so callers can classify failures with
// errors.Is without caring which format produced them.
var (
	// ErrTruncated reports that the source ended before a required read
	// completed.
	ErrTruncated = errors.New("truncated input")

	// ErrCorruptStream reports invalid compressed or filtered data: a bad
	// Huffman table, an illegal back-reference, an invalid filter selector,
	// a checksum mismatch.
	ErrCorruptStream = errors.New("corrupt stream")

	// ErrMalformedContainer reports structural violations: chunk ordering,
	// missing mandatory chunks, unknown critical chunks, frame bounds
	// outside the canvas, non-contiguous sequence numbers.
	ErrMalformedContainer = errors.New("malformed container")

	// ErrUnsupportedFeature reports a structurally valid but unimplemented
	// variant, e.g. a color mode or compression method the decoder does not
	// support.
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrFormatNotFound is returned when a format is not in the registry or
	// no registered format recognizes the input.
	ErrFormatNotFound = errors.New("format not found")
)

// Kind classifies a decode error.
type Kind int

const (
	// KindTruncated corresponds to ErrTruncated.
	KindTruncated Kind = iota + 1
	// KindCorruptStream corresponds to ErrCorruptStream.
	KindCorruptStream
	// KindMalformedContainer corresponds to ErrMalformedContainer.
	KindMalformedContainer
	// KindUnsupportedFeature corresponds to ErrUnsupportedFeature.
	KindUnsupportedFeature
)

func (k Kind) sentinel() error {
	switch k {
	case KindTruncated:
		return ErrTruncated
	case KindCorruptStream:
		return ErrCorruptStream
	case KindMalformedContainer:
		return ErrMalformedContainer
	case KindUnsupportedFeature:
		return ErrUnsupportedFeature
	default:
		return nil
	}
}

// Error is the typed decode error carrying the failure kind and the byte
// offset at which detection occurred.
type Error struct {
	Kind   Kind
	Offset int64
	Msg    string
	Err    error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := e.Kind.sentinel().Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s (offset %d)", s, e.Offset)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels, so errors.Is(err, ErrCorruptStream) works
// on wrapped *Error values.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Truncatedf builds a KindTruncated error at the given offset.
func Truncatedf(offset int64, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTruncated, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Corruptf builds a KindCorruptStream error at the given offset.
func Corruptf(offset int64, format string, args ...interface{}) *Error {
	return &Error{Kind: KindCorruptStream, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Malformedf builds a KindMalformedContainer error at the given offset.
func Malformedf(offset int64, format string, args ...interface{}) *Error {
	return &Error{Kind: KindMalformedContainer, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Unsupportedf builds a KindUnsupportedFeature error at the given offset.
func Unsupportedf(offset int64, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnsupportedFeature, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// WrapTruncated wraps a lower-level read error as KindTruncated at the given
// offset, preserving the cause for errors.Is/As.
func WrapTruncated(offset int64, err error) *Error {
	return &Error{Kind: KindTruncated, Offset: offset, Err: err}
}
