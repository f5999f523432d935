package inflate

import "errors"

// Cause sentinels. Every failure surfaces as a *codec.Error of kind
// CorruptStream (or UnsupportedFeature for the preset-dictionary case)
// wrapping one of these, so callers can test the precise cause with
// errors.Is when they care.
var (
	// ErrBlockType reports the reserved deflate block type 3.
	ErrBlockType = errors.New("inflate: invalid block type")

	// ErrStoredLength reports a stored block whose LEN and NLEN fields are
	// not one's complements.
	ErrStoredLength = errors.New("inflate: stored block length check failed")

	// ErrTooManyCodes reports a dynamic block declaring more than 286
	// literal/length or 30 distance codes.
	ErrTooManyCodes = errors.New("inflate: too many length or distance codes")

	// ErrCodeLengths reports a code-length assignment that is
	// over-subscribed or incomplete (beyond the degenerate one-code case).
	ErrCodeLengths = errors.New("inflate: invalid code lengths")

	// ErrLengthRepeat reports a code-length repeat op with no previous
	// length or running past the declared code count.
	ErrLengthRepeat = errors.New("inflate: invalid code length repeat")

	// ErrMissingEOB reports a dynamic block whose literal/length code
	// assigns no code to the end-of-block symbol.
	ErrMissingEOB = errors.New("inflate: missing end-of-block code")

	// ErrBadSymbol reports bits that resolve to no symbol, or to a symbol
	// reserved by the format (literal/length 286..287, distance 30..31).
	ErrBadSymbol = errors.New("inflate: invalid symbol")

	// ErrDistanceTooFar reports a back-reference reaching before the start
	// of the output produced so far.
	ErrDistanceTooFar = errors.New("inflate: distance too far back")

	// ErrOutputLimit reports decompressed output exceeding the configured
	// limit.
	ErrOutputLimit = errors.New("inflate: output limit exceeded")

	// ErrZlibHeader reports a zlib header with a bad check value, an
	// unknown compression method, or an oversized window.
	ErrZlibHeader = errors.New("inflate: invalid zlib header")

	// ErrDictionary reports a zlib header demanding a preset dictionary.
	ErrDictionary = errors.New("inflate: preset dictionary not supported")

	// ErrChecksum reports an Adler-32 trailer mismatch.
	ErrChecksum = errors.New("inflate: checksum mismatch")
)
