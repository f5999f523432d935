package codec

import (
	"sync"

	"github.com/cocosip/go-image-codec/bytestream"
)

// SniffLen is the number of leading bytes a Format's Detect function may be
// handed. Every registered magic fits well inside it.
const SniffLen = 16

// Format describes one registered codec: how to recognize its byte stream
// and how to construct its decoder and (optionally) encoder.
type Format struct {
	// Name is the registry key, lowercase ("png", "hdr", ...).
	Name string

	// Extensions lists conventional file extensions including the dot.
	Extensions []string

	// Detect reports whether the leading bytes of an input (at most
	// SniffLen, possibly fewer for tiny inputs) look like this format.
	Detect func(peek []byte) bool

	// NewDecoder constructs a decoder over the source. A nil opts means
	// DefaultDecoderOptions.
	NewDecoder func(src bytestream.Source, opts *DecoderOptions) (Decoder, error)

	// NewEncoder constructs an encoder, or is nil for decode-only formats.
	NewEncoder func(opts *EncoderOptions) (Encoder, error)
}

// Registry manages the available formats.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Format
	ordered []*Format
}

// NewRegistry returns an empty registry independent of the default one.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Format)}
}

var defaultRegistry = NewRegistry()

// Register adds a format to the default registry. Format packages call this
// from init.
func Register(f *Format) {
	defaultRegistry.Register(f)
}

// Get retrieves a format by name from the default registry.
func Get(name string) (*Format, error) {
	return defaultRegistry.Get(name)
}

// List returns all registered formats in registration order.
func List() []*Format {
	return defaultRegistry.List()
}

// Detect returns the first registered format whose Detect function accepts
// the given leading bytes.
func Detect(peek []byte) (*Format, error) {
	return defaultRegistry.Detect(peek)
}

// Register adds a format, replacing any previous registration of the same
// name.
func (r *Registry) Register(f *Format) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byName[f.Name]; ok {
		for i, g := range r.ordered {
			if g == prev {
				r.ordered[i] = f
				break
			}
		}
	} else {
		r.ordered = append(r.ordered, f)
	}
	r.byName[f.Name] = f
}

// Get retrieves a format by name.
func (r *Registry) Get(name string) (*Format, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byName[name]
	if !ok {
		return nil, ErrFormatNotFound
	}
	return f, nil
}

// List returns all registered formats in registration order.
func (r *Registry) List() []*Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Format, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Detect returns the first registered format recognizing the leading bytes.
func (r *Registry) Detect(peek []byte) (*Format, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.ordered {
		if f.Detect != nil && f.Detect(peek) {
			return f, nil
		}
	}
	return nil, ErrFormatNotFound
}

// Decode sniffs the format of data and runs its decoder with the given
// options (nil for defaults).
func Decode(data []byte, opts *DecoderOptions) (*Image, error) {
	f, err := sniff(data)
	if err != nil {
		return nil, err
	}
	d, err := f.NewDecoder(bytestream.NewBytesSource(data), opts)
	if err != nil {
		return nil, err
	}
	return d.Decode()
}

// ReadHeader sniffs the format of data and parses only its image header.
func ReadHeader(data []byte) (*ImageHeader, error) {
	f, err := sniff(data)
	if err != nil {
		return nil, err
	}
	d, err := f.NewDecoder(bytestream.NewBytesSource(data), nil)
	if err != nil {
		return nil, err
	}
	return d.ReadHeader()
}

func sniff(data []byte) (*Format, error) {
	n := len(data)
	if n > SniffLen {
		n = SniffLen
	}
	return Detect(data[:n])
}
