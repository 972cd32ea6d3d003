package codec

import (
	"fmt"
	"sort"
	"sync"

	"vidproc/internal/services"
)

// Factory creates an unconfigured codec.
type Factory func() (Codec, error)

// SurfaceFactory creates an unconfigured surface encoder.
type SurfaceFactory func() (SurfaceEncoder, error)

// Registry maps MIME types to codec factories.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Factory
	encoders map[string]Factory
	surfaces map[string]SurfaceFactory
}

// NewRegistry returns a registry with the in-process PCM passthrough decoder
// already registered.
func NewRegistry() *Registry {
	r := &Registry{
		decoders: map[string]Factory{},
		encoders: map[string]Factory{},
		surfaces: map[string]SurfaceFactory{},
	}
	r.RegisterDecoder(PassthroughMIME, func() (Codec, error) { return NewPassthrough(0), nil })
	return r
}

func (r *Registry) RegisterDecoder(mime string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[mime] = f
}

func (r *Registry) RegisterEncoder(mime string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[mime] = f
}

func (r *Registry) RegisterSurfaceEncoder(mime string, f SurfaceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces[mime] = f
}

// NewDecoder creates a decoder for mime.
func (r *Registry) NewDecoder(mime string) (Codec, error) {
	r.mu.RLock()
	f, ok := r.decoders[mime]
	r.mu.RUnlock()
	if !ok {
		return nil, unsupported("decoder", mime)
	}
	return f()
}

// NewEncoder creates an encoder for mime.
func (r *Registry) NewEncoder(mime string) (Codec, error) {
	r.mu.RLock()
	f, ok := r.encoders[mime]
	r.mu.RUnlock()
	if !ok {
		return nil, unsupported("encoder", mime)
	}
	return f()
}

// NewSurfaceEncoder creates a surface-fed encoder for mime.
func (r *Registry) NewSurfaceEncoder(mime string) (SurfaceEncoder, error) {
	r.mu.RLock()
	f, ok := r.surfaces[mime]
	r.mu.RUnlock()
	if !ok {
		return nil, unsupported("surface encoder", mime)
	}
	return f()
}

// MIMETypes lists registered types per role, sorted, for diagnostics.
func (r *Registry) MIMETypes() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string][]string{
		"decoder":         keys(r.decoders),
		"encoder":         keys(r.encoders),
		"surface_encoder": keys(r.surfaces),
	}
	return out
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unsupported(role, mime string) error {
	return services.Wrap(services.ErrCodecConfiguration, "codec", "create "+role,
		fmt.Sprintf("no %s registered for %q", role, mime), nil)
}
