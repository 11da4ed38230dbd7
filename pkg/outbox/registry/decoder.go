package registry

import (
	"encoding/json"
	"fmt"
	"sync"
)

type decoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	kind    string
	version int
}

// DecoderRegistry stores versioned payload decoders for consumers, keyed by
// message kind (an outbox event type or an inbound order message type).
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// Register stores a decoder for the given kind and version.
func (r *DecoderRegistry) Register(kind string, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{kind: kind, version: version}] = decoder
}

// Decode runs the decoder registered for the kind and version.
func (r *DecoderRegistry) Decode(kind string, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{kind: kind, version: version}]; ok {
		return decoder(payload)
	}
	return nil, NewNonRetryableError(fmt.Errorf("decoder not registered for %s@v%d", kind, version))
}
