package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox/payloads"
)

type DecoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]DecoderFunc)}
}

// NewIntentDecoderRegistry registers v1 decoders for every intent lifecycle
// event plus member registration.
func NewIntentDecoderRegistry() *DecoderRegistry {
	reg := NewDecoderRegistry()
	decodeIntent := func(payload json.RawMessage) (interface{}, error) {
		var event payloads.IntentEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return &event, nil
	}
	for _, eventType := range []enums.OutboxEventType{
		enums.EventIntentOpened,
		enums.EventIntentAwaitingAck,
		enums.EventIntentPendingSettlement,
		enums.EventIntentCompleted,
		enums.EventIntentFailed,
		enums.EventIntentExpired,
	} {
		reg.Register(eventType, 1, decodeIntent)
	}
	reg.Register(enums.EventMemberRegistered, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.MemberRegisteredEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return &event, nil
	})
	return reg
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}
