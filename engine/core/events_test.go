package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_FireStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	calls := []string{}

	first, second := "first", "second"
	assert.True(t, bus.Register(EVENT_CODE_KEY_PRESSED, &first, func(code SystemEventCode, sender interface{}, data EventContext) bool {
		calls = append(calls, first)
		return data.Key == KEY_ESCAPE
	}))
	assert.True(t, bus.Register(EVENT_CODE_KEY_PRESSED, &second, func(code SystemEventCode, sender interface{}, data EventContext) bool {
		calls = append(calls, second)
		return true
	}))

	assert.True(t, bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{Key: KEY_ESCAPE}))
	assert.Equal(t, []string{"first"}, calls)

	assert.True(t, bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{Key: 65}))
	assert.Equal(t, []string{"first", "first", "second"}, calls)
}

func TestEventBus_DuplicateAndUnregister(t *testing.T) {
	bus := NewEventBus()
	listener := struct{ name string }{"l"}
	handler := func(code SystemEventCode, sender interface{}, data EventContext) bool { return true }

	assert.True(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, &listener, handler))
	assert.False(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, &listener, handler))
	assert.True(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, &listener))
	assert.False(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, &listener))
	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
}
