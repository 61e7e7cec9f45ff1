package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_DispatchOrder(t *testing.T) {
	r := NewRegistry()
	var calls []string

	r.Subscribe("token-update", func(json.RawMessage) { calls = append(calls, "first") })
	r.Subscribe("token-update", func(json.RawMessage) { calls = append(calls, "second") })

	n := r.Dispatch("token-update", json.RawMessage(`{}`))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRegistry_UnsubscribeLeavesOthers(t *testing.T) {
	r := NewRegistry()
	var list, leaderboard int

	listID := r.Subscribe("token-update", func(json.RawMessage) { list++ })
	r.Subscribe("token-update", func(json.RawMessage) { leaderboard++ })

	r.Unsubscribe("token-update", listID)
	r.Dispatch("token-update", nil)

	assert.Equal(t, 0, list)
	assert.Equal(t, 1, leaderboard)
	assert.Equal(t, 1, r.Count("token-update"))
}

func TestRegistry_UnsubscribeUnknown(t *testing.T) {
	r := NewRegistry()
	id := r.Subscribe("error", func(json.RawMessage) {})

	r.Unsubscribe("error", id+100)
	r.Unsubscribe("missing", id)
	assert.Equal(t, 1, r.Count("error"))

	r.Unsubscribe("error", id)
	assert.Equal(t, 0, r.Count("error"))
	assert.Equal(t, 0, r.Dispatch("error", nil))
}

func TestRegistry_UnsubscribeDuringDispatch(t *testing.T) {
	r := NewRegistry()
	var secondCalls int
	var secondID ListenerID

	r.Subscribe("tick", func(json.RawMessage) { r.Unsubscribe("tick", secondID) })
	secondID = r.Subscribe("tick", func(json.RawMessage) { secondCalls++ })

	// in-flight dispatch keeps its snapshot
	r.Dispatch("tick", nil)
	assert.Equal(t, 1, secondCalls)

	r.Dispatch("tick", nil)
	assert.Equal(t, 1, secondCalls)
}
