package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(config.NewStaticMessagingConfigHolder(config.DefaultMessagingConfig()), zap.NewNop())
}

func collect(t *testing.T, sub *Subscription, n int) []Envelope {
	t.Helper()
	out := make([]Envelope, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case env := <-sub.Events():
			out = append(out, env)
		case <-deadline:
			t.Fatalf("received %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishPreservesOrder(t *testing.T) {
	hub := newTestHub(t)
	scope := TenantScope(snowflake.ID(42))

	sub, backlog, err := hub.Subscribe(scope)
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)

	for i := 0; i < 10; i++ {
		env, err := NewEnvelope(EventMessageSent, map[string]int{"seq": i})
		require.NoError(t, err)
		hub.Publish(scope, env)
	}

	events := collect(t, sub, 10)
	for i, env := range events {
		assert.Equal(t, EventMessageSent, env.Type)
		var payload struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, i, payload.Seq)
	}
}

func TestSubscribeReplaysBacklog(t *testing.T) {
	hub := newTestHub(t)
	scope := WorkflowScope(snowflake.ID(7))

	// Keep the actor alive while the late joiner is away.
	holder, _, err := hub.Subscribe(scope)
	require.NoError(t, err)
	defer holder.Close()

	env, err := NewEnvelope(EventLinkAdded, map[string]string{"url": "https://press.test/w/7"})
	require.NoError(t, err)
	hub.Publish(scope, env)
	collect(t, holder, 1)

	sub, backlog, err := hub.Subscribe(scope)
	require.NoError(t, err)
	defer sub.Close()

	require.Len(t, backlog, 1)
	assert.Equal(t, EventLinkAdded, backlog[0].Type)
}

func TestScopesAreIsolated(t *testing.T) {
	hub := newTestHub(t)

	subA, _, err := hub.Subscribe(TenantScope(snowflake.ID(1)))
	require.NoError(t, err)
	defer subA.Close()
	subB, _, err := hub.Subscribe(TenantScope(snowflake.ID(2)))
	require.NoError(t, err)
	defer subB.Close()

	env, err := NewEnvelope(EventMessageSent, map[string]string{"to": "tenant-1"})
	require.NoError(t, err)
	hub.Publish(TenantScope(snowflake.ID(1)), env)

	collect(t, subA, 1)
	select {
	case leaked := <-subB.Events():
		t.Fatalf("event leaked across scopes: %s", leaked.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLastCloseTearsDownScope(t *testing.T) {
	hub := newTestHub(t)
	scope := TenantScope(snowflake.ID(9))

	sub, _, err := hub.Subscribe(scope)
	require.NoError(t, err)
	sub.Close()
	sub.Close() // double close is a no-op

	hub.mu.RLock()
	_, alive := hub.actors[scope]
	hub.mu.RUnlock()
	assert.False(t, alive)
}

func TestPublishWithoutListenersSpawnsNoActor(t *testing.T) {
	hub := newTestHub(t)
	scope := TenantScope(snowflake.ID(3))

	env, err := NewEnvelope(EventMessageSent, map[string]string{"to": "nobody"})
	require.NoError(t, err)
	hub.Publish(scope, env)

	hub.mu.RLock()
	_, alive := hub.actors[scope]
	hub.mu.RUnlock()
	assert.False(t, alive)

	// A later subscriber starts clean: no goroutine was retained and
	// nothing from the listener-less era is replayed.
	sub, backlog, err := hub.Subscribe(scope)
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)
}

func TestInvalidScopeRejected(t *testing.T) {
	hub := newTestHub(t)
	_, _, err := hub.Subscribe("  ")
	assert.ErrorIs(t, err, ErrInvalidScope)
}
