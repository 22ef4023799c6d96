package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(id string, buffer int) *Client {
	return newClient(id, nil, buffer)
}

// drain returns every message currently queued for c.
func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case m := <-c.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func eventNames(msgs []WSMessage) []string {
	names := make([]string, len(msgs))
	for i, m := range msgs {
		names[i] = m.Event
	}
	return names
}

func decodeData[T any](t *testing.T, m WSMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(m.Data, &v))
	return v
}

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

type mirrored struct {
	code, event string
	payload     []byte
}

type fakeMirror struct {
	mu   sync.Mutex
	seen []mirrored
}

func (f *fakeMirror) Mirror(code, event string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, mirrored{code: code, event: event, payload: payload})
}

func zapNop() *zap.Logger { return zap.NewNop() }
