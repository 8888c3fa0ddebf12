package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// register adds a connectionless client for testing fan-out.
func register(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan Message, sendBuffer)}
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("register timed out")
	}
	return c
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	require.Eventually(t, func() bool { return h.Stats().Running }, time.Second, time.Millisecond)
	return h, cancel
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h, _ := startHub(t)
	a := register(t, h)
	b := register(t, h)
	assert.Equal(t, 2, h.ClientCount())

	require.NoError(t, h.BroadcastJSON(map[string]bool{"started": true}))

	for _, c := range []*Client{a, b} {
		m := recv(t, c)
		assert.Equal(t, JSONMessage, m.Type)
		assert.JSONEq(t, `{"started":true}`, string(m.Data))
	}
}

func TestSlowClientSkipsFrames(t *testing.T) {
	h, _ := startHub(t)
	slow := register(t, h)

	for i := 0; i < sendBuffer+3; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}

	require.Eventually(t, func() bool {
		return h.Stats().SkippedFrames == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.ClientCount(), "frame backlog must not drop the client")

	m := recv(t, slow)
	assert.Equal(t, BinaryMessage, m.Type)
	assert.Equal(t, []byte{0}, m.Data)
}

func TestSlowClientDroppedOnJSON(t *testing.T) {
	h, _ := startHub(t)
	slow := register(t, h)

	for i := 0; i < sendBuffer+1; i++ {
		require.NoError(t, h.BroadcastJSON(i))
	}

	require.Eventually(t, func() bool {
		return h.ClientCount() == 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), h.Stats().DroppedClients)

	// Buffered messages drain, then the channel is closed
	for i := 0; i < sendBuffer; i++ {
		<-slow.send
	}
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestRunClosesClientsOnCancel(t *testing.T) {
	h := New("cancel", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := register(t, h)
	cancel()
	<-h.done

	_, ok := <-c.send
	assert.False(t, ok)
	assert.False(t, h.Stats().Running)
	assert.Equal(t, 0, h.ClientCount())

	_, err := NewClient(h, nil)
	assert.ErrorIs(t, err, ErrHubStopped)
}
