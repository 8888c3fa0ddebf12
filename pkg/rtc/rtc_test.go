package rtc

import (
	"bytes"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitReassemble(t *testing.T) {
	data := bytes.Repeat([]byte("jpeg"), maxChunkPayload) // four chunks
	chunks, err := Split(7, data)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	var r Reassembler
	// Out of order delivery still completes
	for _, i := range []int{2, 0, 3} {
		_, done, err := r.Add(chunks[i])
		require.NoError(t, err)
		assert.False(t, done)
	}
	frame, done, err := r.Add(chunks[1])
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, data, frame)
}

func TestSplitEmptyFrame(t *testing.T) {
	chunks, err := Split(1, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	var r Reassembler
	frame, done, err := r.Add(chunks[0])
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, frame)
}

func TestNewerFrameDiscardsPartial(t *testing.T) {
	old, _ := Split(1, make([]byte, maxChunkPayload+1))
	fresh, _ := Split(2, []byte{1, 2, 3})

	var r Reassembler
	_, done, _ := r.Add(old[0])
	assert.False(t, done)

	frame, done, err := r.Add(fresh[0])
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, []byte{1, 2, 3}, frame)

	// The rest of the stale frame starts over and never completes alone
	_, done, _ = r.Add(old[1])
	assert.False(t, done)
}

func TestReassemblerRejectsBadChunks(t *testing.T) {
	var r Reassembler
	_, _, err := r.Add([]byte{1, 2})
	assert.Error(t, err)

	_, _, err = r.Add([]byte{0, 0, 0, 1, 0, 5, 0, 2})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Validate())

	cfg.MaxPeers = 0
	cfg.MaxBuffered = 10
	assert.Len(t, cfg.Validate(), 2)
}

func TestSendWithoutPeers(t *testing.T) {
	ch := NewChannel("color", DefaultConfig(), nil)
	assert.False(t, ch.Active())
	require.NoError(t, ch.Send([]byte{0xff, 0xd8}))
	assert.Zero(t, ch.Stats().Frames)
}

// dialViewer connects an in-process viewer and returns the received frames.
func dialViewer(t *testing.T, ch *Channel, label string) <-chan []byte {
	t.Helper()

	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	dc, err := pc.CreateDataChannel(label, nil)
	require.NoError(t, err)

	frames := make(chan []byte, 16)
	var r Reassembler
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if frame, done, err := r.Add(msg.Data); err == nil && done {
			frames <- frame
		}
	})

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	<-gathered

	answer, id, err := ch.Answer(*pc.LocalDescription())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pc.SetRemoteDescription(answer))
	return frames
}

func TestViewerReceivesFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Loopback = true
	ch := NewChannel("color", cfg, nil)
	t.Cleanup(ch.Close)

	frames := dialViewer(t, ch, "color")
	require.Eventually(t, ch.Active, 10*time.Second, 10*time.Millisecond)

	want := bytes.Repeat([]byte{0xab}, 3*maxChunkPayload/2)
	require.NoError(t, ch.Send(want))

	select {
	case got := <-frames:
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("viewer received no frame")
	}
	assert.Equal(t, 1, ch.Stats().Peers)
}

func TestTooManyPeers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Loopback = true
	cfg.MaxPeers = 1
	ch := NewChannel("depth", cfg, nil)
	t.Cleanup(ch.Close)

	dialViewer(t, ch, "depth")
	_, _, err := ch.Answer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer})
	assert.ErrorIs(t, err, ErrTooManyPeers)
}
