package rtc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frames larger than one data channel message are split into chunks. Each
// chunk starts with an 8-byte big-endian header: frame sequence (uint32),
// chunk index (uint16) and chunk count (uint16).
const (
	chunkHeaderSize = 8
	maxChunkSize    = 16 * 1024
	maxChunkPayload = maxChunkSize - chunkHeaderSize
)

// ErrFrameTooLarge is returned for frames needing more than 65535 chunks.
var ErrFrameTooLarge = errors.New("rtc: frame too large")

// Split cuts data into chunks tagged with seq.
func Split(seq uint32, data []byte) ([][]byte, error) {
	count := (len(data) + maxChunkPayload - 1) / maxChunkPayload
	if count == 0 {
		count = 1
	}
	if count > 0xffff {
		return nil, ErrFrameTooLarge
	}

	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * maxChunkPayload
		end := min(start+maxChunkPayload, len(data))

		c := make([]byte, chunkHeaderSize+end-start)
		binary.BigEndian.PutUint32(c[0:4], seq)
		binary.BigEndian.PutUint16(c[4:6], uint16(i))
		binary.BigEndian.PutUint16(c[6:8], uint16(count))
		copy(c[chunkHeaderSize:], data[start:end])
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Reassembler rebuilds frames from chunks. A chunk of a newer frame
// discards any incomplete older one.
type Reassembler struct {
	seq    uint32
	count  int
	parts  [][]byte
	filled int
}

// Add consumes one chunk and returns the frame once it is complete.
func (r *Reassembler) Add(chunk []byte) ([]byte, bool, error) {
	if len(chunk) < chunkHeaderSize {
		return nil, false, fmt.Errorf("rtc: short chunk (%d bytes)", len(chunk))
	}
	seq := binary.BigEndian.Uint32(chunk[0:4])
	idx := int(binary.BigEndian.Uint16(chunk[4:6]))
	count := int(binary.BigEndian.Uint16(chunk[6:8]))
	if count == 0 || idx >= count {
		return nil, false, fmt.Errorf("rtc: bad chunk %d/%d", idx, count)
	}

	if r.parts == nil || seq != r.seq || count != r.count {
		r.seq, r.count, r.filled = seq, count, 0
		r.parts = make([][]byte, count)
	}
	if r.parts[idx] == nil {
		r.parts[idx] = chunk[chunkHeaderSize:]
		r.filled++
	}
	if r.filled < r.count {
		return nil, false, nil
	}

	var frame []byte
	for _, p := range r.parts {
		frame = append(frame, p...)
	}
	r.parts = nil
	return frame, true, nil
}
