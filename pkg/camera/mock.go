package camera

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockDepthScale is the depth unit of the mock backend (1 mm, as on a D435).
const MockDepthScale float32 = 0.001

// FrameFunc generates the pair for frame seq at the given resolution.
type FrameFunc func(seq uint64, res image.Point, scale float32) FramePair

// MockDriver is a Driver producing synthetic frames.
// Failures can be injected for testing error paths.
type MockDriver struct {
	mu       sync.Mutex
	devices  int
	distance float64

	// OpenErr is returned from Open when set.
	OpenErr error
	// StopErr is returned from Session.Stop when set.
	StopErr error
	// StopGate makes Session.Stop block until it is closed.
	StopGate chan struct{}
	// Frames overrides the default generator when set.
	Frames FrameFunc
	// Paced makes WaitAligned sleep for one frame period.
	Paced bool

	opens atomic.Int64
	stops atomic.Int64
}

// NewMockDriver creates a mock reporting the given device count. The default
// generator fills depth with a flat plane at distance meters.
func NewMockDriver(devices int, distance float64) *MockDriver {
	return &MockDriver{devices: devices, distance: distance, Paced: true}
}

// SetDevices changes the reported device count (hot-plug).
func (d *MockDriver) SetDevices(n int) {
	d.mu.Lock()
	d.devices = n
	d.mu.Unlock()
}

// Devices implements Driver.
func (d *MockDriver) Devices() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices, nil
}

// Name implements Driver.
func (d *MockDriver) Name() string { return string(BackendMock) }

// Opens returns how many sessions were opened.
func (d *MockDriver) Opens() int64 { return d.opens.Load() }

// Stops returns how many successful stops were performed.
func (d *MockDriver) Stops() int64 { return d.stops.Load() }

// Open implements Driver.
func (d *MockDriver) Open(color, depth StreamConfig) (Session, error) {
	d.mu.Lock()
	openErr, frames, paced := d.OpenErr, d.Frames, d.Paced
	distance := d.distance
	d.mu.Unlock()

	if openErr != nil {
		return nil, openErr
	}
	if color.Width <= 0 || color.Height <= 0 {
		return nil, &DriverError{
			Op:      "rs2_pipeline_start_with_config",
			Args:    fmt.Sprintf("width:%d, height:%d", color.Width, color.Height),
			Message: "Couldn't resolve requests",
		}
	}

	if frames == nil {
		frames = flatFrames(distance)
	}

	d.opens.Add(1)
	s := &mockSession{
		driver: d,
		res:    image.Pt(color.Width, color.Height),
		frames: frames,
		done:   make(chan struct{}),
	}
	if paced && color.Framerate > 0 {
		s.period = time.Second / time.Duration(color.Framerate)
	}
	return s, nil
}

type mockSession struct {
	driver *MockDriver
	res    image.Point
	frames FrameFunc
	period time.Duration

	seq      atomic.Uint64
	done     chan struct{}
	stopOnce sync.Once
}

func (s *mockSession) Resolution() image.Point { return s.res }

func (s *mockSession) DepthScale() float32 { return MockDepthScale }

func (s *mockSession) WaitAligned() (FramePair, error) {
	if s.period > 0 {
		select {
		case <-time.After(s.period):
		case <-s.done:
		}
	}

	select {
	case <-s.done:
		return FramePair{}, &DriverError{
			Op:      "rs2_pipeline_wait_for_frames",
			Args:    "pipe:0x0",
			Message: "wait_for_frames cannot be called before start()",
		}
	default:
	}

	pair := s.frames(s.seq.Add(1), s.res, MockDepthScale)
	pair.Timestamp = time.Now()
	return pair, nil
}

func (s *mockSession) Stop() error {
	s.driver.mu.Lock()
	stopErr, gate := s.driver.StopErr, s.driver.StopGate
	s.driver.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if stopErr != nil {
		return stopErr
	}

	s.stopOnce.Do(func() {
		close(s.done)
		s.driver.stops.Add(1)
	})
	return nil
}

// flatFrames returns a generator with a horizontal color gradient and a
// depth plane at distance meters.
func flatFrames(distance float64) FrameFunc {
	return func(seq uint64, res image.Point, scale float32) FramePair {
		raw := uint16(0)
		if scale > 0 {
			raw = uint16(math.Round(distance / float64(scale)))
		}
		return SolidFrame(seq, res, scale, func(x, y int) (uint8, uint8, uint8, uint16) {
			v := uint8((x + int(seq)) * 255 / res.X)
			return v, uint8(y * 255 / res.Y), 255 - v, raw
		})
	}
}

// SolidFrame builds a pair by evaluating px for every pixel. px returns the
// RGB color and raw depth at (x, y).
func SolidFrame(seq uint64, res image.Point, scale float32, px func(x, y int) (r, g, b uint8, depth uint16)) FramePair {
	n := res.X * res.Y
	pair := FramePair{
		Width:      res.X,
		Height:     res.Y,
		Color:      make([]byte, n*3),
		Depth:      make([]byte, n*2),
		DepthScale: scale,
		Seq:        seq,
	}

	for y := 0; y < res.Y; y++ {
		for x := 0; x < res.X; x++ {
			i := y*res.X + x
			r, g, b, dv := px(x, y)
			pair.Color[i*3] = r
			pair.Color[i*3+1] = g
			pair.Color[i*3+2] = b
			binary.LittleEndian.PutUint16(pair.Depth[i*2:], dv)
		}
	}

	return pair
}
