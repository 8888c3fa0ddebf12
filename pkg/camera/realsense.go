//go:build realsense

package camera

/*
#cgo LDFLAGS: -lrealsense2
#include <stdlib.h>
#include <librealsense2/rs.h>
#include <librealsense2/h/rs_pipeline.h>
#include <librealsense2/h/rs_config.h>
#include <librealsense2/h/rs_frame.h>
#include <librealsense2/h/rs_processing.h>
#include <librealsense2/h/rs_sensor.h>

static rs2_context* rsgo_create_context(rs2_error** e) {
	return rs2_create_context(RS2_API_VERSION, e);
}

static int rsgo_device_count(rs2_context* ctx, rs2_error** e) {
	rs2_device_list* list = rs2_query_devices(ctx, e);
	if (*e) return 0;
	int n = rs2_get_device_count(list, e);
	rs2_delete_device_list(list);
	return n;
}

static float rsgo_depth_scale(rs2_pipeline_profile* profile, rs2_error** e) {
	float scale = 0;
	rs2_device* dev = rs2_pipeline_profile_get_device(profile, e);
	if (*e) return 0;
	rs2_sensor_list* sensors = rs2_query_sensors(dev, e);
	if (*e) { rs2_delete_device(dev); return 0; }
	int count = rs2_get_sensors_count(sensors, e);
	for (int i = 0; !*e && i < count; i++) {
		rs2_sensor* s = rs2_create_sensor(sensors, i, e);
		if (*e) break;
		if (rs2_is_sensor_extendable_to(s, RS2_EXTENSION_DEPTH_SENSOR, e) && !*e) {
			scale = rs2_get_depth_scale(s, e);
			rs2_delete_sensor(s);
			break;
		}
		rs2_delete_sensor(s);
	}
	rs2_delete_sensor_list(sensors);
	rs2_delete_device(dev);
	return scale;
}

static void rsgo_color_resolution(rs2_pipeline_profile* profile, int* w, int* h, rs2_error** e) {
	rs2_stream_profile_list* streams = rs2_pipeline_profile_get_streams(profile, e);
	if (*e) return;
	int count = rs2_get_stream_profiles_count(streams, e);
	for (int i = 0; !*e && i < count; i++) {
		const rs2_stream_profile* p = rs2_get_stream_profile(streams, i, e);
		if (*e) break;
		rs2_stream stream; rs2_format format; int index, uid, fps;
		rs2_get_stream_profile_data(p, &stream, &format, &index, &uid, &fps, e);
		if (*e) break;
		if (stream == RS2_STREAM_COLOR) {
			rs2_get_video_stream_resolution(p, w, h, e);
			break;
		}
	}
	rs2_delete_stream_profiles_list(streams);
}

static rs2_stream rsgo_frame_stream(rs2_frame* f, rs2_error** e) {
	rs2_stream stream = RS2_STREAM_ANY;
	const rs2_stream_profile* p = rs2_get_frame_stream_profile(f, e);
	if (*e) return stream;
	rs2_format format; int index, uid, fps;
	rs2_get_stream_profile_data(p, &stream, &format, &index, &uid, &fps, e);
	return stream;
}
*/
import "C"

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
	"unsafe"
)

const realSenseAvailable = true

// realSenseError converts and frees an rs2_error.
func realSenseError(e *C.rs2_error) error {
	if e == nil {
		return nil
	}
	defer C.rs2_free_error(e)
	return &DriverError{
		Op:      C.GoString(C.rs2_get_failed_function(e)),
		Args:    C.GoString(C.rs2_get_failed_args(e)),
		Message: C.GoString(C.rs2_get_error_message(e)),
	}
}

type realSenseDriver struct {
	ctx     *C.rs2_context
	timeout time.Duration
	logger  *slog.Logger
	mu      sync.Mutex
}

func newRealSenseDriver(cfg Config, logger *slog.Logger) (Driver, error) {
	var e *C.rs2_error
	ctx := C.rsgo_create_context(&e)
	if err := realSenseError(e); err != nil {
		return nil, err
	}
	return &realSenseDriver{ctx: ctx, timeout: cfg.Timeout, logger: logger}, nil
}

func (d *realSenseDriver) Name() string { return string(BackendRealSense) }

func (d *realSenseDriver) Devices() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var e *C.rs2_error
	n := C.rsgo_device_count(d.ctx, &e)
	if err := realSenseError(e); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (d *realSenseDriver) Open(color, depth StreamConfig) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var e *C.rs2_error
	s := &realSenseSession{timeout: d.timeout, logger: d.logger}

	s.pipe = C.rs2_create_pipeline(d.ctx, &e)
	if err := realSenseError(e); err != nil {
		return nil, err
	}

	cfg := C.rs2_create_config(&e)
	if err := realSenseError(e); err != nil {
		s.release()
		return nil, err
	}
	defer C.rs2_delete_config(cfg)

	C.rs2_config_enable_stream(cfg, C.RS2_STREAM_COLOR, 0, C.int(color.Width), C.int(color.Height), C.RS2_FORMAT_RGB8, C.int(color.Framerate), &e)
	if err := realSenseError(e); err != nil {
		s.release()
		return nil, err
	}
	C.rs2_config_enable_stream(cfg, C.RS2_STREAM_DEPTH, 0, C.int(depth.Width), C.int(depth.Height), C.RS2_FORMAT_Z16, C.int(depth.Framerate), &e)
	if err := realSenseError(e); err != nil {
		s.release()
		return nil, err
	}

	s.profile = C.rs2_pipeline_start_with_config(s.pipe, cfg, &e)
	if err := realSenseError(e); err != nil {
		s.release()
		return nil, err
	}
	s.running = true

	var w, h C.int
	C.rsgo_color_resolution(s.profile, &w, &h, &e)
	if err := realSenseError(e); err != nil {
		s.Stop()
		return nil, err
	}
	s.res = image.Pt(int(w), int(h))

	scale := C.rsgo_depth_scale(s.profile, &e)
	if err := realSenseError(e); err != nil {
		s.Stop()
		return nil, err
	}
	s.scale = float32(scale)

	// Depth is resampled onto the color grid by the align block.
	s.align = C.rs2_create_align(C.RS2_STREAM_COLOR, &e)
	if err := realSenseError(e); err != nil {
		s.Stop()
		return nil, err
	}
	s.queue = C.rs2_create_frame_queue(1, &e)
	if err := realSenseError(e); err != nil {
		s.Stop()
		return nil, err
	}
	C.rs2_start_processing_queue(s.align, s.queue, &e)
	if err := realSenseError(e); err != nil {
		s.Stop()
		return nil, err
	}

	return s, nil
}

type realSenseSession struct {
	logger  *slog.Logger
	timeout time.Duration
	res     image.Point
	scale   float32

	// waitMu serializes WaitAligned against resource release.
	waitMu  sync.Mutex
	running bool

	pipe    *C.rs2_pipeline
	profile *C.rs2_pipeline_profile
	align   *C.rs2_processing_block
	queue   *C.rs2_frame_queue
}

func (s *realSenseSession) Resolution() image.Point { return s.res }

func (s *realSenseSession) DepthScale() float32 { return s.scale }

func (s *realSenseSession) WaitAligned() (FramePair, error) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()

	if s.pipe == nil {
		return FramePair{}, ErrNotStarted
	}

	var e *C.rs2_error
	timeoutMs := C.uint(s.timeout / time.Millisecond)

	frames := C.rs2_pipeline_wait_for_frames(s.pipe, timeoutMs, &e)
	if err := realSenseError(e); err != nil {
		return FramePair{}, err
	}

	// rs2_process_frame takes ownership of frames.
	C.rs2_process_frame(s.align, frames, &e)
	if err := realSenseError(e); err != nil {
		return FramePair{}, err
	}
	aligned := C.rs2_wait_for_frame(s.queue, timeoutMs, &e)
	if err := realSenseError(e); err != nil {
		return FramePair{}, err
	}
	defer C.rs2_release_frame(aligned)

	pair := FramePair{DepthScale: s.scale}

	count := C.rs2_embedded_frames_count(aligned, &e)
	if err := realSenseError(e); err != nil {
		return FramePair{}, err
	}

	for i := C.int(0); i < count; i++ {
		f := C.rs2_extract_frame(aligned, i, &e)
		if err := realSenseError(e); err != nil {
			return FramePair{}, err
		}

		stream := C.rsgo_frame_stream(f, &e)
		if err := realSenseError(e); err != nil {
			C.rs2_release_frame(f)
			return FramePair{}, err
		}

		switch stream {
		case C.RS2_STREAM_COLOR:
			w, h, data, err := copyFrame(f, 3)
			if err != nil {
				C.rs2_release_frame(f)
				return FramePair{}, err
			}
			pair.Width, pair.Height, pair.Color = w, h, data
			pair.Seq = uint64(C.rs2_get_frame_number(f, &e))
			realSenseError(e)
		case C.RS2_STREAM_DEPTH:
			_, _, data, err := copyFrame(f, 2)
			if err != nil {
				C.rs2_release_frame(f)
				return FramePair{}, err
			}
			pair.Depth = data
		}
		C.rs2_release_frame(f)
	}

	if !pair.Valid() {
		return FramePair{}, &DriverError{
			Op:      "rs2_extract_frame",
			Message: fmt.Sprintf("incomplete aligned frameset (%d frames)", int(count)),
		}
	}

	pair.Timestamp = time.Now()
	return pair, nil
}

// copyFrame copies frame pixels into Go memory with a packed stride.
func copyFrame(f *C.rs2_frame, bpp int) (int, int, []byte, error) {
	var e *C.rs2_error

	w := int(C.rs2_get_frame_width(f, &e))
	if err := realSenseError(e); err != nil {
		return 0, 0, nil, err
	}
	h := int(C.rs2_get_frame_height(f, &e))
	if err := realSenseError(e); err != nil {
		return 0, 0, nil, err
	}
	stride := int(C.rs2_get_frame_stride_in_bytes(f, &e))
	if err := realSenseError(e); err != nil {
		return 0, 0, nil, err
	}
	ptr := C.rs2_get_frame_data(f, &e)
	if err := realSenseError(e); err != nil {
		return 0, 0, nil, err
	}

	src := unsafe.Slice((*byte)(ptr), stride*h)
	row := w * bpp
	out := make([]byte, row*h)
	for y := 0; y < h; y++ {
		copy(out[y*row:(y+1)*row], src[y*stride:y*stride+row])
	}
	return w, h, out, nil
}

func (s *realSenseSession) Stop() error {
	var e *C.rs2_error

	// Stopping unblocks a pending wait_for_frames in the capture goroutine.
	if s.running {
		C.rs2_pipeline_stop(s.pipe, &e)
		if err := realSenseError(e); err != nil {
			return err
		}
		s.running = false
	}

	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	s.release()
	return nil
}

func (s *realSenseSession) release() {
	if s.align != nil {
		C.rs2_delete_processing_block(s.align)
		s.align = nil
	}
	if s.queue != nil {
		C.rs2_delete_frame_queue(s.queue)
		s.queue = nil
	}
	if s.profile != nil {
		C.rs2_delete_pipeline_profile(s.profile)
		s.profile = nil
	}
	if s.pipe != nil {
		C.rs2_delete_pipeline(s.pipe)
		s.pipe = nil
	}
}
