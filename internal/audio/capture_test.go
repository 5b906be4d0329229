package audio

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"
)

type fakeFrameSource struct {
	out   chan []float32
	stops int32
	err   error
}

func (f *fakeFrameSource) Start(ctx context.Context) (<-chan []float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func (f *fakeFrameSource) Stop() { atomic.AddInt32(&f.stops, 1) }

func TestPCM16LEFromFloat32_Extremes(t *testing.T) {
	got := PCM16LEFromFloat32([]float32{1.0, -1.0, 0.0})
	cases := []int16{32767, -32768, 0}
	for i, want := range cases {
		v := int16(binary.LittleEndian.Uint16(got[2*i : 2*i+2]))
		if v != want {
			t.Fatalf("sample %d: got %d want %d", i, v, want)
		}
	}
}

func TestPCM16LEFromFloat32_Clamps(t *testing.T) {
	got := PCM16LEFromFloat32([]float32{2.5, -3.0})
	if v := int16(binary.LittleEndian.Uint16(got[0:2])); v != 32767 {
		t.Fatalf("positive clamp: got %d", v)
	}
	if v := int16(binary.LittleEndian.Uint16(got[2:4])); v != -32768 {
		t.Fatalf("negative clamp: got %d", v)
	}
}

func TestPCM16LEFromFloat32_Midpoints(t *testing.T) {
	got := PCM16LEFromFloat32([]float32{0.5, -0.5})
	if v := int16(binary.LittleEndian.Uint16(got[0:2])); v != 16383 {
		t.Fatalf("+0.5: got %d want 16383", v)
	}
	if v := int16(binary.LittleEndian.Uint16(got[2:4])); v != -16384 {
		t.Fatalf("-0.5: got %d want -16384", v)
	}
}

func TestCapture_ConvertsFrames(t *testing.T) {
	src := &fakeFrameSource{out: make(chan []float32, 4)}
	c := NewCapture(src)

	frames, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	src.out <- []float32{0.0, 1.0}

	select {
	case frame := <-frames:
		if len(frame) != 4 {
			t.Fatalf("frame size: got %d want 4", len(frame))
		}
		if v := int16(binary.LittleEndian.Uint16(frame[2:4])); v != 32767 {
			t.Fatalf("converted sample: got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("no frame received")
	}
	c.Stop()
}

func TestCapture_StartTwiceFails(t *testing.T) {
	src := &fakeFrameSource{out: make(chan []float32)}
	c := NewCapture(src)
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := c.Start(context.Background()); err == nil {
		t.Fatalf("second start should fail")
	}
	c.Stop()
}

func TestCapture_StopReleasesDeviceOnce(t *testing.T) {
	src := &fakeFrameSource{out: make(chan []float32)}
	c := NewCapture(src)
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Stop()
	c.Stop()
	if n := atomic.LoadInt32(&src.stops); n != 1 {
		t.Fatalf("device released %d times", n)
	}
}

func TestCapture_SourceCloseClosesFrames(t *testing.T) {
	src := &fakeFrameSource{out: make(chan []float32)}
	c := NewCapture(src)
	frames, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	close(src.out)
	select {
	case _, ok := <-frames:
		if ok {
			t.Fatalf("expected closed frame channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("frame channel did not close")
	}
}
