// Package audio adapts a platform microphone shim into the converted PCM
// frame stream the session core consumes.
package audio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/Braham27/salesgpt/internal/call"
)

// SampleRate is the capture rate the transcription path expects.
const SampleRate = 16000

// FrameSamples is the recommended fixed frame size (~256ms at 16kHz).
const FrameSamples = 4096

// FrameSource is the platform device shim: it acquires the microphone and
// produces raw float32 mono frames at SampleRate until Stop or ctx cancel.
// A permission refusal must surface as call.ErrPermissionDenied.
type FrameSource interface {
	Start(ctx context.Context) (<-chan []float32, error)
	Stop()
}

// Capture converts a FrameSource's float frames to PCM16LE and hands them on.
// It implements call.AudioSource. The conversion goroutine never blocks on a
// slow consumer; frames are dropped when the output buffer is full.
type Capture struct {
	src FrameSource

	mu      sync.Mutex
	started bool
	stopped bool
	frames  chan []byte
}

func NewCapture(src FrameSource) *Capture {
	return &Capture{src: src}
}

// Start acquires the microphone and begins converting frames. It may be
// called once per Capture.
func (c *Capture) Start(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, fmt.Errorf("audio capture already started")
	}
	c.started = true
	c.frames = make(chan []byte, 16)
	out := c.frames
	c.mu.Unlock()

	raw, err := c.src.Start(ctx)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case samples, ok := <-raw:
				if !ok {
					return
				}
				frame := PCM16LEFromFloat32(samples)
				select {
				case out <- frame:
				default:
					log.Println("audio frame buffer full, dropping frame")
				}
			}
		}
	}()
	return out, nil
}

// Stop releases the microphone. Safe to call more than once and regardless of
// whether Start succeeded; the device is released exactly once.
func (c *Capture) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()
	c.src.Stop()
}

var _ call.AudioSource = (*Capture)(nil)

// PCM16LEFromFloat32 clamps float samples to [-1, 1] and scales linearly into
// signed 16-bit little-endian bytes: -1.0 maps to -32768, +1.0 to 32767,
// 0.0 to 0.
func PCM16LEFromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		var v int16
		if f < 0 {
			v = int16(f * 32768)
		} else {
			v = int16(f * 32767)
		}
		out[2*i] = byte(uint16(v))
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}
