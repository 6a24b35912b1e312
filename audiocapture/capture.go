// Package audiocapture records microphone audio into memory for the
// duration of a push-to-talk session.
package audiocapture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNotCapturing is returned when trying to stop while not capturing.
var ErrNotCapturing = errors.New("audiocapture: not capturing audio")

// ErrAlreadyCapturing is returned when trying to start capture while already capturing.
var ErrAlreadyCapturing = errors.New("audiocapture: already capturing audio")

// ErrNoAudio is returned by Stop when no frames were captured.
var ErrNoAudio = errors.New("audiocapture: no audio captured")

// DeviceError reports that the input device could not be opened or used.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audiocapture: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Format describes the PCM stream.
type Format struct {
	SampleRate      int
	Channels        int
	BitDepth        int
	FramesPerBuffer int
}

// DefaultFormat is 16 kHz mono 16-bit, what the transcription server expects.
func DefaultFormat() Format {
	return Format{
		SampleRate:      16000,
		Channels:        1,
		BitDepth:        16,
		FramesPerBuffer: 1024,
	}
}

// Stream is an open input stream.
type Stream interface {
	// Stop halts the stream and releases the device.
	Stop() error
}

// Device opens input streams. onFrame is called on the driver thread.
type Device interface {
	Open(f Format, onFrame func(frame []int16)) (Stream, error)
}

// Recording is the finalized audio of one session.
type Recording struct {
	WAV      []byte
	Samples  int
	Duration time.Duration
	// Level is the RMS of the whole recording, normalized to [0, 1].
	Level float64
}

// Silent reports whether the recording never rose above SilenceThreshold.
func (r *Recording) Silent() bool {
	return r.Level < SilenceThreshold
}

// Capture records from a Device into a per-session Buffer.
type Capture struct {
	mu sync.Mutex

	device Device
	format Format

	// State
	stream    Stream
	buffer    *Buffer
	startTime time.Time
}

// New creates a capture for device. Zero fields of f take DefaultFormat values.
func New(device Device, f Format) *Capture {
	def := DefaultFormat()
	if f.SampleRate == 0 {
		f.SampleRate = def.SampleRate
	}
	if f.Channels == 0 {
		f.Channels = def.Channels
	}
	if f.BitDepth == 0 {
		f.BitDepth = def.BitDepth
	}
	if f.FramesPerBuffer == 0 {
		f.FramesPerBuffer = def.FramesPerBuffer
	}
	return &Capture{device: device, format: f}
}

// Start opens the input stream and begins buffering frames.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return ErrAlreadyCapturing
	}

	// The callback closes over this session's buffer so a late frame from
	// a stopping stream can never land in the next session.
	buf := NewBuffer()
	stream, err := c.device.Open(c.format, buf.Append)
	if err != nil {
		return &DeviceError{Op: "open input stream", Err: err}
	}

	c.stream = stream
	c.buffer = buf
	c.startTime = time.Now()
	slog.Info("recording started", "sample_rate", c.format.SampleRate)
	return nil
}

// Stop halts the stream and returns the encoded audio. It returns
// ErrNotCapturing if Start was not called and ErrNoAudio if no frames
// arrived.
func (c *Capture) Stop() (*Recording, error) {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return nil, ErrNotCapturing
	}
	stream, buf, started := c.stream, c.buffer, c.startTime
	c.stream, c.buffer = nil, nil
	c.mu.Unlock()

	if err := stream.Stop(); err != nil {
		slog.Warn("stop input stream", "error", err)
	}

	samples := buf.Drain()
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}

	wav, err := EncodeWAV(samples, c.format)
	if err != nil {
		return nil, fmt.Errorf("encode recording: %w", err)
	}

	rec := &Recording{
		WAV:      wav,
		Samples:  len(samples),
		Duration: time.Duration(len(samples)/c.format.Channels) * time.Second / time.Duration(c.format.SampleRate),
		Level:    RMS(samples),
	}
	slog.Info("recording stopped",
		"duration", rec.Duration.Round(100*time.Millisecond),
		"bytes", len(wav),
		"level", fmt.Sprintf("%.3f", rec.Level),
		"held", time.Since(started).Round(time.Millisecond))
	return rec, nil
}

// IsCapturing returns true if currently capturing audio.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Format returns the capture format.
func (c *Capture) Format() Format {
	return c.format
}

// Close stops an active stream and discards its audio.
func (c *Capture) Close() error {
	c.mu.Lock()
	stream := c.stream
	c.stream, c.buffer = nil, nil
	c.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Stop()
}
