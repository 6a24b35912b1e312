package audiocapture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrNoInputDevice is returned by InitPortAudio when the host has no
// default input device.
var ErrNoInputDevice = errors.New("audiocapture: no default input device")

// InitPortAudio initializes the PortAudio library and checks that a default
// input device exists. The returned func terminates the library.
func InitPortAudio() (terminate func(), err error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		_ = portaudio.Terminate()
		if err == nil {
			err = ErrNoInputDevice
		}
		return nil, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { _ = portaudio.Terminate() })
	}, nil
}

// PortAudioDevice opens the default input device through PortAudio.
// InitPortAudio must have succeeded first.
type PortAudioDevice struct{}

// Open starts a callback stream on the default input device.
func (PortAudioDevice) Open(f Format, onFrame func(frame []int16)) (Stream, error) {
	stream, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), f.FramesPerBuffer,
		func(in []int16) { onFrame(in) })
	if err != nil {
		return nil, fmt.Errorf("open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return &paStream{stream: stream}, nil
}

type paStream struct {
	stream *portaudio.Stream
}

func (s *paStream) Stop() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	if stopErr != nil {
		return fmt.Errorf("stop stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close stream: %w", closeErr)
	}
	return nil
}
