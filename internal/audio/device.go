package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied indicates the user rejected microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrDeviceUnavailable indicates the input device or audio session could
	// not be acquired.
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")
)

// Device is an open input tap. The tap callback runs on the capture thread
// and must not block; implementations deliver buffers in capture order.
type Device interface {
	Format() Format
	// Start installs the tap and begins delivering buffers.
	Start(tap func(Buffer)) error
	// Stop removes the tap and releases the device so hardware indicators
	// turn off. Must be safe to call when not started.
	Stop() error
}

// Microphone abstracts the OS audio input: permission state plus device
// acquisition.
type Microphone interface {
	// Authorize is idempotent: it queries the current permission state and
	// prompts at most once while undetermined.
	Authorize(ctx context.Context) (bool, error)
	// Open acquires the input device at its native format.
	Open(ctx context.Context) (Device, error)
}
