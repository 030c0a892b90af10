package convert

import (
	"errors"
	"fmt"

	"github.com/banshee-data/spinlidar/internal/lidar"
)

var (
	// ErrUnknownReturnMode matches *UnknownReturnModeError.
	ErrUnknownReturnMode = errors.New("unknown return mode")
	// ErrModelMismatch matches *ModelMismatchError.
	ErrModelMismatch = errors.New("sensor model mismatch")
)

// UnknownReturnModeError reports a packet whose return-mode byte is not
// strongest, last or dual. No points are produced for that packet.
type UnknownReturnModeError struct {
	Mode byte
}

func (e *UnknownReturnModeError) Error() string {
	return fmt.Sprintf("unknown return mode 0x%02x", e.Mode)
}

func (e *UnknownReturnModeError) Is(target error) bool { return target == ErrUnknownReturnMode }

// ModelMismatchError reports a packet or calibration table that does not
// belong to the configured sensor model.
type ModelMismatchError struct {
	Model  lidar.Model
	Detail string
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("model %s: %s", e.Model, e.Detail)
}

func (e *ModelMismatchError) Is(target error) bool { return target == ErrModelMismatch }
