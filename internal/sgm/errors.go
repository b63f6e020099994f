package sgm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig reports parameters or inputs that make computation meaningless.
	ErrInvalidConfig = errors.New("invalid sgm configuration")

	// ErrUnknownView reports a view id the camera geometry does not hold.
	ErrUnknownView = errors.New("unknown view")

	// ErrNoUsableRange reports that no target view yields a depth range for the
	// reference view; no depth is computable for it.
	ErrNoUsableRange = errors.New("no target view yields a usable depth range")

	// ErrVolumeTooLarge reports a volume exceeding the configured caps. Retrying at
	// a coarser scale or with fewer hypotheses can succeed.
	ErrVolumeTooLarge = errors.New("volume exceeds configured size cap")
)

// VolumeTooLargeError carries the rejected volume dimensions.
type VolumeTooLargeError struct {
	Width, Height, Depths int
	Bytes, LimitBytes     int64
	MaxDepths             int
}

func (e *VolumeTooLargeError) Error() string {
	if e.MaxDepths > 0 && e.Depths > e.MaxDepths {
		return fmt.Sprintf("volume %dx%dx%d: %d hypotheses exceed max %d",
			e.Width, e.Height, e.Depths, e.Depths, e.MaxDepths)
	}
	return fmt.Sprintf("volume %dx%dx%d needs %d bytes, limit is %d",
		e.Width, e.Height, e.Depths, e.Bytes, e.LimitBytes)
}

// Is makes errors.Is(err, ErrVolumeTooLarge) match.
func (e *VolumeTooLargeError) Is(target error) bool {
	return target == ErrVolumeTooLarge
}
