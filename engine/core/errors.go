package core

import (
	"errors"
)

var (
	ErrSwapchainBooting    = errors.New("swapchain resized or recreated, booting")
	ErrCapacityExhausted   = errors.New("descriptor heap capacity exhausted")
	ErrMissingResource     = errors.New("missing named resource")
	ErrDeviceLost          = errors.New("device lost")
	ErrFenceTimeout        = errors.New("fence wait timed out")
	ErrInvalidTransition   = errors.New("invalid resource state transition")
	ErrInstanceCapExceeded = errors.New("instance capacity exceeded")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrNotReady            = errors.New("object not initialized")
	ErrUnknownModel        = errors.New("unknown model kind")
	ErrUnknown             = errors.New("unknown")
)
