package analytics

import (
	"errors"

	"stream-anomaly-detector/models"
)

var (
	ErrInvalidWindowSize = errors.New("window size must be positive")
	ErrInvalidThreshold  = errors.New("threshold must be a positive finite number")
	ErrInvalidMinHistory = errors.New("min history must be between 2 and the window size")
	ErrNonFiniteValue    = models.ErrNonFiniteValue
	ErrEngineClosed      = errors.New("stream engine is closed")
)
