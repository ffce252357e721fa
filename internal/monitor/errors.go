package monitor

import "errors"

var (
	ErrNotRunning             = errors.New("monitor is not running")
	ErrCalibrationInProgress  = errors.New("calibration already in progress")
	ErrCalibrationInterrupted = errors.New("calibration interrupted")
	ErrClosed                 = errors.New("monitor is closed")
)
