package ble

import "errors"

var (
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")
	ErrScanFailed         = errors.New("bluetooth scan failed")
)
