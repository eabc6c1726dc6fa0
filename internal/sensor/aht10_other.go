//go:build !linux

package sensor

import "errors"

// AHT10 is not available on non-Linux platforms.
type AHT10 struct{}

// NewAHT10 returns an error on non-Linux platforms.
func NewAHT10(bus int) (*AHT10, error) {
	return nil, errors.New("sensor: i2c not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (s *AHT10) Read() (Measurement, error) {
	return Measurement{}, errors.New("sensor: not supported")
}

// Close is not implemented on non-Linux platforms.
func (s *AHT10) Close() error {
	return nil
}
