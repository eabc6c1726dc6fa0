// Package sensor reads room temperature and humidity for the host.
// The real implementation drives an AHT10 over Linux I2C.
// The fake implementation allows testing without hardware.
package sensor

import "errors"

// Measurement is one reading.
type Measurement struct {
	Temperature float64 // degrees Celsius
	Humidity    float64 // percent relative humidity
}

// Reader produces measurements.
type Reader interface {
	// Read performs one measurement. A failed read is transient; the
	// caller skips the cycle and tries again next tick.
	Read() (Measurement, error)

	// Close releases the device.
	Close() error
}

// ErrBusy is returned when the sensor reports it has not finished converting.
var ErrBusy = errors.New("sensor: device busy")
