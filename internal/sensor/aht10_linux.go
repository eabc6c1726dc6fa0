//go:build linux

package sensor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
const i2cSlave = 0x0703

// AHT10 reads an AHT10 sensor through /dev/i2c-N.
type AHT10 struct {
	fd    int
	sleep func(time.Duration)
}

// NewAHT10 opens the bus, addresses the sensor and runs the reset and
// calibration sequence.
func NewAHT10(bus int) (*AHT10, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, aht10Address); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("select i2c address 0x%02x: %w", aht10Address, err)
	}

	s := &AHT10{fd: fd, sleep: time.Sleep}
	if err := s.write([]byte{aht10CmdReset}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reset aht10: %w", err)
	}
	s.sleep(aht10ResetDelay)

	// Already-calibrated parts NAK the init command.
	_ = s.write(aht10InitSequence)
	s.sleep(aht10InitDelay)
	return s, nil
}

// Read triggers a measurement and decodes the result.
func (s *AHT10) Read() (Measurement, error) {
	if err := s.write(aht10MeasureSequence); err != nil {
		return Measurement{}, fmt.Errorf("trigger measurement: %w", err)
	}
	s.sleep(aht10MeasureDelay)

	var data [6]byte
	n, err := unix.Read(s.fd, data[:])
	if err != nil {
		return Measurement{}, fmt.Errorf("read measurement: %w", err)
	}
	if n != len(data) {
		return Measurement{}, fmt.Errorf("read measurement: short read (%d bytes)", n)
	}
	return decodeAHT10(data)
}

// Close releases the bus.
func (s *AHT10) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

func (s *AHT10) write(b []byte) error {
	n, err := unix.Write(s.fd, b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short write (%d of %d bytes)", n, len(b))
	}
	return nil
}
