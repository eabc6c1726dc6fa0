package sensor

import "time"

// AHT10 bus address and commands.
const (
	aht10Address = 0x38

	aht10CmdInit    = 0xE1
	aht10CmdMeasure = 0xAC
	aht10CmdReset   = 0xBA

	aht10StatusBusy = 0x80

	aht10ResetDelay   = 20 * time.Millisecond
	aht10InitDelay    = 100 * time.Millisecond
	aht10MeasureDelay = 80 * time.Millisecond
)

var (
	aht10InitSequence    = []byte{aht10CmdInit, 0x08, 0x00}
	aht10MeasureSequence = []byte{aht10CmdMeasure, 0x33, 0x00}
)

// decodeAHT10 converts a six-byte measurement frame. The status byte comes
// first, then 20 bits of humidity followed by 20 bits of temperature.
func decodeAHT10(data [6]byte) (Measurement, error) {
	if data[0]&aht10StatusBusy != 0 {
		return Measurement{}, ErrBusy
	}

	humRaw := uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4
	tempRaw := uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5])

	return Measurement{
		Humidity:    float64(humRaw) * 100 / 0x100000,
		Temperature: float64(tempRaw)*200/0x100000 - 50,
	}, nil
}
