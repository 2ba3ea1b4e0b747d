// Package sgp30 drives a Sensirion SGP30 air-quality sensor over I2C.
//
// The driver covers the command subset the daemon needs: algorithm init,
// air-quality measurement, baseline get/set, humidity compensation and the
// identification commands. Every word read from or written to the sensor
// carries a CRC-8 checksum which is verified respectively generated here.
package sgp30

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"

	"codeberg.org/mutker/airqd/internal/errors"
)

// SensorAddress is the fixed I2C address of the SGP30.
const SensorAddress uint16 = 0x58

// The sensor reports this fixed pair while its internal calibration
// algorithm is still warming up.
const (
	DefaultCO2eq uint16 = 400
	DefaultTVOC  uint16 = 0
)

// MaxHumidity is the largest absolute humidity (g/m³) representable in the
// sensor's 8.8 fixed-point humidity encoding.
const MaxHumidity = 255.99609375

type command struct {
	// The 16-bit command word.
	word uint16
	// Measurement duration the sensor needs before the response can be read.
	delay time.Duration
	// Expected response length in bytes including CRCs. 0 for write-only.
	responseSize int
}

var (
	cmdInitAirQuality    = command{word: 0x2003, delay: 10 * time.Millisecond}
	cmdMeasureAirQuality = command{word: 0x2008, delay: 12 * time.Millisecond, responseSize: 6}
	cmdGetBaseline       = command{word: 0x2015, delay: 10 * time.Millisecond, responseSize: 6}
	cmdSetBaseline       = command{word: 0x201e, delay: 10 * time.Millisecond}
	cmdSetHumidity       = command{word: 0x2061, delay: 10 * time.Millisecond}
	cmdGetFeatureSet     = command{word: 0x202f, delay: 10 * time.Millisecond, responseSize: 3}
	cmdGetSerialID       = command{word: 0x3682, delay: time.Millisecond, responseSize: 9}
)

// Measurement is one air-quality reading.
type Measurement struct {
	CO2eq uint16 // ppm
	TVOC  uint16 // ppb
}

// FeatureSet is the product type and version word reported by the sensor.
type FeatureSet uint16

// Dev is a handle to an SGP30 on an I2C bus.
type Dev struct {
	d  *i2c.Dev
	mu sync.Mutex
}

// NewI2C returns a handle to the SGP30 on the given bus. The device address
// is fixed by the chip.
func NewI2C(b i2c.Bus) *Dev {
	return &Dev{d: &i2c.Dev{Bus: b, Addr: SensorAddress}}
}

// Init sends iaq_init, starting the on-chip air-quality algorithm. It must
// be called before Measure, and Measure must then be called once per second
// to keep the dynamic baseline compensation running.
func (d *Dev) Init() error {
	_, err := d.sendCommand(cmdInitAirQuality, nil)
	return err
}

// Measure performs one measure_iaq transaction.
func (d *Dev) Measure() (Measurement, error) {
	words, err := d.sendCommand(cmdMeasureAirQuality, nil)
	if err != nil {
		return Measurement{}, err
	}

	return Measurement{CO2eq: words[0], TVOC: words[1]}, nil
}

// Baseline reads the calibration baseline of the on-chip algorithm. The
// words are opaque calibration codes.
func (d *Dev) Baseline() (co2eq, tvoc uint16, err error) {
	words, err := d.sendCommand(cmdGetBaseline, nil)
	if err != nil {
		return 0, 0, err
	}

	return words[0], words[1], nil
}

// SetBaseline restores a previously read calibration baseline.
func (d *Dev) SetBaseline(co2eq, tvoc uint16) error {
	// The set command takes the words in the reverse order of the get
	// response: TVOC first, then CO2eq.
	_, err := d.sendCommand(cmdSetBaseline, []uint16{tvoc, co2eq})
	return err
}

// SetHumidity feeds the absolute humidity (g/m³) into the on-chip
// compensation algorithm. Values outside (0, MaxHumidity] are not
// representable in the sensor's 8.8 fixed-point encoding and are rejected;
// zero is excluded because the sensor treats it as "disable compensation".
func (d *Dev) SetHumidity(gm3 float64) error {
	// Written in accepting form so NaN, which fails every comparison, is
	// rejected with the rest.
	if !(gm3 > 0 && gm3 <= MaxHumidity) {
		return errors.New().WithData(ErrHumidityRange, struct {
			Value float64
		}{Value: gm3})
	}

	// Positive values below the encoding's resolution truncate to the
	// 0x0000 "disable compensation" word.
	code := uint16(gm3 * 256)
	if code == 0 {
		return errors.New().WithData(ErrHumidityRange, struct {
			Value float64
		}{Value: gm3})
	}

	_, err := d.sendCommand(cmdSetHumidity, []uint16{code})

	return err
}

// Serial reads the 48-bit serial number of the sensor.
func (d *Dev) Serial() (uint64, error) {
	words, err := d.sendCommand(cmdGetSerialID, nil)
	if err != nil {
		return 0, err
	}

	return uint64(words[0])<<32 | uint64(words[1])<<16 | uint64(words[2]), nil
}

// Features reads the feature set version word.
func (d *Dev) Features() (FeatureSet, error) {
	words, err := d.sendCommand(cmdGetFeatureSet, nil)
	if err != nil {
		return 0, err
	}

	return FeatureSet(words[0]), nil
}

// makeWriteData converts payload words into bytes with the CRC following
// each word.
func makeWriteData(data []uint16) []byte {
	bytes := make([]byte, len(data)*3)
	for ix, val := range data {
		bytes[ix*3] = byte(val >> 8)
		bytes[ix*3+1] = byte(val & 0xff)
		bytes[ix*3+2] = calcCRC(bytes[ix*3 : ix*3+2])
	}

	return bytes
}

// All reads and writes to the sensor go through this function. The SGP30
// needs a pause between the command write and the response read, so the
// transaction is split into two bus operations.
func (d *Dev) sendCommand(cmd command, writeData []uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	errFactory := errors.New()

	w := []byte{byte(cmd.word >> 8), byte(cmd.word & 0xff)}
	if len(writeData) > 0 {
		w = append(w, makeWriteData(writeData)...)
	}

	if err := d.d.Tx(w, nil); err != nil {
		return nil, errFactory.WithData(ErrBusTransaction, struct {
			Command uint16
			Error   string
		}{Command: cmd.word, Error: err.Error()})
	}
	time.Sleep(cmd.delay)

	if cmd.responseSize == 0 {
		return nil, nil
	}

	r := make([]byte, cmd.responseSize)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, errFactory.WithData(ErrBusTransaction, struct {
			Command uint16
			Error   string
		}{Command: cmd.word, Error: err.Error()})
	}

	result := make([]uint16, cmd.responseSize/3)
	for ix := range result {
		if calcCRC(r[ix*3:ix*3+2]) != r[ix*3+2] {
			return nil, errFactory.WithData(ErrChecksum, struct {
				Command uint16
			}{Command: cmd.word})
		}
		result[ix] = uint16(r[ix*3])<<8 | uint16(r[ix*3+1])
	}

	return result, nil
}

// calcCRC computes the CRC-8 (polynomial 0x31, init 0xFF) used by Sensirion
// sensors.
func calcCRC(bytes []byte) byte {
	crc := byte(0xff)
	for _, b := range bytes {
		crc ^= b
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}
