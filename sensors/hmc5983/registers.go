// Package hmc5983 provides a driver for Honeywell's HMC5983 3-axis digital
// compass attached over I2C. The datasheet can be found here:
// https://aerospace.honeywell.com/content/dam/aerobt/en/documents/learn/products/sensors/datasheet/HMC5983_3_Axis_Compass_IC.pdf
package hmc5983

import (
	"fmt"
	"math"
	"time"
)

const Address byte = 0x1E // fixed 7-bit I2C address

const (
	RegConfigA  byte = 0x00 // temperature compensation, averaging, output rate, measurement bias
	RegConfigB  byte = 0x01 // gain
	RegMode     byte = 0x02 // operating mode; writing it (re)arms conversion
	RegDataXMSB byte = 0x03 // start of the 6-byte data burst, X,Z,Y order
	RegStatus   byte = 0x09
	RegIDA      byte = 0x0A // 3 ASCII bytes, "H43" on a genuine part
)

// Output data rate codes, Config Register A bits 4:2.
const (
	ODR0_75 byte = 0x00
	ODR1_5  byte = 0x04
	ODR3    byte = 0x08
	ODR7_5  byte = 0x0C
	ODR15   byte = 0x10 // power-on default
	ODR30   byte = 0x14
	ODR75   byte = 0x18
	ODR220  byte = 0x1C
)

// Sample averaging codes, Config Register A bits 6:5.
const (
	Avg1 byte = 0x00
	Avg2 byte = 0x20
	Avg4 byte = 0x40
	Avg8 byte = 0x60
)

// Measurement bias codes, Config Register A bits 1:0. The positive and
// negative bias settings drive a known current through the self-test straps.
const (
	BiasNormal   byte = 0x00
	BiasPositive byte = 0x01
	BiasNegative byte = 0x02
	BiasTempOnly byte = 0x03
)

// Gain codes, Config Register B bits 7:5, named by the full-scale field
// range in gauss.
const (
	Gain0_88 byte = 0x00
	Gain1_3  byte = 0x20
	Gain1_9  byte = 0x40
	Gain2_5  byte = 0x60
	Gain4_0  byte = 0x80
	Gain4_7  byte = 0xA0
	Gain5_6  byte = 0xC0
	Gain8_1  byte = 0xE0
)

// Operating mode codes, Mode Register bits 1:0.
const (
	ModeContinuous byte = 0x00
	ModeSingle     byte = 0x01
	ModeSleep      byte = 0x03
)

// sensitivity returns the scale factor in LSB per gauss for a gain code.
// The conversion in readSample must use the entry matching the configured
// gain or the reported field is garbage.
func sensitivity(gain byte) uint16 {
	switch gain {
	case Gain0_88:
		return 1370
	case Gain1_3:
		return 1090
	case Gain1_9:
		return 820
	case Gain2_5:
		return 660
	case Gain4_0:
		return 440
	case Gain4_7:
		return 390
	case Gain5_6:
		return 330
	case Gain8_1:
		return 230
	}
	return 0
}

// samplePeriod returns the polled-mode delay between samples for an output
// data rate code, rounded up to whole milliseconds so the loop never polls
// faster than the device produces data.
func samplePeriod(odr byte) time.Duration {
	var hz float64
	switch odr {
	case ODR0_75:
		hz = 0.75
	case ODR1_5:
		hz = 1.5
	case ODR3:
		hz = 3
	case ODR7_5:
		hz = 7.5
	case ODR15:
		hz = 15
	case ODR30:
		hz = 30
	case ODR220:
		hz = 220
	case ODR75:
		fallthrough
	default:
		hz = 75
	}
	return time.Duration(math.Ceil(1000/hz)) * time.Millisecond
}

// ODRFromHz maps an output data rate in Hz to its register code.
func ODRFromHz(hz float64) (byte, error) {
	switch hz {
	case 0.75:
		return ODR0_75, nil
	case 1.5:
		return ODR1_5, nil
	case 3:
		return ODR3, nil
	case 7.5:
		return ODR7_5, nil
	case 15:
		return ODR15, nil
	case 30:
		return ODR30, nil
	case 75:
		return ODR75, nil
	case 220:
		return ODR220, nil
	}
	return 0, fmt.Errorf("hmc5983: unsupported output data rate %g Hz", hz)
}

// GainFromGauss maps a full-scale field range in gauss to its gain code.
func GainFromGauss(ga float64) (byte, error) {
	switch ga {
	case 0.88:
		return Gain0_88, nil
	case 1.3:
		return Gain1_3, nil
	case 1.9:
		return Gain1_9, nil
	case 2.5:
		return Gain2_5, nil
	case 4.0:
		return Gain4_0, nil
	case 4.7:
		return Gain4_7, nil
	case 5.6:
		return Gain5_6, nil
	case 8.1:
		return Gain8_1, nil
	}
	return 0, fmt.Errorf("hmc5983: unsupported gain %g Ga", ga)
}

// ModeFromName maps an operating mode name to its register code.
func ModeFromName(name string) (byte, error) {
	switch name {
	case "continuous", "":
		return ModeContinuous, nil
	case "single":
		return ModeSingle, nil
	case "sleep":
		return ModeSleep, nil
	}
	return 0, fmt.Errorf("hmc5983: unsupported mode %q", name)
}

// AveragingFromSamples maps a sample-averaging count to its register code.
func AveragingFromSamples(n int) (byte, error) {
	switch n {
	case 1, 0:
		return Avg1, nil
	case 2:
		return Avg2, nil
	case 4:
		return Avg4, nil
	case 8:
		return Avg8, nil
	}
	return 0, fmt.Errorf("hmc5983: unsupported averaging %d", n)
}
