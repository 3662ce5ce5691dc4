// ADS1256 register map, command set, gain and data-rate encodings.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package ads1256

import (
	"adda-hat/pkg/errors"
)

// ChipID is the 4-bit part identifier in the upper nibble of STATUS.
const ChipID = 0x03

// Register addresses.
const (
	regStatus = 0x00
	regMux    = 0x01
	regAdcon  = 0x02
	regDrate  = 0x03
)

// Command bytes.
const (
	cmdWakeup  = 0x00
	cmdRData   = 0x01
	cmdRDataC  = 0x03
	cmdSDataC  = 0x0F
	cmdRReg    = 0x10
	cmdWReg    = 0x50
	cmdSelfCal = 0xF0
	cmdSync    = 0xFC
	cmdStandby = 0xFD
	cmdReset   = 0xFE
)

// muxAincom selects the analog common pin as the negative input.
const muxAincom = 0x08

// NumChannels is the single-ended channel count; NumPairs the
// differential pair count.
const (
	NumChannels = 8
	NumPairs    = 4
)

// Gain is the PGA setting. The value is the ADCON PGA field.
type Gain uint8

const (
	Gain1 Gain = iota
	Gain2
	Gain4
	Gain8
	Gain16
	Gain32
	Gain64
)

// Factor returns the amplification as a plain multiplier.
func (g Gain) Factor() int {
	return 1 << g
}

// GainFor maps a configured multiplier (1, 2, 4 ... 64) to a Gain.
func GainFor(factor int) (Gain, error) {
	for g := Gain1; g <= Gain64; g++ {
		if g.Factor() == factor {
			return g, nil
		}
	}
	return 0, errors.New(errors.CodeConfig, "ads1256.gain",
		"unsupported gain %d (choose a power of two up to 64)", factor)
}

// DataRate selects the programmed output rate.
type DataRate int

const (
	DataRate30000 DataRate = iota
	DataRate15000
	DataRate7500
	DataRate3750
	DataRate2000
	DataRate1000
	DataRate500
	DataRate100
	DataRate60
	DataRate50
	DataRate30
	DataRate25
	DataRate15
	DataRate10
	DataRate5
	DataRate2_5
)

// drateBytes are the DRATE register encodings, fastest first.
var drateBytes = [...]byte{
	0xF0, // 30000 SPS
	0xE0, // 15000 SPS
	0xD0, // 7500 SPS
	0xC0, // 3750 SPS
	0xB0, // 2000 SPS
	0xA1, // 1000 SPS
	0x92, // 500 SPS
	0x82, // 100 SPS
	0x72, // 60 SPS
	0x63, // 50 SPS
	0x53, // 30 SPS
	0x43, // 25 SPS
	0x33, // 15 SPS
	0x23, // 10 SPS
	0x13, // 5 SPS
	0x03, // 2.5 SPS
}

var drateSPS = [...]float64{
	30000, 15000, 7500, 3750, 2000, 1000, 500, 100,
	60, 50, 30, 25, 15, 10, 5, 2.5,
}

func (r DataRate) valid() bool {
	return r >= DataRate30000 && r <= DataRate2_5
}

func (r DataRate) regByte() byte {
	return drateBytes[r]
}

// SPS returns the nominal samples per second of the rate.
func (r DataRate) SPS() float64 {
	return drateSPS[r]
}

// DataRateFor maps a configured rate in samples per second to a
// DataRate. The value must match one of the sixteen supported rates.
func DataRateFor(sps float64) (DataRate, error) {
	for i, v := range drateSPS {
		if v == sps {
			return DataRate(i), nil
		}
	}
	return 0, errors.New(errors.CodeConfig, "ads1256.data_rate",
		"unsupported data rate %g SPS", sps)
}

// muxSingle encodes a single-ended channel against analog common.
func muxSingle(channel int) byte {
	return byte(channel)<<4 | muxAincom
}

// muxDiff encodes differential pair n as AIN(2n) positive, AIN(2n+1)
// negative.
func muxDiff(pair int) byte {
	return byte(2*pair)<<4 | byte(2*pair+1)
}
