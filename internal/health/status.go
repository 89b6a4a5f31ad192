// SPDX-License-Identifier: MIT
/*
Package health derives a coarse capture health classification from the
fault counters accumulated at the capture boundary.

The decision list is strictly ordered, fatal first:

	read errors > I2SErrorThreshold          -> I2SError
	consecutive zero blocks > NoDataThreshold -> NoData
	clip rate > HWFaultClipRate, no generator -> HWFault
	clipped samples > 0, no generator         -> Clipping
	silence floor < noise floor < NoiseCeiling -> NoiseOnly
	otherwise                                 -> OK
*/
package health

import "fmt"

// Status is the derived health of one ADC.
type Status int

const (
	OK Status = iota
	NoData
	NoiseOnly
	Clipping
	I2SError
	// HWFault is a sustained clip rate typical of lost converter power or
	// floating data lines rather than a hot signal.
	HWFault
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NoData:
		return "NO_DATA"
	case NoiseOnly:
		return "NOISE_ONLY"
	case Clipping:
		return "CLIPPING"
	case I2SError:
		return "I2S_ERROR"
	case HWFault:
		return "HW_FAULT"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText lets Status appear by name in JSON telemetry.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Thresholds parameterize Derive.
type Thresholds struct {
	I2SErrors        uint64  `yaml:"i2s_errors"`
	ConsecutiveZeros uint64  `yaml:"consecutive_zeros"`
	SilenceFloorDBFS float64 `yaml:"silence_floor_dbfs"`
	NoiseCeilingDBFS float64 `yaml:"noise_ceiling_dbfs"`
	// HWFaultClipRate is the smoothed clip fraction above which the
	// converter is considered faulty. Zero disables the rule.
	HWFaultClipRate float64 `yaml:"hw_fault_clip_rate"`
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		I2SErrors:        10,
		ConsecutiveZeros: 100,
		SilenceFloorDBFS: -96,
		NoiseCeilingDBFS: -75,
		HWFaultClipRate:  0.3,
	}
}

// Derive classifies diagnostics. Clipping is ignored while a test-signal
// generator drives the input at full scale.
func Derive(d Diagnostics, generatorActive bool, th Thresholds) Status {
	if d.I2SReadErrors > th.I2SErrors {
		return I2SError
	}
	if d.ConsecutiveZeros > th.ConsecutiveZeros {
		return NoData
	}
	if !generatorActive && th.HWFaultClipRate > 0 && d.ClipRate > th.HWFaultClipRate {
		return HWFault
	}
	if d.ClippedSamples > 0 && !generatorActive {
		return Clipping
	}
	if d.NoiseFloorDBFS > th.SilenceFloorDBFS && d.NoiseFloorDBFS < th.NoiseCeilingDBFS {
		return NoiseOnly
	}
	return OK
}
