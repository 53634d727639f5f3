package camera

import (
	"fmt"
	"math"
	"strings"
)

// Param names one continuous imaging parameter.
type Param int

const (
	Gain Param = iota
	Exposure
	WBRed
	Gamma
)

// ContinuousParams lists every continuous parameter in display order.
var ContinuousParams = []Param{Gain, Exposure, WBRed, Gamma}

// Range is the closed domain of a continuous parameter.
type Range struct {
	Min  float64
	Max  float64
	Step float64 // nominal increment for keyboard/slider input
}

// Clamp returns v limited to [Min, Max]. NaN clamps to Min.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) || v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

var paramInfo = [...]struct {
	name string
	unit string
	rng  Range
}{
	Gain:     {"gainValue", "dB", Range{Min: 0.0, Max: 40.0, Step: 0.5}},
	Exposure: {"exposureValue", "us", Range{Min: 1000.0, Max: 50000.0, Step: 500}},
	WBRed:    {"wbRedValue", "", Range{Min: 0.8, Max: 3.0, Step: 0.05}},
	Gamma:    {"gammaValue", "", Range{Min: 0.1, Max: 4.0, Step: 0.05}},
}

func (p Param) valid() bool {
	return p >= Gain && p <= Gamma
}

func (p Param) String() string {
	if p.valid() {
		return paramInfo[p].name
	}
	return fmt.Sprintf("Param(%d)", int(p))
}

// Unit returns the display unit of the parameter, if any.
func (p Param) Unit() string {
	if p.valid() {
		return paramInfo[p].unit
	}
	return ""
}

// Range returns the domain of the parameter.
func (p Param) Range() Range {
	if p.valid() {
		return paramInfo[p].rng
	}
	return Range{}
}

// Clamp limits v to the parameter's domain.
func (p Param) Clamp(v float64) float64 {
	return p.Range().Clamp(v)
}

// ParseParam resolves a controller property name ("gainValue") or its short
// form ("gain", "exposure", "wb_red", "gamma").
func ParseParam(s string) (Param, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "gain", "gainvalue", "gain_db":
		return Gain, true
	case "exposure", "exposurevalue", "exposure_us":
		return Exposure, true
	case "wb_red", "wbred", "wbredvalue", "wb_red_ratio":
		return WBRed, true
	case "gamma", "gammavalue", "gamma_value":
		return Gamma, true
	}
	return 0, false
}

// Parameters is the full set of imaging parameters.
type Parameters struct {
	GainDB       float64     `json:"gain_db" yaml:"gain_db"`
	ExposureUs   float64     `json:"exposure_us" yaml:"exposure_us"`
	WBRedRatio   float64     `json:"wb_red_ratio" yaml:"wb_red_ratio"`
	GammaValue   float64     `json:"gamma_value" yaml:"gamma_value"`
	GammaEnabled bool        `json:"gamma_enabled" yaml:"gamma_enabled"`
	PixelFormat  PixelFormat `json:"pixel_format" yaml:"pixel_format"`
}

// DefaultParameters are the factory values of the camera.
func DefaultParameters() Parameters {
	return Parameters{
		GainDB:       15.0,
		ExposureUs:   20000.0,
		WBRedRatio:   1.5,
		GammaValue:   1.0,
		GammaEnabled: false,
		PixelFormat:  BayerRG8,
	}
}

// Get returns the value of a continuous parameter.
func (p Parameters) Get(param Param) float64 {
	switch param {
	case Gain:
		return p.GainDB
	case Exposure:
		return p.ExposureUs
	case WBRed:
		return p.WBRedRatio
	case Gamma:
		return p.GammaValue
	}
	return 0
}

// With returns a copy of p with one continuous parameter replaced.
func (p Parameters) With(param Param, v float64) Parameters {
	switch param {
	case Gain:
		p.GainDB = v
	case Exposure:
		p.ExposureUs = v
	case WBRed:
		p.WBRedRatio = v
	case Gamma:
		p.GammaValue = v
	}
	return p
}

// Clamped returns p with every field forced into its domain.
func (p Parameters) Clamped() Parameters {
	for _, param := range ContinuousParams {
		p = p.With(param, param.Clamp(p.Get(param)))
	}
	if !p.PixelFormat.Valid() {
		p.PixelFormat = DefaultParameters().PixelFormat
	}
	return p
}
