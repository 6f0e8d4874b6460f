package core

import (
	"fmt"
	"time"
)

// Frequency represents a frequency in Hz.
type Frequency float64

func (f Frequency) String() string {
	return fmt.Sprintf("%.2fHz", f)
}

// DB represents decibel (dB).
type DB float64

func (f DB) String() string {
	return fmt.Sprintf("%.2fdB", f)
}

// DBRange represents a range of dB. It is also used as the value range of correlation magnitudes.
type DBRange struct {
	From DB `yaml:"from"`
	To   DB `yaml:"to"`
}

func (r DBRange) String() string {
	return fmt.Sprintf("[%v,%v]", r.From, r.To)
}

// Width of the dB range.
func (r DBRange) Width() DB {
	return r.To - r.From
}

// Normalized returns a range with From <= To.
func (r DBRange) Normalized() DBRange {
	if r.From > r.To {
		return DBRange{From: r.To, To: r.From}
	}
	return r
}

// Ratio of the given value within the range, clamped to [0,1].
func (r DBRange) Ratio(value DB) float64 {
	width := r.Width()
	if width <= 0 {
		return 0
	}
	ratio := float64((value - r.From) / width)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// Block of IQ samples. A block is owned by exactly one stage at a time.
type Block []complex64

// DCRemovalMode selects how the DC offset is removed from the decimated samples.
type DCRemovalMode string

// All DC removal modes.
const (
	DCRemovalNone        DCRemovalMode = "none"
	DCRemovalBlockMean   DCRemovalMode = "block_mean"
	DCRemovalIIRHighpass DCRemovalMode = "iir_highpass"
)

// Valid reports if the mode is known.
func (m DCRemovalMode) Valid() bool {
	switch m {
	case DCRemovalNone, DCRemovalBlockMean, DCRemovalIIRHighpass:
		return true
	default:
		return false
	}
}

// TransformMode selects the analysis that turns a block into a row.
type TransformMode string

// All transform modes.
const (
	SpectralMode    TransformMode = "spectral"
	CorrelationMode TransformMode = "correlation"
)

// Valid reports if the mode is known.
func (m TransformMode) Valid() bool {
	return m == SpectralMode || m == CorrelationMode
}

// TxMode selects the waveform of the transmitter.
type TxMode string

// All transmit modes.
const (
	TxNone  TxMode = "none"
	TxTone  TxMode = "tone"
	TxPulse TxMode = "pulse"
)

// Valid reports if the mode is known.
func (m TxMode) Valid() bool {
	switch m {
	case TxNone, TxTone, TxPulse, "":
		return true
	default:
		return false
	}
}

// Configuration parameters of the application.
type Configuration struct {
	// radio
	Source              string        `yaml:"source"`
	SourcePath          string        `yaml:"sourcePath"`
	CenterFrequency     Frequency     `yaml:"centerFrequency"`
	Gain                float64       `yaml:"gain"`
	FrequencyCorrection int           `yaml:"frequencyCorrection"`
	HardwareSampleRate  float64       `yaml:"hardwareSampleRate"`
	ReadSize            int           `yaml:"readSize"`
	ReadTimeout         time.Duration `yaml:"readTimeout"`
	QueueCapacity       int           `yaml:"queueCapacity"`

	// pipeline
	TargetRate       float64       `yaml:"targetRate"`
	DecimationFactor int           `yaml:"decimationFactor"`
	FrequencyOffset  Frequency     `yaml:"frequencyOffset"`
	TransformSize    int           `yaml:"transformSize"`
	HistoryDepth     int           `yaml:"historyDepth"`
	DCRemoval        DCRemovalMode `yaml:"dcRemoval"`
	IIRAlpha         float64       `yaml:"iirAlpha"`
	Mode             TransformMode `yaml:"mode"`
	PulseWidth       time.Duration `yaml:"pulseWidth"`
	PulseFrequency   Frequency     `yaml:"pulseFrequency"`
	TickPeriod       time.Duration `yaml:"tickPeriod"`

	// transmitter
	TxMode        TxMode        `yaml:"txMode"`
	ToneFrequency Frequency     `yaml:"toneFrequency"`
	TxBlockSize   int           `yaml:"txBlockSize"`
	PulsePeriod   time.Duration `yaml:"pulsePeriod"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`

	// display
	DynamicRange  DBRange       `yaml:"dynamicRange"`
	AutoRange     bool          `yaml:"autoRange"`
	DisplayPeriod time.Duration `yaml:"displayPeriod"`
	OutputPath    string        `yaml:"outputPath"`
	ColorTheme    string        `yaml:"colorTheme"`

	// extras
	RecordPath string `yaml:"recordPath"`
	RigAddress string `yaml:"rigAddress"`
}

// Decimation returns the effective decimation factor. An explicit factor wins over the target rate.
func (c Configuration) Decimation() int {
	if c.DecimationFactor > 0 {
		return c.DecimationFactor
	}
	if c.TargetRate <= 0 || c.HardwareSampleRate <= 0 {
		return 1
	}
	result := int(c.HardwareSampleRate / c.TargetRate)
	if result < 1 {
		return 1
	}
	return result
}

// OutputRate is the sample rate after decimation.
func (c Configuration) OutputRate() float64 {
	return c.HardwareSampleRate / float64(c.Decimation())
}

// PulseLength returns the number of samples of a pulse of the configured width at the given rate.
func (c Configuration) PulseLength(rate float64) int {
	return int(rate * c.PulseWidth.Seconds())
}

// ConfigError is returned when a configuration option is invalid.
type ConfigError struct {
	Option string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%v: %s", e.Option, e.Value, e.Reason)
}
