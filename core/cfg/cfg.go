package cfg

import (
	"os"
	"time"

	"github.com/ftl/hamradio/cfg"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/dsp"
)

const (
	source              cfg.Key = "rfheatmap.source"
	centerFrequency     cfg.Key = "rfheatmap.centerFrequency"
	gain                cfg.Key = "rfheatmap.gain"
	frequencyCorrection cfg.Key = "rfheatmap.frequencyCorrection"
	hardwareSampleRate  cfg.Key = "rfheatmap.hardwareSampleRate"
	targetRate          cfg.Key = "rfheatmap.targetRate"
	transformSize       cfg.Key = "rfheatmap.transformSize"
	historyDepth        cfg.Key = "rfheatmap.historyDepth"
	dcRemoval           cfg.Key = "rfheatmap.dcRemoval"
	mode                cfg.Key = "rfheatmap.mode"
	rigAddress          cfg.Key = "rfheatmap.rigAddress"
	recordPath          cfg.Key = "rfheatmap.recordPath"
	dynamicRangeFrom    cfg.Key = "rfheatmap.dynamicRange.from"
	dynamicRangeTo      cfg.Key = "rfheatmap.dynamicRange.to"
)

// Load the user's default configuration on top of the static defaults.
func Load() (core.Configuration, error) {
	configuration, err := cfg.LoadDefault()
	if err != nil {
		return core.Configuration{}, err
	}

	result := Static()
	result.Source = configuration.Get(source, result.Source).(string)
	result.CenterFrequency = core.Frequency(configuration.Get(centerFrequency, float64(result.CenterFrequency)).(float64))
	result.Gain = configuration.Get(gain, result.Gain).(float64)
	result.FrequencyCorrection = int(configuration.Get(frequencyCorrection, float64(result.FrequencyCorrection)).(float64))
	result.HardwareSampleRate = configuration.Get(hardwareSampleRate, result.HardwareSampleRate).(float64)
	result.TargetRate = configuration.Get(targetRate, result.TargetRate).(float64)
	result.TransformSize = int(configuration.Get(transformSize, float64(result.TransformSize)).(float64))
	result.HistoryDepth = int(configuration.Get(historyDepth, float64(result.HistoryDepth)).(float64))
	result.DCRemoval = core.DCRemovalMode(configuration.Get(dcRemoval, string(result.DCRemoval)).(string))
	result.Mode = core.TransformMode(configuration.Get(mode, string(result.Mode)).(string))
	result.RigAddress = configuration.Get(rigAddress, result.RigAddress).(string)
	result.RecordPath = configuration.Get(recordPath, result.RecordPath).(string)
	result.DynamicRange = core.DBRange{
		From: core.DB(configuration.Get(dynamicRangeFrom, float64(result.DynamicRange.From)).(float64)),
		To:   core.DB(configuration.Get(dynamicRangeTo, float64(result.DynamicRange.To)).(float64)),
	}.Normalized()

	return result, nil
}

// LoadFile reads a YAML configuration file. Options missing in the file keep the values of base.
func LoadFile(filename string, base core.Configuration) (core.Configuration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return core.Configuration{}, errors.Wrapf(err, "cannot read configuration file %s", filename)
	}

	result := base
	err = yaml.Unmarshal(data, &result)
	if err != nil {
		return core.Configuration{}, errors.Wrapf(err, "cannot parse configuration file %s", filename)
	}
	result.DynamicRange = result.DynamicRange.Normalized()

	return result, nil
}

// Static returns the built-in defaults.
func Static() core.Configuration {
	return core.Configuration{
		Source:             "sim",
		CenterFrequency:    915000000,
		Gain:               40,
		HardwareSampleRate: 520834,
		ReadSize:           131072,
		ReadTimeout:        1 * time.Second,
		QueueCapacity:      16,

		TargetRate:    2000,
		TransformSize: 256,
		HistoryDepth:  200,
		DCRemoval:     core.DCRemovalBlockMean,
		IIRAlpha:      0.995,
		Mode:          core.SpectralMode,
		PulseWidth:    10 * time.Microsecond,
		TickPeriod:    50 * time.Millisecond,

		TxMode:        core.TxNone,
		ToneFrequency: 1000,
		TxBlockSize:   256,
		PulsePeriod:   500 * time.Millisecond,
		WriteTimeout:  100 * time.Millisecond,

		DynamicRange:  core.DBRange{From: -40, To: 60},
		DisplayPeriod: 1 * time.Second,
		OutputPath:    "rfheatmap.png",
		ColorTheme:    "classic",
	}
}

// Validate the given configuration. All checks are done before anything is started.
func Validate(c core.Configuration) error {
	if c.HardwareSampleRate <= 0 {
		return &core.ConfigError{Option: "hardware_sample_rate", Value: c.HardwareSampleRate, Reason: "must be positive"}
	}
	if c.DecimationFactor < 0 {
		return &core.ConfigError{Option: "decimation_factor", Value: c.DecimationFactor, Reason: "must not be negative"}
	}
	if c.TargetRate < 0 {
		return &core.ConfigError{Option: "target_rate", Value: c.TargetRate, Reason: "must not be negative"}
	}
	if c.TransformSize < 2 {
		return &core.ConfigError{Option: "transform_size", Value: c.TransformSize, Reason: "must be at least 2"}
	}
	if c.HistoryDepth < 1 {
		return &core.ConfigError{Option: "history_depth", Value: c.HistoryDepth, Reason: "must be at least 1"}
	}
	if !c.DCRemoval.Valid() {
		return &core.ConfigError{Option: "dc_removal_mode", Value: c.DCRemoval, Reason: "unknown mode"}
	}
	if c.DCRemoval == core.DCRemovalIIRHighpass && (c.IIRAlpha <= 0 || c.IIRAlpha >= 1) {
		return &core.ConfigError{Option: "iir_alpha", Value: c.IIRAlpha, Reason: "must be in (0,1)"}
	}
	if !c.Mode.Valid() {
		return &core.ConfigError{Option: "mode", Value: c.Mode, Reason: "unknown mode"}
	}
	if c.Mode == core.CorrelationMode && c.PulseLength(c.OutputRate()) < dsp.MinPulseLength {
		return &core.ConfigError{Option: "pulse_width", Value: c.PulseWidth, Reason: "pulse reference too short at the decimated rate"}
	}
	if c.TickPeriod <= 0 {
		return &core.ConfigError{Option: "tick_period", Value: c.TickPeriod, Reason: "must be positive"}
	}
	if c.DisplayPeriod <= 0 {
		return &core.ConfigError{Option: "display_period", Value: c.DisplayPeriod, Reason: "must be positive"}
	}
	if c.ReadSize <= 0 {
		return &core.ConfigError{Option: "read_size", Value: c.ReadSize, Reason: "must be positive"}
	}
	if c.ReadTimeout <= 0 {
		return &core.ConfigError{Option: "read_timeout", Value: c.ReadTimeout, Reason: "must be positive"}
	}
	if c.QueueCapacity <= 0 {
		return &core.ConfigError{Option: "queue_capacity", Value: c.QueueCapacity, Reason: "must be positive"}
	}
	if !c.TxMode.Valid() {
		return &core.ConfigError{Option: "tx_mode", Value: c.TxMode, Reason: "unknown mode"}
	}
	switch c.TxMode {
	case core.TxTone:
		if c.TxBlockSize <= 0 {
			return &core.ConfigError{Option: "tx_block_size", Value: c.TxBlockSize, Reason: "must be positive"}
		}
	case core.TxPulse:
		pulseLength := c.PulseLength(c.HardwareSampleRate)
		if pulseLength < dsp.MinPulseLength {
			return &core.ConfigError{Option: "pulse_width", Value: c.PulseWidth, Reason: "pulse reference too short at the hardware rate"}
		}
		if c.TxBlockSize < pulseLength {
			return &core.ConfigError{Option: "tx_block_size", Value: c.TxBlockSize, Reason: "shorter than the pulse"}
		}
		if c.PulsePeriod <= 0 {
			return &core.ConfigError{Option: "pulse_period", Value: c.PulsePeriod, Reason: "must be positive"}
		}
	}
	return nil
}
