package app

import (
	"time"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/iqfile"
	"github.com/ftl/rfheatmap/core/radio"
	"github.com/ftl/rfheatmap/core/rtlsdr"
	"github.com/ftl/rfheatmap/core/sim"
)

// All sample sources.
const (
	SimSource    = "sim"
	RTLSDRSource = "rtlsdr"
	FileSource   = "file"
)

// OpenSource opens the sample source that is selected by the given configuration.
func OpenSource(config core.Configuration) (radio.SampleSource, error) {
	switch config.Source {
	case SimSource, "":
		return sim.New(SimConfig(config)), nil
	case RTLSDRSource:
		dongle, err := rtlsdr.Open(config.CenterFrequency, int(config.HardwareSampleRate), config.Gain, config.FrequencyCorrection)
		if err != nil {
			return nil, err
		}
		return dongle, nil
	case FileSource:
		reader, err := iqfile.Open(config.SourcePath, true, config.HardwareSampleRate)
		if err != nil {
			return nil, err
		}
		return reader, nil
	default:
		return nil, &core.ConfigError{Option: "source", Value: config.Source, Reason: "unknown source"}
	}
}

// SimConfig returns the configuration of a simulated radio with a tone a quarter of the output band
// above the mixing offset. Everything that is transmitted comes back as echo.
func SimConfig(config core.Configuration) sim.Config {
	return sim.Config{
		SampleRate:    config.HardwareSampleRate,
		ToneFrequency: config.FrequencyOffset + core.Frequency(config.OutputRate()/4),
		Amplitude:     0.5,
		NoiseLevel:    0.01,
		DCOffset:      complex(0.05, -0.02),
		Paced:         true,
		EchoDelay:     20 * time.Microsecond,
		EchoGain:      0.5,
		Seed:          time.Now().UnixNano(),
	}
}
