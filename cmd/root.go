package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/logutils"
	"github.com/spf13/cobra"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/cfg"
)

var rootFlags = struct {
	configFile      string
	logLevel        string
	source          string
	sourcePath      string
	centerFrequency float64
	sampleRate      float64
	gain            float64
	targetRate      float64
	decimation      int
	offset          float64
	transformSize   int
	historyDepth    int
	dcRemoval       string
	mode            string
	pulseWidth      time.Duration
	txMode          string
	autoRange       bool
	output          string
	theme           string
	record          string
	rig             string
}{}

var rootCmd = &cobra.Command{
	Use:              "rfheatmap",
	Short:            "Turn IQ samples into a continuously updated spectrogram or range heatmap",
	PersistentPreRun: setupLogging,
	Run:              runWithCtx(runHeatmap),
}

// Execute the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlags.configFile, "config", "", "YAML configuration file")
	flags.StringVar(&rootFlags.logLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flags.StringVar(&rootFlags.source, "source", "sim", "sample source: sim, rtlsdr, file")
	flags.StringVar(&rootFlags.sourcePath, "source-path", "", "SC16 Q11 capture file of the file source")
	flags.Float64Var(&rootFlags.centerFrequency, "center", 915_000_000, "center frequency in Hz")
	flags.Float64Var(&rootFlags.sampleRate, "sample-rate", 520_834, "hardware sample rate in Hz")
	flags.Float64Var(&rootFlags.gain, "gain", 40, "tuner gain in dB, negative for automatic gain")
	flags.Float64Var(&rootFlags.targetRate, "target-rate", 2000, "target rate after decimation in Hz")
	flags.IntVar(&rootFlags.decimation, "decimation", 0, "decimation factor, overrides the target rate")
	flags.Float64Var(&rootFlags.offset, "offset", 0, "software mixing offset in Hz")
	flags.IntVar(&rootFlags.transformSize, "transform-size", 256, "FFT size or correlation window")
	flags.IntVar(&rootFlags.historyDepth, "history", 200, "number of rows of the heatmap")
	flags.StringVar(&rootFlags.dcRemoval, "dc-removal", "block_mean", "DC removal: none, block_mean, iir_highpass")
	flags.StringVar(&rootFlags.mode, "mode", "spectral", "transform: spectral, correlation")
	flags.DurationVar(&rootFlags.pulseWidth, "pulse-width", 10*time.Microsecond, "width of the pulse reference")
	flags.StringVar(&rootFlags.txMode, "tx", "none", "transmit: none, tone, pulse")
	flags.BoolVar(&rootFlags.autoRange, "auto-range", false, "follow the value range of the rows")
	flags.StringVar(&rootFlags.output, "output", "rfheatmap.png", "PNG file of the heatmap")
	flags.StringVar(&rootFlags.theme, "theme", "classic", "color theme: classic, grayscale, jungle, thermal")
	flags.StringVar(&rootFlags.record, "record", "", "SQLite database to record the rows")
	flags.StringVar(&rootFlags.rig, "rig", "", "address of rigctld to follow the rig's frequency")
}

func setupLogging(cmd *cobra.Command, args []string) {
	log.SetOutput(&logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"},
		MinLevel: logutils.LogLevel(strings.ToUpper(rootFlags.logLevel)),
		Writer:   os.Stderr,
	})
	log.Print("[DEBUG] debug is on")
}

func runWithCtx(f func(ctx context.Context, cmd *cobra.Command, args []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		f(ctx, cmd, args)
	}
}

// loadConfiguration layers the static defaults, the user's defaults, the configuration file and
// the command line flags that were set explicitly.
func loadConfiguration(cmd *cobra.Command) (core.Configuration, error) {
	result, err := cfg.Load()
	if err != nil {
		log.Printf("[DEBUG] no user defaults: %v", err)
		result = cfg.Static()
	}
	if rootFlags.configFile != "" {
		result, err = cfg.LoadFile(rootFlags.configFile, result)
		if err != nil {
			return core.Configuration{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		result.Source = rootFlags.source
	}
	if flags.Changed("source-path") {
		result.SourcePath = rootFlags.sourcePath
		if !flags.Changed("source") {
			result.Source = "file"
		}
	}
	if flags.Changed("center") {
		result.CenterFrequency = core.Frequency(rootFlags.centerFrequency)
	}
	if flags.Changed("sample-rate") {
		result.HardwareSampleRate = rootFlags.sampleRate
	}
	if flags.Changed("gain") {
		result.Gain = rootFlags.gain
	}
	if flags.Changed("target-rate") {
		result.TargetRate = rootFlags.targetRate
	}
	if flags.Changed("decimation") {
		result.DecimationFactor = rootFlags.decimation
	}
	if flags.Changed("offset") {
		result.FrequencyOffset = core.Frequency(rootFlags.offset)
	}
	if flags.Changed("transform-size") {
		result.TransformSize = rootFlags.transformSize
	}
	if flags.Changed("history") {
		result.HistoryDepth = rootFlags.historyDepth
	}
	if flags.Changed("dc-removal") {
		result.DCRemoval = core.DCRemovalMode(rootFlags.dcRemoval)
	}
	if flags.Changed("mode") {
		result.Mode = core.TransformMode(rootFlags.mode)
	}
	if flags.Changed("pulse-width") {
		result.PulseWidth = rootFlags.pulseWidth
	}
	if flags.Changed("tx") {
		result.TxMode = core.TxMode(rootFlags.txMode)
	}
	if flags.Changed("auto-range") {
		result.AutoRange = rootFlags.autoRange
	}
	if flags.Changed("output") {
		result.OutputPath = rootFlags.output
	}
	if flags.Changed("theme") {
		result.ColorTheme = rootFlags.theme
	}
	if flags.Changed("record") {
		result.RecordPath = rootFlags.record
	}
	if flags.Changed("rig") {
		result.RigAddress = rootFlags.rig
	}

	return result, cfg.Validate(result)
}
