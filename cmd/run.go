package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/app"
	"github.com/ftl/rfheatmap/core/heatmap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire samples and render the heatmap until interrupted (default)",
	Run:   runWithCtx(runHeatmap),
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runHeatmap(ctx context.Context, cmd *cobra.Command, args []string) {
	config, err := loadConfiguration(cmd)
	if err != nil {
		log.Fatal(err)
	}

	renderer, err := heatmap.New(config.OutputPath, heatmapAxis(config), heatmap.Theme(config.ColorTheme))
	if err != nil {
		log.Fatal(err)
	}
	defer renderer.Close()

	source, err := app.OpenSource(config)
	if err != nil {
		log.Fatal(err)
	}
	controller, err := app.New(config, source, renderer)
	if err != nil {
		source.Close()
		log.Fatal(err)
	}
	err = controller.Startup()
	if err != nil {
		source.Close()
		log.Fatal(err)
	}
	log.Printf("[INFO] rendering to %s", config.OutputPath)

	select {
	case <-ctx.Done():
		log.Print("[INFO] shutting down")
	case err := <-controller.Failed():
		log.Printf("[ERROR] %v", err)
	}

	err = controller.Shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

// heatmapAxis describes the columns that the pipeline produces for the given configuration.
func heatmapAxis(config core.Configuration) heatmap.Axis {
	rate := config.OutputRate()
	if config.Mode == core.CorrelationMode {
		pulseLength := config.PulseLength(rate)
		return heatmap.RangeAxis(rate, pulseLength, config.TransformSize+pulseLength-1)
	}
	return heatmap.FrequencyAxis(config.CenterFrequency+config.FrequencyOffset, rate, config.TransformSize)
}
