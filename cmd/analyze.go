package cmd

import (
	"context"
	"io"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/dsp"
	"github.com/ftl/rfheatmap/core/heatmap"
	"github.com/ftl/rfheatmap/core/iqfile"
	"github.com/ftl/rfheatmap/core/radio"
	"github.com/ftl/rfheatmap/core/rolling"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <capture.bin>",
	Short: "Run an SC16 Q11 capture file through the pipeline and render a single heatmap",
	Args:  cobra.ExactArgs(1),
	Run:   runWithCtx(runAnalyze),
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(ctx context.Context, cmd *cobra.Command, args []string) {
	config, err := loadConfiguration(cmd)
	if err != nil {
		log.Fatal(err)
	}

	reader, err := iqfile.Open(args[0], false, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	renderer, err := heatmap.New(config.OutputPath, heatmapAxis(config), heatmap.Theme(config.ColorTheme))
	if err != nil {
		log.Fatal(err)
	}
	defer renderer.Close()

	buffer, levels, err := analyze(ctx, reader, config)
	if err != nil {
		log.Fatal(err)
	}
	if buffer.Count() == 0 {
		log.Fatalf("%s is too short for a single row", args[0])
	}

	err = renderer.Render(buffer.Snapshot(), levels.Range())
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("[INFO] %s rows written to %s", humanize.Comma(int64(buffer.Count())), config.OutputPath)
}

// analyze processes all blocks of the source without pacing. Every block of ReadSize samples
// produces at most one row.
func analyze(ctx context.Context, source radio.SampleSource, config core.Configuration) (*rolling.Buffer, *dsp.Levels, error) {
	pipeline, err := dsp.NewPipeline(config)
	if err != nil {
		return nil, nil, err
	}
	fill := float64(config.DynamicRange.Normalized().From)
	if config.Mode == core.CorrelationMode {
		fill = 0
	}
	buffer := rolling.New(config.HistoryDepth, pipeline.Bins(), fill)
	levels := dsp.NewLevels(config.DynamicRange, config.AutoRange, 50)

	samples := 0
	for ctx.Err() == nil {
		block := make(core.Block, config.ReadSize)
		n, err := source.ReadBlock(block, config.ReadTimeout)
		if errors.Is(err, io.EOF) {
			break
		}
		if radio.IsFatal(err) {
			return nil, nil, err
		}
		if err != nil {
			log.Printf("[WARN] %v", err)
			continue
		}
		samples += n

		row, ok := pipeline.Process(block[:n])
		if !ok {
			continue
		}
		buffer.Push(row)
		levels.Put(row)
	}
	log.Printf("[INFO] %s samples analyzed", humanize.Comma(int64(samples)))

	return buffer, levels, nil
}
