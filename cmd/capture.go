package cmd

import (
	"context"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/app"
	"github.com/ftl/rfheatmap/core/iqfile"
	"github.com/ftl/rfheatmap/core/radio"
)

var captureFlags = struct {
	samples int
}{}

var captureCmd = &cobra.Command{
	Use:   "capture <out.bin>",
	Short: "Record raw samples of the configured source into an SC16 Q11 file",
	Args:  cobra.ExactArgs(1),
	Run:   runWithCtx(runCapture),
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().IntVar(&captureFlags.samples, "samples", 1_000_000, "number of samples to record")
}

func runCapture(ctx context.Context, cmd *cobra.Command, args []string) {
	config, err := loadConfiguration(cmd)
	if err != nil {
		log.Fatal(err)
	}

	source, err := app.OpenSource(config)
	if err != nil {
		log.Fatal(err)
	}
	defer source.Close()

	writer, err := iqfile.Create(args[0])
	if err != nil {
		log.Fatal(err)
	}

	err = capture(ctx, source, writer, captureFlags.samples, config)
	closeErr := writer.Close()
	if err != nil {
		log.Fatal(err)
	}
	if closeErr != nil {
		log.Fatal(closeErr)
	}
	log.Printf("[INFO] %s samples written to %s", humanize.Comma(int64(writer.Count())), args[0])
}

type sampleWriter interface {
	Write(core.Block) error
	Count() int
}

// capture copies samples from the source to the writer until count samples are written or the
// context is done. Transient source errors are skipped.
func capture(ctx context.Context, source radio.SampleSource, writer sampleWriter, count int, config core.Configuration) error {
	buf := make(core.Block, config.ReadSize)
	for writer.Count() < count && ctx.Err() == nil {
		remaining := count - writer.Count()
		n, err := source.ReadBlock(buf[:min(len(buf), remaining)], config.ReadTimeout)
		if radio.IsFatal(err) {
			return err
		}
		if err != nil {
			log.Printf("[WARN] %v", err)
			continue
		}
		err = writer.Write(buf[:n])
		if err != nil {
			return err
		}
	}
	return nil
}
