package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pinganalyst/internal/config"
	"pinganalyst/internal/workflow"
)

func newFramesCommand(ctx *commandContext) *cobra.Command {
	var sampling samplingFlags

	cmd := &cobra.Command{
		Use:   "frames <video> <dir>",
		Short: "Write the sampled JPEG frames of a video to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sampling.apply(ctx.configValue())
			if err != nil {
				return err
			}
			video, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			dir, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			chunks, err := workflow.NewExtractor(cfg, ctx.cliLogger("warn"), extractorOptions...).Extract(cmd.Context(), video)
			if err != nil {
				return fmt.Errorf("extract frames: %w", err)
			}

			var count int
			var written uint64
			for _, chunk := range chunks {
				for i, frame := range chunk.Frames {
					name := fmt.Sprintf("chunk%03d-frame%03d-%08.2fs.jpg", chunk.Index+1, i+1, frame.Timestamp)
					if err := os.WriteFile(filepath.Join(dir, name), frame.JPEG, 0o644); err != nil {
						return fmt.Errorf("write frame: %w", err)
					}
					count++
					written += uint64(len(frame.JPEG))
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d frames in %d segments (%s) to %s\n",
				count, len(chunks), humanize.Bytes(written), dir)
			return nil
		},
	}
	sampling.register(cmd)
	return cmd
}
