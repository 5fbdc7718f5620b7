package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-captions/internal/captions"
	"github.com/heimdex/heimdex-captions/internal/logging"
	"github.com/heimdex/heimdex-captions/internal/style"
	"github.com/heimdex/heimdex-captions/internal/transcribe"
)

// newCuesCommand converts an existing whisper JSON transcript into an ASS
// script without running the pipeline.
func newCuesCommand(ctx *commandContext) *cobra.Command {
	var (
		presetID string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "cues <transcript.json>",
		Short: "Build an ASS caption script from a whisper JSON transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := transcribe.LoadWords(args[0])
			if err != nil {
				return err
			}

			st := style.Defaults()
			if id := strings.TrimSpace(presetID); id != "" {
				database, err := ctx.openDB()
				if err != nil {
					return err
				}
				defer database.Close()
				resolver := style.NewResolver(style.NewSQLiteStore(database.Conn()), logging.New(cmd.ErrOrStderr(), "warn", "text"))
				st = resolver.Resolve(cmd.Context(), id)
			}

			if output == "" {
				output = strings.TrimSuffix(args[0], ".json") + ".ass"
			}

			script := captions.Script{Style: st, Cues: captions.BuildCues(words, st.GroupSize)}
			if err := script.WriteFile(output); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d cues to %s\n", len(script.Cues), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&presetID, "preset", "", "Preset ID to style the captions with")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: transcript path with .ass)")
	return cmd
}
