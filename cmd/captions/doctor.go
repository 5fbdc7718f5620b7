package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-captions/internal/logging"
	"github.com/heimdex/heimdex-captions/internal/pipelines"
)

var errToolsMissing = errors.New("required tools are missing")

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that ffmpeg and whisper are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, "text")

			prober := pipelines.NewToolProber(cfg.Tools.FFmpeg, cfg.Tools.Whisper, pipelines.NewSubprocessRunner(logger))
			caps, err := prober.Probe(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				toolRow("ffmpeg", caps.FFmpeg),
				toolRow("whisper", caps.Whisper),
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Tool", "Status", "Path", "Detail"}, rows, nil))

			if !caps.Ready() {
				return errToolsMissing
			}
			return nil
		},
	}
}

func toolRow(name string, info pipelines.ToolInfo) []string {
	if info.Available {
		return []string{name, "ok", info.Path, info.Version}
	}
	return []string{name, "missing", info.Path, info.Error}
}
