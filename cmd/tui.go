package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/sonikswap/internal/shared"
	"github.com/desertthunder/sonikswap/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive track picker for transfers between two providers.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.store(); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	source, err := r.serviceFlag(ctx, cmd, "from")
	if err != nil {
		return err
	}
	dest, err := r.serviceFlag(ctx, cmd, "to")
	if err != nil {
		return err
	}
	if source.Provider() == dest.Provider() {
		return fmt.Errorf("%w: --from and --to are both %s", shared.ErrInvalidArgument, source.Name())
	}

	model := ui.NewModel(ctx, source, dest, r.engine, fileLogger)
	if err := ui.Run(ctx, model); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
