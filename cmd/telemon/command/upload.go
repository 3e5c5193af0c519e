package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <pingType>",
	Short: "Upload pending pings of a type and wait for the batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newApp(ctx)
		defer a.Close()

		return uploadBatch(ctx, a, args[0])
	},
}

func uploadBatch(ctx context.Context, a *app, pingType string) error {
	pending, err := a.store.LoadContext(ctx, pingType)
	if err != nil {
		return fmt.Errorf("failed to load %s pings: %w", pingType, err)
	}

	done := make(chan struct{})
	if !a.scheduler.Schedule(pingType, func() { close(done) }) {
		fmt.Printf("Daily upload limit reached for %s pings. Nothing was sent.\n", pingType)
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	remaining, err := a.store.LoadContext(ctx, pingType)
	if err != nil {
		return fmt.Errorf("failed to load %s pings: %w", pingType, err)
	}
	fmt.Printf("Uploaded %d of %d %s pings.\n", len(pending)-len(remaining), len(pending), pingType)

	return nil
}
