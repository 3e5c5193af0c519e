package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record <pingType>",
	Short: "Record a ping with the measurements of this host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cmd.Context())
		defer a.Close()

		return recordPing(cmd.Context(), a, args[0])
	},
}

func recordPing(ctx context.Context, a *app, pingType string) error {
	builders := a.builders()
	builder, ok := builders[pingType]
	if !ok {
		known := make([]string, 0, len(builders))
		for t := range builders {
			known = append(known, t)
		}
		sort.Strings(known)
		return fmt.Errorf("no measurements for ping type %q, expected one of %v", pingType, known)
	}

	p, err := builder.Build(ctx, pingType)
	if err != nil {
		return err
	}

	if err = a.store.Save(ctx, p); err != nil {
		return fmt.Errorf("failed to save ping: %w", err)
	}

	fmt.Printf("Recorded %s ping %s.\n", pingType, p.ID)
	return nil
}
