package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/factorsearch/artifact"
	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/decompose"
)

func newDiscoverCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Ask the architect for a factor structure and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			val, _, err := a.splits()
			if err != nil {
				return err
			}
			c, err := a.discover(cmd.Context(), val)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := c.Manifest().ToJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "Factors: %v\n\n%s\n", c.FactorNames(), c.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structure as a JSON manifest")
	return cmd
}

// discover builds the initial composite from the first validation example.
func (a *app) discover(ctx context.Context, val []core.Example) (*artifact.Composite, error) {
	if len(val) == 0 {
		return nil, fmt.Errorf("validation split %q is empty", a.cfg.ValSplit)
	}
	example, err := json.MarshalIndent(val[0], "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode example: %w", err)
	}

	d := decompose.New(a.architect,
		decompose.WithLogger(a.logger),
		decompose.WithTracer(a.obs.GetTracer().Tracer()),
	)
	return d.DiscoverStructure(ctx, a.taskDescription(), string(example))
}
