package devnetcmd

import (
	"context"

	"github.com/spf13/cobra"
)

type StopCmd struct{}

func NewStopCmd() *StopCmd {
	return &StopCmd{}
}

func (c *StopCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the devnet's router containers without removing them",
		RunE: withDevnet(func(ctx context.Context, e *env, dn *LocalDevnet, cmd *cobra.Command, args []string) error {
			if err := dn.Attach(ctx); err != nil {
				return err
			}
			return dn.Stop(ctx)
		}),
	}
	return cmd
}
