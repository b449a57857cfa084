package devnetcmd

import (
	"context"
	"fmt"

	"github.com/malbeclabs/bfdconverge/e2e/internal/docker"
	"github.com/spf13/cobra"
)

type UpCmd struct {
	pull       bool
	skipRoutes bool
}

func NewUpCmd() *UpCmd {
	return &UpCmd{}
}

func (c *UpCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the scenario's routers and switches as a persistent devnet",
		RunE: withDevnet(func(ctx context.Context, e *env, dn *LocalDevnet, cmd *cobra.Command, args []string) error {
			if c.pull {
				if err := docker.Pull(ctx, e.log, dn.dockerClient, dn.Spec.FRRImage); err != nil {
					return err
				}
			}
			if err := dn.Start(ctx); err != nil {
				return err
			}
			if !c.skipRoutes {
				if err := dn.ApplyStaticRoutes(ctx); err != nil {
					return fmt.Errorf("failed to apply static routes: %w", err)
				}
			}
			e.log.Info("--> Devnet is up", "deployID", e.deployID, "routers", e.topology.RouterNames())
			return nil
		}),
	}

	cmd.Flags().BoolVar(&c.pull, "pull", false, "Pull the FRR image before starting")
	cmd.Flags().BoolVar(&c.skipRoutes, "no-routes", false, "Don't install the topology's static routes")

	return cmd
}
