package devnetcmd

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/client"
	"github.com/malbeclabs/bfdconverge/e2e/internal/devnet"
	"github.com/malbeclabs/bfdconverge/e2e/internal/logging"
	"github.com/spf13/cobra"
)

type LocalDevnet struct {
	*devnet.Devnet

	dockerClient *client.Client
}

func NewLocalDevnet(e *env) (*LocalDevnet, error) {
	// Set the default logger for testcontainers.
	logging.SetTestcontainersLogger(e.log)

	if err := devnet.LoadImagesEnvFile(e.log, e.envFile); err != nil {
		return nil, err
	}

	// Initialize a docker client.
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		e.log.Error("failed to create docker client", "error", err)
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	// The devnet outlives this process, so testcontainers must not reap it on exit.
	err = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	if err != nil {
		return nil, fmt.Errorf("failed to set TESTCONTAINERS_RYUK_DISABLED: %w", err)
	}

	dn, err := devnet.New(devnet.DevnetSpec{
		DeployID: e.deployID,
		Topology: e.topology,
		FRRImage: devnet.FRRImage(),
	}, e.log, dockerClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create devnet: %w", err)
	}

	return &LocalDevnet{Devnet: dn, dockerClient: dockerClient}, nil
}

func withDevnet(f func(ctx context.Context, e *env, dn *LocalDevnet, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
		dn, err := NewLocalDevnet(e)
		if err != nil {
			return err
		}
		defer dn.dockerClient.Close()
		return f(ctx, e, dn, cmd, args)
	})
}
