package devnetcmd

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/malbeclabs/bfdconverge/e2e"
	"github.com/malbeclabs/bfdconverge/e2e/internal/logging"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

const (
	envDeployID    = "BFDCONVERGE_DEPLOY_ID"
	envDebug       = "BFDCONVERGE_DEBUG"
	envFixturesDir = "BFDCONVERGE_FIXTURES_DIR"

	defaultDeployID = "bfd-local"
	defaultScenario = "bfd_topo4"
	defaultEnvFile  = "images.env"

	topologyFile = "topology.yaml"
)

func Run() ExitCode {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bfdcheck",
		Short:         "Bring up FRR topologies in containers and verify their BFD sessions converge.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", os.Getenv(envDebug) != "", "set debug logging level (env: "+envDebug+")")
	flags.String("deploy-id", envWithDefault(envDeployID, defaultDeployID), "deploy identifier (env: "+envDeployID+", default: "+defaultDeployID+")")
	flags.String("fixtures", os.Getenv(envFixturesDir), "fixture directory on disk; the embedded fixtures are used when empty (env: "+envFixturesDir+")")
	flags.String("scenario", defaultScenario, "scenario directory holding "+topologyFile+" and per-router expected state")
	flags.String("env-file", defaultEnvFile, "env file with image overrides")

	rootCmd.AddCommand(
		NewTopologyCmd().Command(),
		NewUpCmd().Command(),
		NewStopCmd().Command(),
		NewDownCmd().Command(),
		NewCheckCmd().Command(),
	)

	return rootCmd
}

// env is the state every subcommand starts from.
type env struct {
	log      *slog.Logger
	deployID string
	fixtures fs.FS
	scenario string
	envFile  string
	topology *topology.Topology
}

func withEnv(f func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		e, err := newEnv(cmd)
		if err != nil {
			return err
		}

		err = f(ctx, e, cmd, args)
		if err != nil {
			e.log.Error("failed to run command", "error", err)
			return err
		}
		return nil
	}
}

func newEnv(cmd *cobra.Command) (*env, error) {
	flags := cmd.Root().PersistentFlags()
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	deployID, err := flags.GetString("deploy-id")
	if err != nil {
		return nil, fmt.Errorf("failed to get deploy-id flag: %w", err)
	}
	fixturesDir, err := flags.GetString("fixtures")
	if err != nil {
		return nil, fmt.Errorf("failed to get fixtures flag: %w", err)
	}
	scenario, err := flags.GetString("scenario")
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario flag: %w", err)
	}
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return nil, fmt.Errorf("failed to get env-file flag: %w", err)
	}

	fixtures := e2e.Fixtures
	if fixturesDir != "" {
		fixtures = os.DirFS(fixturesDir)
	}

	topo, err := topology.Load(fixtures, path.Join(scenario, topologyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario %s: %w", scenario, err)
	}

	return &env{
		log:      logging.NewLogger(cmd.ErrOrStderr(), verbose),
		deployID: deployID,
		fixtures: fixtures,
		scenario: scenario,
		envFile:  envFile,
		topology: topo,
	}, nil
}

func envWithDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}
