package devnetcmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/malbeclabs/bfdconverge/e2e/internal/arista"
	"github.com/malbeclabs/bfdconverge/e2e/internal/bfd"
	"github.com/malbeclabs/bfdconverge/e2e/internal/fixtures"
	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	"github.com/malbeclabs/bfdconverge/e2e/internal/querier"
	"github.com/malbeclabs/bfdconverge/e2e/internal/verify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	envEAPIUsername = "BFDCONVERGE_EAPI_USERNAME"
	envEAPIPassword = "BFDCONVERGE_EAPI_PASSWORD"

	defaultEAPIPort = 80
)

type CheckCmd struct {
	attempts    int
	interval    time.Duration
	metricsAddr string
	eapi        map[string]string
	eapiUser    string
	eapiPass    string
}

func NewCheckCmd() *CheckCmd {
	return &CheckCmd{}
}

func (c *CheckCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Poll every router until its BFD peers match the scenario's expected state",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			if c.metricsAddr != "" {
				_, stop, err := serveMetrics(e, c.metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			queriers, closeQueriers, err := c.queriers(ctx, e)
			if err != nil {
				return err
			}
			defer closeQueriers()

			targets, err := verify.BFDTargets(e.topology, e.scenario, queriers)
			if err != nil {
				return err
			}

			loader := fixtures.NewLoader(e.fixtures, fixtures.WithNormalizer(bfd.Normalize))
			v := verify.New(e.log, loader, poll.Config{Attempts: c.attempts, Interval: c.interval})
			report, err := v.Run(ctx, targets)
			if report != nil {
				report.Render(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}
			return report.Err()
		}),
	}

	cmd.Flags().IntVar(&c.attempts, "attempts", poll.DefaultAttempts, "Maximum polls per router")
	cmd.Flags().DurationVar(&c.interval, "interval", poll.DefaultInterval, "Wait between polls")
	cmd.Flags().StringVar(&c.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while checking")
	cmd.Flags().StringToStringVar(&c.eapi, "eapi", nil, "Query a router over Arista eAPI instead of vtysh, as router=host[:port]")
	cmd.Flags().StringVar(&c.eapiUser, "eapi-username", envWithDefault(envEAPIUsername, "admin"), "eAPI username (env: "+envEAPIUsername+")")
	cmd.Flags().StringVar(&c.eapiPass, "eapi-password", os.Getenv(envEAPIPassword), "eAPI password (env: "+envEAPIPassword+")")

	return cmd
}

// queriers picks a backend per router: eAPI for routers named in --eapi, and
// vtysh inside the devnet container for the rest.
func (c *CheckCmd) queriers(ctx context.Context, e *env) (map[string]poll.Querier, func(), error) {
	queriers := make(map[string]poll.Querier, len(e.topology.Routers))
	for router, addr := range c.eapi {
		if _, ok := e.topology.Router(router); !ok {
			return nil, nil, fmt.Errorf("--eapi: unknown router %s", router)
		}
		host, port, err := splitHostPort(addr, defaultEAPIPort)
		if err != nil {
			return nil, nil, fmt.Errorf("--eapi %s: %w", router, err)
		}
		runner, err := arista.Connect(host, port, c.eapiUser, c.eapiPass)
		if err != nil {
			return nil, nil, err
		}
		queriers[router] = querier.New(router, runner, arista.ShowPeers())
	}
	if len(queriers) == len(e.topology.Routers) {
		return queriers, func() {}, nil
	}

	dn, err := NewLocalDevnet(e)
	if err != nil {
		return nil, nil, err
	}
	if err := dn.Attach(ctx); err != nil {
		_ = dn.dockerClient.Close()
		return nil, nil, err
	}
	for name, q := range dn.Queriers(bfd.ShowPeers()) {
		if _, ok := queriers[name]; !ok {
			queriers[name] = q
		}
	}
	return queriers, func() { _ = dn.dockerClient.Close() }, nil
}

func splitHostPort(addr string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		return addr, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

// serveMetrics serves the default registry on addr and returns the bound address.
func serveMetrics(e *env, addr string) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	e.log.Info("--> Prometheus metrics server listening", "address", listener.Addr().String())
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("Metrics server error", "error", err)
		}
	}()
	return listener.Addr().String(), func() { _ = server.Close() }, nil
}
