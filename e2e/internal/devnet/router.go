package devnet

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v5"
	dockercontainer "github.com/docker/docker/api/types/container"
	dockerfilters "github.com/docker/docker/api/types/filters"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/malbeclabs/bfdconverge/e2e/internal/bfd"
	"github.com/malbeclabs/bfdconverge/e2e/internal/docker"
	"github.com/malbeclabs/bfdconverge/e2e/internal/fixtures"
	"github.com/malbeclabs/bfdconverge/e2e/internal/logging"
	"github.com/malbeclabs/bfdconverge/e2e/internal/netlink"
	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	"github.com/malbeclabs/bfdconverge/e2e/internal/querier"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
	"github.com/testcontainers/testcontainers-go"
)

const (
	frrConfigDir  = "/etc/frr"
	frrInitScript = "/usr/lib/frr/frrinit.sh"

	addrWaitTimeout  = 15 * time.Second
	addrWaitInterval = 250 * time.Millisecond
)

var (
	//go:embed frr/daemons.tmpl
	daemonsTemplate string
	//go:embed frr/frr.conf.tmpl
	frrConfigTemplate string
	//go:embed frr/vtysh.conf
	vtyshConfig []byte
)

// The container idles until its config is in place; daemons are started by exec.
var routerEntrypoint = []string{"/bin/sh", "-c", "trap 'exit 0' TERM; sleep infinity & wait"}

var routerSysctls = map[string]string{
	"net.ipv4.ip_forward":              "1",
	"net.ipv6.conf.all.disable_ipv6":   "0",
	"net.ipv6.conf.all.forwarding":     "1",
	"net.ipv6.conf.all.accept_dad":     "0",
	"net.ipv6.conf.default.accept_dad": "0",
}

// Router is one FRR container. Interfaces are attached in topology order, so the
// n-th interface is ethN inside the container.
type Router struct {
	dn  *Devnet
	log *slog.Logger

	*topology.Router

	ContainerID string
}

// ContainerName is the docker name of router in the devnet deployID.
func ContainerName(deployID, router string) string {
	return deployID + "-" + router
}

func (r *Router) dockerContainerName() string {
	return ContainerName(r.dn.Spec.DeployID, r.Name)
}

func (r *Router) Start(ctx context.Context) error {
	r.log.Debug("==> Starting router", "image", r.dn.Spec.FRRImage, "interfaces", len(r.Interfaces))
	start := time.Now()

	first := &r.Interfaces[0]
	firstNetwork := r.dn.Networks[first.Switch].Name

	// Create the router container, but don't start it yet.
	req := testcontainers.ContainerRequest{
		Image: r.dn.Spec.FRRImage,
		Name:  r.dockerContainerName(),
		ConfigModifier: func(cfg *dockercontainer.Config) {
			cfg.Hostname = r.Name
		},
		Entrypoint: routerEntrypoint,
		Privileged: true,
		Networks:   []string{firstNetwork},
		EndpointSettingsModifier: func(m map[string]*dockernetwork.EndpointSettings) {
			if s, ok := m[firstNetwork]; ok {
				s.IPAMConfig = endpointIPAM(first)
			}
		},
		HostConfigModifier: func(hc *dockercontainer.HostConfig) {
			hc.Sysctls = routerSysctls
		},
		Resources: dockercontainer.Resources{
			NanoCPUs: defaultContainerNanoCPUs,
			Memory:   defaultContainerMemory,
		},
		Labels: r.dn.labels,
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          false,
		Logger:           logging.NewTestcontainersAdapter(r.log),
	})
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := container.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	r.ContainerID = container.GetContainerID()

	// Docker names interfaces in attach order, so the remaining switches are
	// connected one by one after start.
	for i := 1; i < len(r.Interfaces); i++ {
		iface := &r.Interfaces[i]
		err := r.dn.dockerClient.NetworkConnect(ctx, r.dn.Networks[iface.Switch].Name, r.ContainerID, &dockernetwork.EndpointSettings{
			IPAMConfig: endpointIPAM(iface),
		})
		if err != nil {
			return fmt.Errorf("failed to attach %s to switch %s: %w", iface.Name, iface.Switch, err)
		}
	}

	// bfdd binds its listen addresses at startup, so every address must exist
	// before the daemons run.
	if err := r.assignAddresses(ctx); err != nil {
		return err
	}

	if err := r.writeConfig(ctx, container); err != nil {
		return err
	}

	if _, err := r.Exec(ctx, []string{frrInitScript, "start"}); err != nil {
		return fmt.Errorf("failed to start daemons: %w", err)
	}

	if err := r.waitReady(ctx); err != nil {
		return err
	}

	r.log.Debug("--> Router started", "container", shortContainerID(r.ContainerID), "duration", time.Since(start))
	return nil
}

func (r *Router) assignAddresses(ctx context.Context) error {
	for _, iface := range r.Interfaces {
		for _, p := range iface.Addresses {
			cmd := []string{"ip", "addr", "replace", p.String(), "dev", iface.Name}
			if p.Addr().Is6() {
				cmd = append(cmd, "nodad")
			}
			if _, err := r.Exec(ctx, cmd); err != nil {
				return fmt.Errorf("failed to assign %s to %s: %w", p, iface.Name, err)
			}
		}
	}

	err := poll.Until(ctx, func() (bool, error) {
		out, err := r.ExecStdout(ctx, []string{"ip", "-j", "addr", "show"})
		if err != nil {
			return false, err
		}
		links, err := netlink.ParseLinks(out)
		if err != nil {
			return false, err
		}
		for _, iface := range r.Interfaces {
			if missing := netlink.MissingAddrs(links, iface.Name, interfacePrefixes(&iface)); len(missing) > 0 {
				r.log.Debug("--> Waiting for addresses", "interface", iface.Name, "missing", missing)
				return false, nil
			}
		}
		return true, nil
	}, addrWaitTimeout, addrWaitInterval)
	if err != nil {
		return fmt.Errorf("failed to verify interface addresses: %w", err)
	}
	return nil
}

func interfacePrefixes(iface *topology.Interface) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(iface.Addresses))
	for _, p := range iface.Addresses {
		out = append(out, p.Prefix)
	}
	return out
}

func (r *Router) writeConfig(ctx context.Context, container testcontainers.Container) error {
	daemons, err := RenderDaemons(r.Router)
	if err != nil {
		return err
	}
	frrConfig, err := RenderFRRConfig(r.dn.Spec.Topology, r.Router)
	if err != nil {
		return err
	}

	files := []struct {
		name     string
		contents []byte
	}{
		{"daemons", daemons},
		{"frr.conf", frrConfig},
		{"vtysh.conf", vtyshConfig},
	}
	for _, f := range files {
		path := frrConfigDir + "/" + f.name
		r.log.Debug("==> Writing FRR config", "path", path)
		if err := container.CopyToContainer(ctx, f.contents, path, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	// The daemons run as frr and read their config after dropping privileges.
	if _, err := r.Exec(ctx, []string{"chown", "-R", "frr:frr", frrConfigDir}); err != nil {
		return fmt.Errorf("failed to chown %s: %w", frrConfigDir, err)
	}
	return nil
}

// waitReady blocks until vtysh can talk to bfdd.
func (r *Router) waitReady(ctx context.Context) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			r.log.Debug("--> Waiting for daemons", "attempt", attempt)
		}
		_, err := docker.Exec(ctx, r.dn.dockerClient, r.ContainerID, []string{"vtysh", "-c", bfd.ShowPeersCommand})
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(r.dn.Spec.ReadyTimeout))
	if err != nil {
		return fmt.Errorf("daemons not ready after %s: %w", r.dn.Spec.ReadyTimeout, err)
	}
	return nil
}

// Attach binds to the already running container of a devnet started earlier.
func (r *Router) Attach(ctx context.Context) error {
	containers, err := r.dn.dockerClient.ContainerList(ctx, dockercontainer.ListOptions{
		Filters: dockerfilters.NewArgs(
			dockerfilters.Arg("name", r.dockerContainerName()),
			dockerfilters.Arg("label", LabelDeployID+"="+r.dn.Spec.DeployID),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range containers {
		if len(c.Names) > 0 && c.Names[0] == "/"+r.dockerContainerName() {
			r.ContainerID = c.ID
			return nil
		}
	}
	return fmt.Errorf("router %s is not running in devnet %s", r.Name, r.dn.Spec.DeployID)
}

// Exec runs cmd inside the router container.
func (r *Router) Exec(ctx context.Context, cmd []string) ([]byte, error) {
	r.log.Debug("--> Executing command", "command", cmd)
	output, err := docker.Exec(ctx, r.dn.dockerClient, r.ContainerID, cmd, docker.WithOutputLogger(r.log))
	if err != nil {
		// NOTE: The output is returned on error since it usually says what went wrong.
		return output, fmt.Errorf("failed to execute command on router %s: %w", r.Name, err)
	}
	return output, nil
}

// ExecStdout runs cmd inside the router container and returns only its stdout,
// for output that gets parsed.
func (r *Router) ExecStdout(ctx context.Context, cmd []string) ([]byte, error) {
	r.log.Debug("--> Executing command", "command", cmd)
	output, err := docker.ExecStdout(ctx, r.dn.dockerClient, r.ContainerID, cmd, docker.WithOutputLogger(r.log))
	if err != nil {
		return output, fmt.Errorf("failed to execute command on router %s: %w", r.Name, err)
	}
	return output, nil
}

// Apply runs a shell command and fails on a non-zero exit.
func (r *Router) Apply(ctx context.Context, command string) ([]byte, error) {
	return r.Exec(ctx, []string{"sh", "-c", command})
}

// Querier returns a querier that runs cmd through vtysh on this router.
func (r *Router) Querier(cmd querier.Command) *querier.Querier {
	return querier.New(r.Name, querier.Vtysh(querier.ExecutorFunc(r.ExecStdout)), cmd)
}

func (r *Router) Stop(ctx context.Context) error {
	if r.ContainerID == "" {
		return nil
	}
	r.log.Debug("--> Stopping router", "container", shortContainerID(r.ContainerID))
	if err := r.dn.dockerClient.ContainerStop(ctx, r.ContainerID, dockercontainer.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop router %s: %w", r.Name, err)
	}
	return nil
}

// RenderDaemons renders /etc/frr/daemons, passing the router's listen filter to
// bfdd.
func RenderDaemons(r *topology.Router) ([]byte, error) {
	return render("daemons", daemonsTemplate, map[string]any{
		"Hostname":    r.Name,
		"BFDDOptions": bfd.ListenOptions(r),
	})
}

// RenderFRRConfig renders the integrated frr.conf holding the router's bfd peers.
func RenderFRRConfig(topo *topology.Topology, r *topology.Router) ([]byte, error) {
	return render("frr.conf", frrConfigTemplate, map[string]any{
		"Hostname": r.Name,
		"BFD":      bfd.PeerConfig(topo, r.Name),
	})
}

func render(name, text string, data any) ([]byte, error) {
	out, err := fixtures.Render(name, []byte(text), data)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return out, nil
}
