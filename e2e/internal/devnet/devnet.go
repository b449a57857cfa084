// Package devnet runs a topology as FRR router containers attached to one docker
// network per switch.
package devnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/netip"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/docker/docker/client"
	"github.com/malbeclabs/bfdconverge/e2e/internal/docker"
	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	"github.com/malbeclabs/bfdconverge/e2e/internal/querier"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
)

const (
	DefaultFRRImage = "quay.io/frrouting/frr:10.2.1"

	defaultContainerNanoCPUs = 1_000_000_000     // 1 core
	defaultContainerMemory   = 512 * 1024 * 1024 // 512MB
	defaultReadyTimeout      = 60 * time.Second

	labelsKeyDomain = "bfdconverge.malbeclabs.com"
)

// LabelDeployID is the label carrying the deploy ID on every resource.
const LabelDeployID = labelsKeyDomain + "/deploy-id"

type DevnetSpec struct {
	DeployID string
	Topology *topology.Topology
	FRRImage string

	// ReadyTimeout bounds the wait for each router's daemons to answer vtysh.
	ReadyTimeout time.Duration

	// ExtraLabels are added to every resource in addition to the deploy ID labels.
	ExtraLabels map[string]string
}

func (s *DevnetSpec) Validate() error {
	if s.DeployID == "" {
		return fmt.Errorf("deployID is required")
	}
	if s.Topology == nil {
		return fmt.Errorf("topology is required")
	}
	if err := s.Topology.Validate(); err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	if len(s.Topology.Routers) == 0 {
		return fmt.Errorf("topology has no routers")
	}
	for _, r := range s.Topology.Routers {
		if len(r.Interfaces) == 0 {
			return fmt.Errorf("router %s has no interfaces", r.Name)
		}
		// Docker names container interfaces in attach order.
		for i, iface := range r.Interfaces {
			if want := fmt.Sprintf("eth%d", i); iface.Name != want {
				return fmt.Errorf("router %s: interface %d must be named %s, got %s", r.Name, i, want, iface.Name)
			}
		}
	}
	if s.FRRImage == "" {
		s.FRRImage = DefaultFRRImage
	}
	if s.ReadyTimeout < 0 {
		return fmt.Errorf("readyTimeout must be non-negative")
	}
	if s.ReadyTimeout == 0 {
		s.ReadyTimeout = defaultReadyTimeout
	}
	return nil
}

// SetupError reports that the devnet could not be brought up. Verification
// against a devnet that failed setup is meaningless, so callers skip it.
type SetupError struct {
	Component string
	Err       error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("devnet setup failed: %s: %v", e.Component, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func IsSetupError(err error) bool {
	var setupErr *SetupError
	return errors.As(err, &setupErr)
}

type Devnet struct {
	Spec DevnetSpec

	log          *slog.Logger
	dockerClient *client.Client
	labels       map[string]string
	mu           sync.RWMutex

	Networks map[string]*Network
	Routers  []*Router
}

func New(spec DevnetSpec, logger *slog.Logger, dockerClient *client.Client) (*Devnet, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate devnet spec: %w", err)
	}

	log := logger.With("deployID", spec.DeployID)

	dn := &Devnet{
		Spec:         spec,
		log:          log,
		dockerClient: dockerClient,
		labels:       Labels(spec.DeployID, spec.ExtraLabels),
		Networks:     make(map[string]*Network, len(spec.Topology.Switches)),
	}

	// NOTE: The devnet and log fields need to be set before calling Create or Start,
	// which fill in the rest.
	for i := range spec.Topology.Switches {
		sw := &spec.Topology.Switches[i]
		dn.Networks[sw.Name] = &Network{
			dn:     dn,
			log:    log.With("component", "network", "switch", sw.Name),
			Switch: sw,
		}
	}
	for i := range spec.Topology.Routers {
		r := &spec.Topology.Routers[i]
		dn.Routers = append(dn.Routers, &Router{
			dn:     dn,
			log:    log.With("component", "router", "router", r.Name),
			Router: r,
		})
	}

	return dn, nil
}

// Labels returns the labels put on every resource of deployID.
func Labels(deployID string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+3)
	maps.Copy(labels, extra)
	labels[labelsKeyDomain] = "true"
	labels[labelsKeyDomain+"/type"] = "devnet"
	labels[LabelDeployID] = deployID
	return labels
}

// Start creates the switch networks and brings every router up with its
// addresses assigned and its daemons answering. Any failure is a *SetupError.
func (d *Devnet) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Info("==> Starting devnet", "topology", d.Spec.Topology.Name, "image", d.Spec.FRRImage)
	start := time.Now()

	var subnets []netip.Prefix
	for _, sw := range d.Spec.Topology.Switches {
		for _, p := range sw.Subnets {
			subnets = append(subnets, p.Prefix)
		}
	}
	if err := docker.CheckSubnetsAvailable(ctx, d.dockerClient, subnets); err != nil {
		return &SetupError{Component: "networks", Err: err}
	}

	for _, sw := range d.Spec.Topology.Switches {
		if err := d.Networks[sw.Name].Create(ctx); err != nil {
			return &SetupError{Component: "switch " + sw.Name, Err: err}
		}
	}

	// Routers are independent until BFD starts talking, so bring them up together.
	pool := pond.NewPool(len(d.Routers))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, r := range d.Routers {
		group.SubmitErr(func() error {
			if err := r.Start(ctx); err != nil {
				return &SetupError{Component: "router " + r.Name, Err: err}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		var setupErr *SetupError
		if errors.As(err, &setupErr) {
			return setupErr
		}
		return &SetupError{Component: "routers", Err: err}
	}

	d.log.Info("--> Devnet started", "routers", len(d.Routers), "duration", time.Since(start))
	return nil
}

// Attach binds every router to its running container, for a devnet started by
// an earlier process.
func (d *Devnet) Attach(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.Routers {
		if err := r.Attach(ctx); err != nil {
			return err
		}
	}
	d.log.Debug("--> Attached to devnet", "routers", len(d.Routers))
	return nil
}

func (d *Devnet) Router(name string) (*Router, bool) {
	for _, r := range d.Routers {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// ApplyStaticRoutes installs every router's static routes in its kernel table.
func (d *Devnet) ApplyStaticRoutes(ctx context.Context) error {
	for _, r := range d.Routers {
		for _, route := range r.Routes {
			cmd := fmt.Sprintf("ip route add %s via %s", route.Prefix, route.Via)
			if _, err := r.Apply(ctx, cmd); err != nil {
				return fmt.Errorf("router %s: %w", r.Name, err)
			}
		}
		if len(r.Routes) > 0 {
			r.log.Debug("--> Static routes applied", "routes", len(r.Routes))
		}
	}
	return nil
}

// Queriers returns a vtysh querier running cmd for every router.
func (d *Devnet) Queriers(cmd querier.Command) map[string]poll.Querier {
	queriers := make(map[string]poll.Querier, len(d.Routers))
	for _, r := range d.Routers {
		queriers[r.Name] = r.Querier(cmd)
	}
	return queriers
}

// Stop stops every router container without removing it.
func (d *Devnet) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Info("==> Stopping devnet")
	var errs []error
	for _, r := range d.Routers {
		if err := r.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Destroy removes every container and network labelled with the deploy ID,
// including leftovers of earlier runs.
func (d *Devnet) Destroy(ctx context.Context) error {
	d.log.Info("==> Destroying devnet")
	return Destroy(ctx, d.log, d.dockerClient, d.Spec.DeployID)
}

func Destroy(ctx context.Context, log *slog.Logger, dockerClient docker.ResourceAPIClient, deployID string) error {
	return docker.RemoveByLabels(ctx, log, dockerClient, map[string]string{LabelDeployID: deployID})
}

func shortContainerID(id string) string {
	if len(id) < 12 {
		return id
	}
	return id[:12]
}
