package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	dockercontainer "github.com/docker/docker/api/types/container"
	dockerfilters "github.com/docker/docker/api/types/filters"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

type ResourceAPIClient interface {
	client.ContainerAPIClient
	client.NetworkAPIClient
}

// RemoveByLabels force-removes every container and then every network carrying
// all of labels. Removal continues past individual failures.
func RemoveByLabels(ctx context.Context, log *slog.Logger, cli ResourceAPIClient, labels map[string]string) error {
	filters := dockerfilters.NewArgs()
	for k, v := range labels {
		filters.Add("label", k+"="+v)
	}

	containers, err := cli.ContainerList(ctx, dockercontainer.ListOptions{All: true, Filters: filters})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	var errs []error
	for _, c := range containers {
		log.Debug("--> Removing container", "container", c.ID[:12], "names", c.Names)
		if err := cli.ContainerRemove(ctx, c.ID, dockercontainer.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove container %s: %w", c.ID[:12], err))
		}
	}

	networks, err := cli.NetworkList(ctx, dockernetwork.ListOptions{Filters: filters})
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("failed to list networks: %w", err))...)
	}
	for _, n := range networks {
		log.Debug("--> Removing network", "network", n.Name)
		if err := cli.NetworkRemove(ctx, n.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove network %s: %w", n.Name, err))
		}
	}

	log.Info("--> Removed resources", "containers", len(containers), "networks", len(networks))
	return errors.Join(errs...)
}
