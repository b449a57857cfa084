package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// Pull fetches imageName through the docker API, waiting until the pull
// finishes.
func Pull(ctx context.Context, log *slog.Logger, cli client.ImageAPIClient, imageName string) error {
	log.Debug("--> Pulling image", "image", imageName)

	rc, err := cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull docker image %s: %w", imageName, err)
	}
	defer rc.Close()

	// The pull is only complete once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull docker image %s: %w", imageName, err)
	}
	return nil
}
