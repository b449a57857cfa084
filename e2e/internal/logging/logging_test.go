package logging_test

import (
	"bytes"
	"testing"

	"github.com/malbeclabs/bfdconverge/e2e/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestLogging_NewLogger_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logging.NewLogger(&buf, false)
	log.Debug("hidden")
	log.Info("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")

	buf.Reset()
	logging.NewLogger(&buf, true).Debug("debug line")
	require.Contains(t, buf.String(), "debug line")
}

func TestLogging_TestcontainersAdapter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	adapter := logging.NewTestcontainersAdapter(logging.NewLogger(&buf, false))

	adapter.Printf("🐳 Creating container for image %s", "frr")
	require.Empty(t, buf.String())

	adapter.Printf("Connected to docker: %s", "x")
	require.Empty(t, buf.String())

	adapter.Printf("❌ Container failed: %s", "r1")
	require.Contains(t, buf.String(), "Container failed: r1")
}
