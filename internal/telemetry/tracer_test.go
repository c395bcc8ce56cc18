package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-engine/internal/config"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.Telemetry{}, "storefront-api", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracerWithEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.Telemetry{OTLPEndpoint: "localhost:4318", Insecure: true}, "storefront-api", "test")
	require.NoError(t, err)
	// nothing was exported, so the flush finishes without a collector
	require.NoError(t, shutdown(context.Background()))
}
