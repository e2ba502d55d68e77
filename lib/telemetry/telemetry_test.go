package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpoints(t *testing.T) {
	tel, err := Setup(context.Background(), "sheltercrawl-test", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestSamplePerfStats(t *testing.T) {
	stats := SamplePerfStats(10 * time.Millisecond)
	require.Positive(t, stats.Goroutines)
	require.GreaterOrEqual(t, stats.LiveObjects, int64(0))
}
