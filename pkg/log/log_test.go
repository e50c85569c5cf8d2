package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/log"
)

func TestNewValidatesFormatter(t *testing.T) {
	_, err := log.New(log.Config{Formatter: "protobuf"})
	require.Error(t, err)
}

func TestNewValidatesLevel(t *testing.T) {
	_, err := log.New(log.Config{Level: "not-a-level"})
	require.Error(t, err)
}

func TestWithLoggerRoundTrips(t *testing.T) {
	logger, err := log.New(log.Config{Level: "debug", Formatter: "json"})
	require.NoError(t, err)

	ctx := log.WithLogger(context.Background(), logger)
	got := log.GetLogger(ctx)

	assert.Same(t, logger, got)
}

func TestGetLoggerDefaultsWithoutPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		log.GetLogger(context.Background())
	})
}
