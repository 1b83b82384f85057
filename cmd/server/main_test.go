package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/posturepulse/dashboard/internal/config"
	"github.com/posturepulse/dashboard/internal/textgen"
)

func TestNewGeneratorWithoutEndpoint(t *testing.T) {
	gen, err := newGenerator(config.TextGenConfig{Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, textgen.Unavailable{}, gen)
}

func TestNewGeneratorWithEndpoint(t *testing.T) {
	gen, err := newGenerator(config.TextGenConfig{Endpoint: "http://localhost:9000/generate", Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &textgen.Client{}, gen)

	_, err = newGenerator(config.TextGenConfig{Endpoint: "ftp://example"}, zap.NewNop())
	assert.Error(t, err)
}
