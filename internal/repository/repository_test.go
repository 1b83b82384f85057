package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/posturepulse/dashboard/internal/config"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	repo, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite"})

	assert.Nil(t, repo)
	assert.ErrorContains(t, err, `unknown store driver "sqlite"`)
}
