package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/exam-committee-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	assert.False(t, repo.Enabled())
	var dest []string
	err := repo.Get(ctx, "reference:teachers", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))

	require.NoError(t, repo.Set(ctx, "reference:teachers", []string{"a"}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(ctx, "reference:*"))
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
}
