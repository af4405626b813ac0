//go:build integration

package retention_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/retention"
	"custodia/pkg/testutil/containers"
)

func TestRedisLocker_Exclusivity(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	locker := retention.NewRedisLocker(rc.Client)
	ctx := context.Background()

	token, ok, err := locker.Acquire(ctx, "custodia:retention:sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A second acquirer is refused while the lease is held.
	_, ok, err = locker.Acquire(ctx, "custodia:retention:sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Release with the wrong token must not free the lease.
	require.NoError(t, locker.Release(ctx, "custodia:retention:sweep", "stolen-token"))
	_, ok, err = locker.Acquire(ctx, "custodia:retention:sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Release with the holder's token frees it for the next run.
	require.NoError(t, locker.Release(ctx, "custodia:retention:sweep", token))
	_, ok, err = locker.Acquire(ctx, "custodia:retention:sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_LeaseExpires(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	locker := retention.NewRedisLocker(rc.Client)
	ctx := context.Background()

	_, ok, err := locker.Acquire(ctx, "custodia:retention:sweep", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok, err := locker.Acquire(ctx, "custodia:retention:sweep", time.Minute)
		return err == nil && ok
	}, 5*time.Second, 200*time.Millisecond)
}
