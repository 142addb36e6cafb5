//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"HoneyHubUsers/internal/store/storetest"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:17",
		tcpostgres.WithDatabase("users"),
		tcpostgres.WithUsername("users"),
		tcpostgres.WithPassword("users"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Open(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.sql"}, applied)

	again, err := Migrate(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, again)
	return pool
}

type backend struct {
	*UsersStore
	*PlansStore
	*OutboxStore
}

func TestStoreConformance(t *testing.T) {
	pool := startPostgres(t)

	storetest.Run(t, func(t *testing.T) storetest.Backend {
		_, err := pool.Exec(context.Background(), `TRUNCATE outbox_messages, user_logins, users RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		return backend{
			UsersStore:  NewUsersStore(pool),
			PlansStore:  NewPlansStore(pool),
			OutboxStore: NewOutboxStore(pool),
		}
	})
}
