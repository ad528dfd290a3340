//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/wcstore/pkg/wc/db"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// startPostgres runs a throwaway PostgreSQL container and returns a store
// connected to it.
func startPostgres(t *testing.T) *store.GORMStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wcstore_test"),
		postgres.WithUsername("wcstore_test"),
		postgres.WithPassword("wcstore_test"),
		testcontainers.WithWaitStrategyAndDeadline(2*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	st, err := store.New(&store.Config{
		Type: store.DatabaseTypePostgres,
		Postgres: store.PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "wcstore_test",
			User:     "wcstore_test",
			Password: "wcstore_test",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPostgresWorkingCopy(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, st.Healthcheck(ctx))

	d := db.New(st, db.Options{})
	root, err := d.Init(ctx, "/wc", db.InitOptions{ReposRootURL: "https://svn.example.com/repo"})
	require.NoError(t, err)

	require.NoError(t, root.OpAddDirectory(ctx, "A", db.Props{"svn:ignore": "*.o"}))
	require.NoError(t, root.OpAddDirectory(ctx, "A/sub", nil))
	require.NoError(t, root.GlobalCommit(ctx, "", db.CommitParams{NewRevision: 1, ChangedAuthor: "alice"}))

	info, err := root.ReadInfo(ctx, "A/sub")
	require.NoError(t, err)
	assert.Equal(t, db.StatusNormal, info.Status)
	assert.Equal(t, int64(1), info.Revision)

	require.NoError(t, root.OpMove(ctx, "A", "B"))

	info, err = root.ReadInfo(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, db.StatusMovedHere, info.Status)

	info, err = root.ReadInfo(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, db.StatusDeleted, info.Status)
	assert.Equal(t, "B", info.MovedTo)

	infos, err := root.ReadSubtreeInfo(ctx, "B")
	require.NoError(t, err)
	assert.Contains(t, infos, "B/sub")
}

func TestPostgresUniqueViolation(t *testing.T) {
	st := startPostgres(t)
	gdb := st.DB()

	require.NoError(t, gdb.Create(&store.WCRoot{LocalAbspath: store.StrPtr("/wc")}).Error)
	err := gdb.Create(&store.WCRoot{LocalAbspath: store.StrPtr("/wc")}).Error
	require.Error(t, err)
	assert.True(t, store.IsUniqueConstraintError(err))

	d := db.New(st, db.Options{})
	_, err = d.Init(context.Background(), "/wc", db.InitOptions{ReposRootURL: "https://svn.example.com/repo"})
	assert.ErrorContains(t, err, "already exists")
}
