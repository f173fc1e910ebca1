package registry

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/astreltsov/db-mcp-server/dberr"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(nil)
	t.Cleanup(r.CloseAll)
	return r
}

func addSQLite(t *testing.T, r *Registry, id, path string) {
	t.Helper()
	err := r.Add(context.Background(), id, "sqlite", Params{Path: path}, SourceRuntime)
	require.NoError(t, err)
}

func TestAddThenTest(t *testing.T) {
	r := newTestRegistry(t)
	addSQLite(t, r, "db1", ":memory:")
	require.NoError(t, r.Test(context.Background(), "db1"))
}

func TestAddDuplicateIdentifier(t *testing.T) {
	r := newTestRegistry(t)
	addSQLite(t, r, "db1", ":memory:")

	err := r.Add(context.Background(), "db1", "sqlite", Params{Path: ":memory:"}, SourceRuntime)
	require.Equal(t, dberr.DuplicateIdentifier, dberr.KindOf(err))

	// The original connection is untouched.
	require.NoError(t, r.Test(context.Background(), "db1"))
}

func TestAddInvalidKind(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Add(context.Background(), "db1", "oracle", Params{}, SourceRuntime)
	require.Equal(t, dberr.InvalidParams, dberr.KindOf(err))
}

func TestAddMissingParams(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Add(context.Background(), "db1", "sqlite", Params{}, SourceRuntime)
	require.Equal(t, dberr.InvalidParams, dberr.KindOf(err))

	err = r.Add(context.Background(), "db2", "postgres", Params{Host: "localhost"}, SourceRuntime)
	require.Equal(t, dberr.InvalidParams, dberr.KindOf(err))

	// A failed add must not leave a registry entry behind.
	require.Empty(t, r.List())
}

func TestAddConnectionFailed(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Add(context.Background(), "db1", "sqlite",
		Params{Path: filepath.Join(t.TempDir(), "missing", "db.sqlite")}, SourceRuntime)
	require.Equal(t, dberr.ConnectionFailed, dberr.KindOf(err))
	require.Empty(t, r.List())
}

func TestTestUnknownConnection(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Test(context.Background(), "nope")
	require.Equal(t, dberr.NotFound, dberr.KindOf(err))
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(t)
	addSQLite(t, r, "db1", ":memory:")

	require.NoError(t, r.Remove("db1"))

	err := r.Test(context.Background(), "db1")
	require.Equal(t, dberr.NotFound, dberr.KindOf(err))

	err = r.Remove("db1")
	require.Equal(t, dberr.NotFound, dberr.KindOf(err))
}

func TestRemoveActiveTransactionRollsBack(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	addSQLite(t, r, "db1", path)

	err := r.Do("db1", func(h *Handle) error {
		_, err := h.Ext().ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY)")
		return err
	})
	require.NoError(t, err)

	require.NoError(t, r.Begin(ctx, "db1"))
	err = r.Do("db1", func(h *Handle) error {
		require.True(t, h.InTransaction())
		_, err := h.Ext().ExecContext(ctx, "INSERT INTO items (id) VALUES (1)")
		return err
	})
	require.NoError(t, err)

	// Remove force-rolls-back the open transaction before closing.
	require.NoError(t, r.Remove("db1"))

	addSQLite(t, r, "db2", path)
	var count int
	err = r.Do("db2", func(h *Handle) error {
		return h.Ext().QueryRowxContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count)
	})
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestTransactionStateMachine(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	addSQLite(t, r, "db1", ":memory:")

	// commit/rollback while idle
	err := r.Commit("db1")
	require.Equal(t, dberr.NoActiveTransaction, dberr.KindOf(err))
	err = r.Rollback("db1")
	require.Equal(t, dberr.NoActiveTransaction, dberr.KindOf(err))

	// begin twice
	require.NoError(t, r.Begin(ctx, "db1"))
	err = r.Begin(ctx, "db1")
	require.Equal(t, dberr.TransactionAlreadyActive, dberr.KindOf(err))

	// commit returns to idle, begin works again
	require.NoError(t, r.Commit("db1"))
	require.NoError(t, r.Begin(ctx, "db1"))
	require.NoError(t, r.Rollback("db1"))

	err = r.Rollback("db1")
	require.Equal(t, dberr.NoActiveTransaction, dberr.KindOf(err))
}

func TestTestDoesNotTouchTransactionState(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	addSQLite(t, r, "db1", ":memory:")

	require.NoError(t, r.Begin(ctx, "db1"))
	require.NoError(t, r.Test(ctx, "db1"))

	err := r.Do("db1", func(h *Handle) error {
		require.True(t, h.InTransaction())
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, r.Rollback("db1"))
}

func TestListMasksSecrets(t *testing.T) {
	r := newTestRegistry(t)
	addSQLite(t, r, "db1", ":memory:")

	infos := r.List()
	require.Len(t, infos, 1)
	require.Equal(t, "db1", infos[0].ID)
	require.Equal(t, "sqlite", infos[0].Type)
	require.Equal(t, SourceRuntime, infos[0].Source)
	require.False(t, infos[0].InTransaction)
	require.Equal(t, ":memory:", infos[0].Params["path"])
}

func TestSameIdentifierSerialized(t *testing.T) {
	r := newTestRegistry(t)
	addSQLite(t, r, "db1", ":memory:")

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Do("db1", func(h *Handle) error {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, maxActive, "operations on one identifier must not interleave")
}

func TestDifferentIdentifiersIndependent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	addSQLite(t, r, "a", ":memory:")
	addSQLite(t, r, "b", ":memory:")

	release := make(chan struct{})
	holding := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = r.Do("a", func(h *Handle) error {
			close(holding)
			<-release
			return nil
		})
		close(done)
	}()

	<-holding
	// While "a" is held, a transaction on "b" must proceed.
	require.NoError(t, r.Begin(ctx, "b"))
	require.NoError(t, r.Commit("b"))
	close(release)
	<-done
}
