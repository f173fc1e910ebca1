// Package registry owns the mapping from caller-chosen connection
// identifiers to live backend handles and their transaction state. All
// statement execution flows through Do, which holds the per-identifier
// lock from resolve to completion so a remove can never race an in-flight
// statement.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/dialect"
)

// Source records how a connection entered the registry.
type Source string

const (
	SourceConfig  Source = "config"
	SourceRuntime Source = "runtime"
)

type conn struct {
	mu      sync.Mutex
	id      string
	kind    string
	params  Params
	source  Source
	dialect dialect.Dialect
	db      *sqlx.DB
	tx      *sqlx.Tx
	closed  bool
}

type Registry struct {
	mu    sync.RWMutex
	conns map[string]*conn
	log   *slog.Logger
}

func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		conns: make(map[string]*conn),
		log:   log,
	}
}

// Add registers a new connection under id, opens the backend handle and
// probes it. Adding an already-registered identifier fails with
// DuplicateIdentifier; the existing connection is left untouched.
func (r *Registry) Add(ctx context.Context, id, kind string, params Params, source Source) error {
	if id == "" {
		return dberr.New(dberr.InvalidParams, "connection id is required")
	}
	d, err := dialect.For(kind)
	if err != nil {
		return err
	}
	dsn, err := params.DSN(kind)
	if err != nil {
		return err
	}

	c := &conn{
		id:      id,
		kind:    kind,
		params:  params,
		source:  source,
		dialect: d,
	}

	// Reserve the identifier before opening so the connectivity probe does
	// not run under the registry lock. The held conn mutex makes lookups
	// wait until the probe settles.
	c.mu.Lock()
	r.mu.Lock()
	if _, exists := r.conns[id]; exists {
		r.mu.Unlock()
		c.mu.Unlock()
		return dberr.New(dberr.DuplicateIdentifier, "connection %q already exists", id)
	}
	r.conns[id] = c
	r.mu.Unlock()

	fail := func(err error) error {
		r.mu.Lock()
		delete(r.conns, id)
		r.mu.Unlock()
		c.closed = true
		c.mu.Unlock()
		return err
	}

	db, err := d.Open(dsn)
	if err != nil {
		return fail(dberr.Wrap(dberr.ConnectionFailed, err, "failed to open %s connection %q", kind, id))
	}
	// One live handle per identifier; the per-identifier lock already
	// serializes statements, and a single conn keeps sqlite :memory:
	// databases coherent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fail(dberr.Wrap(dberr.ConnectionFailed, err, "failed to ping %s connection %q", kind, id))
	}

	c.db = db
	c.mu.Unlock()
	r.log.Info("connection added", "id", id, "kind", kind, "source", source)
	return nil
}

// Handle is the view of a connection a caller gets inside Do. It is only
// valid for the duration of the callback.
type Handle struct {
	c *conn
}

func (h *Handle) ID() string               { return h.c.id }
func (h *Handle) Kind() string             { return h.c.kind }
func (h *Handle) Dialect() dialect.Dialect { return h.c.dialect }
func (h *Handle) InTransaction() bool      { return h.c.tx != nil }

// Ext returns the execution target: the open transaction when one is
// active, the plain handle otherwise.
func (h *Handle) Ext() sqlx.ExtContext {
	if h.c.tx != nil {
		return h.c.tx
	}
	return h.c.db
}

// Do resolves id and runs fn with the per-identifier lock held.
func (r *Registry) Do(id string, fn func(h *Handle) error) error {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return dberr.New(dberr.NotFound, "connection %q not found", id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return dberr.New(dberr.NotFound, "connection %q not found", id)
	}
	return fn(&Handle{c: c})
}

// Test round-trips a trivial statement on the connection. Transaction
// state is left untouched. The single retry only applies to this read-only
// probe; mutating statements are never retried.
func (r *Registry) Test(ctx context.Context, id string) error {
	return r.Do(id, func(h *Handle) error {
		// Route through the active transaction if any; the single pooled
		// conn is held by it for the transaction's lifetime.
		ping := func() error {
			var one int
			return h.Ext().QueryRowxContext(ctx, h.Dialect().NoopQuery()).Scan(&one)
		}
		err := ping()
		if err != nil && h.Dialect().Classify(err) == dberr.ConnectionFailed {
			err = ping()
		}
		if err != nil {
			return dberr.Wrap(h.Dialect().Classify(err), err, "connection %q test failed", id)
		}
		return nil
	})
}

// Info describes a registered connection for list_connections. Secrets are
// masked before they leave the registry.
type Info struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Source        Source         `json:"source"`
	InTransaction bool           `json:"in_transaction"`
	Params        map[string]any `json:"params"`
}

func (r *Registry) List() []Info {
	r.mu.RLock()
	conns := make([]*conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(conns))
	for _, c := range conns {
		c.mu.Lock()
		if !c.closed {
			infos = append(infos, Info{
				ID:            c.id,
				Type:          c.kind,
				Source:        c.source,
				InTransaction: c.tx != nil,
				Params:        c.params.Masked(),
			})
		}
		c.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Remove closes a connection and deletes its record. An active transaction
// is rolled back first; the removal itself never fails once the identifier
// resolves. Removing an unknown identifier is a NotFound error.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if !ok {
		return dberr.New(dberr.NotFound, "connection %q not found", id)
	}

	// An in-flight statement holds c.mu; waiting here lets it finish
	// against the still-open handle before the close.
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbackAndClose(r.log)
	r.log.Info("connection removed", "id", id)
	return nil
}

func (c *conn) rollbackAndClose(log *slog.Logger) {
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Warn("rollback on close failed", "id", c.id, "error", err)
		}
		c.tx = nil
	}
	if err := c.db.Close(); err != nil {
		log.Warn("close failed", "id", c.id, "error", err)
	}
	c.closed = true
}

// Begin starts a transaction. Begin on an already-active transaction fails
// with TransactionAlreadyActive; there is no nesting.
func (r *Registry) Begin(ctx context.Context, id string) error {
	return r.Do(id, func(h *Handle) error {
		c := h.c
		if c.tx != nil {
			return dberr.New(dberr.TransactionAlreadyActive, "connection %q already has an active transaction", id)
		}
		tx, err := c.db.BeginTxx(ctx, nil)
		if err != nil {
			return dberr.Wrap(c.dialect.Classify(err), err, "failed to begin transaction on %q", id)
		}
		c.tx = tx
		return nil
	})
}

// Commit commits the active transaction. The connection returns to idle
// even when the commit itself fails, because the driver transaction is
// finished either way.
func (r *Registry) Commit(id string) error {
	return r.Do(id, func(h *Handle) error {
		c := h.c
		if c.tx == nil {
			return dberr.New(dberr.NoActiveTransaction, "connection %q has no active transaction", id)
		}
		err := c.tx.Commit()
		c.tx = nil
		if err != nil {
			return dberr.Wrap(c.dialect.Classify(err), err, "failed to commit transaction on %q", id)
		}
		return nil
	})
}

// Rollback rolls back the active transaction.
func (r *Registry) Rollback(id string) error {
	return r.Do(id, func(h *Handle) error {
		c := h.c
		if c.tx == nil {
			return dberr.New(dberr.NoActiveTransaction, "connection %q has no active transaction", id)
		}
		err := c.tx.Rollback()
		c.tx = nil
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			return dberr.Wrap(c.dialect.Classify(err), err, "failed to rollback transaction on %q", id)
		}
		return nil
	})
}

// CloseAll tears the registry down at shutdown, rolling back and closing
// every handle.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*conn)
	r.mu.Unlock()

	for id, c := range conns {
		c.mu.Lock()
		c.rollbackAndClose(r.log)
		c.mu.Unlock()
		r.log.Info("connection closed", "id", id)
	}
}
