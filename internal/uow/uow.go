// AngelaMos | 2026
// uow.go

package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/authcore/internal/core"
	"github.com/carterperez-dev/authcore/internal/event"
)

var (
	ErrTransactionActive     = errors.New("transaction already active")
	ErrNoTransaction         = errors.New("no active transaction")
	ErrSavepointsUnsupported = errors.New("savepoints not supported")
)

// Tx is the transaction handle the unit of work manages. *sqlx.Tx satisfies
// it; tests substitute fakes.
type Tx interface {
	core.DBTX
	Commit() error
	Rollback() error
}

// Beginner opens transactions against a concrete backend.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
}

type sqlxBeginner struct {
	db *sqlx.DB
}

func (b sqlxBeginner) BeginTx(
	ctx context.Context,
	opts *sql.TxOptions,
) (Tx, error) {
	return b.db.BeginTxx(ctx, opts)
}

// Publisher receives the buffered domain events after a successful commit.
// *event.Bus satisfies it.
type Publisher interface {
	PublishAll(ctx context.Context, events []event.Event)
}

// UnitOfWork scopes one logical use-case invocation: it owns at most one
// transaction and buffers domain events, which are dispatched if and only
// if Commit succeeds, strictly after the storage commit. It must not be
// shared across concurrent requests.
type UnitOfWork struct {
	base       core.DBTX
	beginner   Beginner
	publisher  Publisher
	tx         Tx
	events     []event.Event
	savepoints bool
}

type Option func(*UnitOfWork)

// WithoutSavepoints marks the backend as unable to honor explicit
// savepoints; the savepoint operations then fail with
// ErrSavepointsUnsupported.
func WithoutSavepoints() Option {
	return func(u *UnitOfWork) {
		u.savepoints = false
	}
}

func New(
	base core.DBTX,
	beginner Beginner,
	publisher Publisher,
	opts ...Option,
) *UnitOfWork {
	u := &UnitOfWork{
		base:       base,
		beginner:   beginner,
		publisher:  publisher,
		savepoints: true,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Factory builds a fresh unit of work per request.
type Factory func() *UnitOfWork

func NewFactory(db *sqlx.DB, publisher Publisher, opts ...Option) Factory {
	return func() *UnitOfWork {
		return New(db, sqlxBeginner{db: db}, publisher, opts...)
	}
}

// DB returns the transaction handle while one is active, otherwise the base
// connection. Repositories constructed over it transparently join the
// transaction.
func (u *UnitOfWork) DB() core.DBTX {
	if u.tx != nil {
		return u.tx
	}
	return u.base
}

func (u *UnitOfWork) InTransaction() bool {
	return u.tx != nil
}

func (u *UnitOfWork) Begin(ctx context.Context, opts *sql.TxOptions) error {
	if u.tx != nil {
		return ErrTransactionActive
	}

	tx, err := u.beginner.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	u.tx = tx
	return nil
}

// Commit commits the storage transaction and then, only on success, flushes
// the buffered events to the publisher.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return ErrNoTransaction
	}

	if err := u.tx.Commit(); err != nil {
		u.tx = nil
		u.ClearPendingEvents()
		return fmt.Errorf("commit transaction: %w", err)
	}
	u.tx = nil

	pending := u.events
	u.events = nil
	if u.publisher != nil && len(pending) > 0 {
		u.publisher.PublishAll(ctx, pending)
	}

	return nil
}

// Rollback aborts the transaction and discards all pending events; none of
// them may reach subscribers for work that did not happen.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return ErrNoTransaction
	}

	err := u.tx.Rollback()
	u.tx = nil
	u.ClearPendingEvents()

	if err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// Execute runs fn inside a transaction: commit on nil error, rollback on
// error or panic. Events added during fn follow the commit/rollback fate.
func (u *UnitOfWork) Execute(
	ctx context.Context,
	fn func(db core.DBTX) error,
	opts *sql.TxOptions,
) error {
	if err := u.Begin(ctx, opts); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = u.Rollback(ctx) //nolint:errcheck // best-effort rollback on panic
			panic(p)
		}
	}()

	if err := fn(u.tx); err != nil {
		if rbErr := u.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original: %w)", rbErr, err)
		}
		return err
	}

	return u.Commit(ctx)
}

// AddEvents buffers domain events until the transaction settles. Outside a
// transaction the events are still buffered; the caller is expected to
// commit or clear them explicitly.
func (u *UnitOfWork) AddEvents(events ...event.Event) {
	u.events = append(u.events, events...)
}

func (u *UnitOfWork) PendingEvents() []event.Event {
	out := make([]event.Event, len(u.events))
	copy(out, u.events)
	return out
}

func (u *UnitOfWork) ClearPendingEvents() {
	u.events = nil
}

func (u *UnitOfWork) SupportsSavepoints() bool {
	return u.savepoints
}

var savepointName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func (u *UnitOfWork) CreateSavepoint(ctx context.Context, name string) error {
	if err := u.savepointPrecheck(name); err != nil {
		return err
	}

	if _, err := u.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint %s: %w", name, err)
	}
	return nil
}

func (u *UnitOfWork) RollbackToSavepoint(
	ctx context.Context,
	name string,
) error {
	if err := u.savepointPrecheck(name); err != nil {
		return err
	}

	if _, err := u.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("rollback to savepoint %s: %w", name, err)
	}
	return nil
}

func (u *UnitOfWork) ReleaseSavepoint(ctx context.Context, name string) error {
	if err := u.savepointPrecheck(name); err != nil {
		return err
	}

	if _, err := u.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

func (u *UnitOfWork) savepointPrecheck(name string) error {
	if !u.savepoints {
		return ErrSavepointsUnsupported
	}
	if u.tx == nil {
		return ErrNoTransaction
	}
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q: %w", name, core.ErrInvalidInput)
	}
	return nil
}
