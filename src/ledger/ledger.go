// Package ledger is the atomic unit of work shared by the registry, the marketplace and
// the funds store. An Update either commits every write made through its Tx and then
// publishes the notifications collected in it, or rolls all of them back and publishes nothing.
package ledger

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/boltdb/bolt"
	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"

	"github.com/kittycash/kittymarket/src/events"
)

// ErrReentrantCall is returned when an external hook, invoked while an Update is open,
// tries to start another Update
var ErrReentrantCall = errors.New("reentrant call from an external hook")

// Publisher receives notifications after a successful commit
type Publisher interface {
	Publish(...events.Event)
}

type externalKey struct{}

// DB wraps a bolt.DB. Writes are serialized by writer, so the ledger knows whether the
// write lock is held while an external hook runs.
type DB struct {
	db     *bolt.DB
	feed   Publisher
	log    logrus.FieldLogger
	writer sync.Mutex

	// number of external hooks running inside the open Update
	external int32
}

// New creates a DB. feed may be nil if nobody listens for notifications.
func New(log logrus.FieldLogger, db *bolt.DB, feed Publisher) (*DB, error) {
	if db == nil {
		return nil, errors.New("new ledger DB failed, db is nil")
	}

	return &DB{
		db:   db,
		feed: feed,
		log:  log.WithField("prefix", "kittymarket.ledger"),
	}, nil
}

// Init runs f in a raw bolt write transaction. Stores use it to create their buckets.
func (d *DB) Init(f func(*bolt.Tx) error) error {
	return d.db.Update(f)
}

// View runs f in a read-only transaction
func (d *DB) View(f func(*bolt.Tx) error) error {
	return d.db.View(f)
}

// Update runs f in a write transaction. If f returns an error every write is rolled back.
// While an external hook runs, Update fails with ErrReentrantCall instead of waiting for
// the write lock, whatever context it is called with.
func (d *DB) Update(ctx context.Context, f func(*Tx) error) error {
	if IsExternal(ctx) {
		return ErrReentrantCall
	}

	if !d.writer.TryLock() {
		if atomic.LoadInt32(&d.external) > 0 {
			return ErrReentrantCall
		}
		d.writer.Lock()
	}
	defer d.writer.Unlock()

	var tx *Tx
	if err := d.db.Update(func(btx *bolt.Tx) error {
		tx = &Tx{
			Tx:  btx,
			db:  d,
			ctx: ctx,
		}
		return f(tx)
	}); err != nil {
		return err
	}

	if d.feed != nil && len(tx.events) != 0 {
		d.feed.Publish(tx.events...)
	}

	return nil
}

// Tx is a write transaction that collects notifications until commit
type Tx struct {
	*bolt.Tx
	db     *DB
	ctx    context.Context
	events []events.Event
}

// Emit queues a notification, published only if the transaction commits
func (tx *Tx) Emit(e events.Event) {
	tx.events = append(tx.events, e)
}

// Events returns the notifications queued so far
func (tx *Tx) Events() []events.Event {
	return tx.events
}

// Context returns the context the transaction was started with
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// External calls out of the transaction. While f runs, any Update fails with
// ErrReentrantCall, and f receives a context marked the same way. Callers must finish
// all their writes before calling External.
func (tx *Tx) External(f func(ctx context.Context) error) error {
	atomic.AddInt32(&tx.db.external, 1)
	defer atomic.AddInt32(&tx.db.external, -1)

	return f(context.WithValue(tx.ctx, externalKey{}, true))
}

// IsExternal reports whether ctx was handed to an external hook
func IsExternal(ctx context.Context) bool {
	v, _ := ctx.Value(externalKey{}).(bool)
	return v
}
