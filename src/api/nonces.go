package api

import (
	"context"
	"strconv"

	"github.com/boltdb/bolt"
	"github.com/go-errors/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/util/dbutil"
)

// NoncesBkt maps a caller address to the last request nonce it used
var NoncesBkt = []byte("api_nonces")

// ErrStaleNonce is returned when a request nonce is not above the caller's last one
var ErrStaleNonce = errors.New("Request nonce already used")

// Nonces tracks the request nonces of callers
type Nonces interface {
	Advance(ctx context.Context, caller cipher.Address, nonce uint64) error
}

// NonceStore keeps the last nonce of every caller in bolt
type NonceStore struct {
	db  *ledger.DB
	log logrus.FieldLogger
}

// NewNonceStore creates a NonceStore
func NewNonceStore(log logrus.FieldLogger, db *ledger.DB) (*NonceStore, error) {
	if db == nil {
		return nil, errors.New("new NonceStore failed, db is nil")
	}

	if err := db.Init(func(tx *bolt.Tx) error {
		return dbutil.CreateBuckets(tx, NoncesBkt)
	}); err != nil {
		return nil, err
	}

	return &NonceStore{
		db:  db,
		log: log.WithField("prefix", "kittymarket.nonces"),
	}, nil
}

// Last returns the last nonce used by caller, 0 if it never made a request
func (s *NonceStore) Last(caller cipher.Address) (uint64, error) {
	var n uint64
	if err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = lastNonceTx(tx, caller)
		return err
	}); err != nil {
		return 0, err
	}

	return n, nil
}

// Advance records nonce as the last nonce of caller. It fails with ErrStaleNonce
// unless nonce is greater than the last one, so every signed request is accepted once.
func (s *NonceStore) Advance(ctx context.Context, caller cipher.Address, nonce uint64) error {
	return s.db.Update(ctx, func(tx *ledger.Tx) error {
		last, err := lastNonceTx(tx.Tx, caller)
		if err != nil {
			return err
		}

		if nonce <= last {
			s.log.WithFields(logrus.Fields{
				"caller": caller.String(),
				"nonce":  nonce,
				"last":   last,
			}).Debug("Rejected stale nonce")
			return ErrStaleNonce
		}

		return dbutil.PutBucketValue(tx.Tx, NoncesBkt, caller.String(), strconv.FormatUint(nonce, 10))
	})
}

func lastNonceTx(tx *bolt.Tx, caller cipher.Address) (uint64, error) {
	v, err := dbutil.GetBucketValue(tx, NoncesBkt, caller.String())
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}

	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "decode nonce of %s", caller.String())
	}

	return n, nil
}
