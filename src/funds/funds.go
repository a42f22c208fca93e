// Package funds keeps the native-funds balances that pay for kitties on the marketplace
package funds

import (
	"context"
	"math"
	"strconv"

	"github.com/boltdb/bolt"
	"github.com/go-errors/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/kitty"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/util/dbutil"
)

var (
	// BalancesBkt maps an address to its balance
	BalancesBkt = []byte("funds_balances")

	// ErrInsufficientFunds is returned if a balance would go negative
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBalanceOverflow is returned if a balance would overflow
	ErrBalanceOverflow = errors.New("balance overflow")

	// ErrNotMinter is returned if anyone but the minting authority deposits
	ErrNotMinter = errors.New("only the minting authority can deposit funds")

	// ErrInvalidAddress is returned when depositing to the null identity
	ErrInvalidAddress = errors.New("invalid address")

	// ErrZeroAmount is returned when depositing nothing
	ErrZeroAmount = errors.New("amount must be greater than zero")
)

// Store holds balances
type Store struct {
	db     *ledger.DB
	minter cipher.Address
	log    logrus.FieldLogger
}

// NewStore creates a Store
func NewStore(log logrus.FieldLogger, db *ledger.DB, minter cipher.Address) (*Store, error) {
	if db == nil {
		return nil, errors.New("new funds Store failed, db is nil")
	}

	if err := db.Init(func(tx *bolt.Tx) error {
		return dbutil.CreateBuckets(tx, BalancesBkt)
	}); err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		minter: minter,
		log:    log.WithField("prefix", "kittymarket.funds"),
	}, nil
}

// BalanceOf returns the balance of addr
func (s *Store) BalanceOf(addr cipher.Address) (uint64, error) {
	var bal uint64
	if err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		bal, err = s.BalanceOfTx(tx, addr)
		return err
	}); err != nil {
		return 0, err
	}

	return bal, nil
}

// BalanceOfTx returns the balance of addr within tx
func (s *Store) BalanceOfTx(tx *bolt.Tx, addr cipher.Address) (uint64, error) {
	v, err := dbutil.GetBucketValue(tx, BalancesBkt, addr.String())
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}

	bal, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "decode balance of %s", addr.String())
	}

	return bal, nil
}

func (s *Store) putBalanceTx(tx *bolt.Tx, addr cipher.Address, bal uint64) error {
	if bal == 0 {
		return dbutil.DeleteBucketValue(tx, BalancesBkt, addr.String())
	}
	return dbutil.PutBucketValue(tx, BalancesBkt, addr.String(), strconv.FormatUint(bal, 10))
}

// Deposit credits amount to an address. Only the minting authority may deposit.
// Returns the new balance.
func (s *Store) Deposit(ctx context.Context, caller, to cipher.Address, amount uint64) (uint64, error) {
	log := s.log.WithFields(logrus.Fields{
		"to":     kitty.AddressString(to),
		"amount": amount,
	})

	if caller != s.minter {
		return 0, ErrNotMinter
	}

	if kitty.IsNull(to) {
		return 0, ErrInvalidAddress
	}

	if amount == 0 {
		return 0, ErrZeroAmount
	}

	var bal uint64
	if err := s.db.Update(ctx, func(tx *ledger.Tx) error {
		cur, err := s.BalanceOfTx(tx.Tx, to)
		if err != nil {
			return err
		}

		if cur > math.MaxUint64-amount {
			return ErrBalanceOverflow
		}

		bal = cur + amount
		return s.putBalanceTx(tx.Tx, to, bal)
	}); err != nil {
		log.WithError(err).Error("Deposit failed")
		return 0, err
	}

	log.WithField("balance", bal).Info("Deposited funds")

	return bal, nil
}

// TransferTx moves amount from one address to another within tx
func (s *Store) TransferTx(tx *ledger.Tx, from, to cipher.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}

	if kitty.IsNull(to) {
		return ErrInvalidAddress
	}

	fromBal, err := s.BalanceOfTx(tx.Tx, from)
	if err != nil {
		return err
	}

	if fromBal < amount {
		return ErrInsufficientFunds
	}

	if err := s.putBalanceTx(tx.Tx, from, fromBal-amount); err != nil {
		return err
	}

	toBal, err := s.BalanceOfTx(tx.Tx, to)
	if err != nil {
		return err
	}

	if toBal > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}

	return s.putBalanceTx(tx.Tx, to, toBal+amount)
}
