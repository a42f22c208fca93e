// Package registry is the authoritative record of kitties, their owners and the
// approvals that allow others to move them
package registry

import (
	"math/big"
	"strconv"
	"time"

	"github.com/boltdb/bolt"
	"github.com/go-errors/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/genes"
	"github.com/kittycash/kittymarket/src/kitty"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/receiver"
	"github.com/kittycash/kittymarket/src/util/dbutil"
)

var (
	// KittiesBkt maps a kitty id to its record. The bucket sequence allocates ids.
	KittiesBkt = []byte("kitties")

	// OwnersBkt maps a kitty id to its owner
	OwnersBkt = []byte("kitty_owners")

	// OwnerIndexBkt maps an owner to the sorted ids it holds
	OwnerIndexBkt = []byte("owner_kitties")

	// ApprovalsBkt maps a kitty id to its approved address
	ApprovalsBkt = []byte("kitty_approvals")

	// OperatorsBkt holds "owner:operator" keys of standing operator grants
	OperatorsBkt = []byte("kitty_operators")

	// MetaBkt holds registry counters
	MetaBkt = []byte("registry_meta")
)

const gen0CountKey = "gen0_count"

// Interface ids answered by SupportsInterface
const (
	InterfaceIDERC165 uint32 = 0x01ffc9a7
	InterfaceIDERC721 uint32 = 0x80ac58cd
)

const (
	// DefaultName is the registry name
	DefaultName = "FilipKitties"
	// DefaultSymbol is the registry symbol
	DefaultSymbol = "FK"
	// DefaultGen0Limit is the default founder cap
	DefaultGen0Limit = 10
)

var (
	// ErrUnknownAsset is returned for id 0 and ids that were never minted
	ErrUnknownAsset = errors.New("unknown kitty")

	// ErrNotAuthorized is returned if the caller has no standing over the kitty
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidDestination is returned when sending to the null identity or the registry itself
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrReceiverRejected is returned if a contract recipient does not acknowledge a safe transfer
	ErrReceiverRejected = errors.New("receiver rejected kitty")

	// ErrLimitExceeded is returned once the founder cap is reached
	ErrLimitExceeded = errors.New("gen 0 limit exceeded")

	// ErrInvalidGenes is returned for a genome outside the 256-bit domain
	ErrInvalidGenes = errors.New("invalid genes")
)

// Contracts looks up contract-capable identities
type Contracts interface {
	Contract(addr cipher.Address) (receiver.Receiver, bool)
}

// Config configures a Registry
type Config struct {
	Name      string
	Symbol    string
	Address   cipher.Address
	Minter    cipher.Address
	Gen0Limit uint64
	// Generation computes a child's generation. Defaults to genes.MaxPlusOne.
	Generation genes.GenerationPolicy
	// Seed derives the gene mixing seed of a birth. Defaults to HashSeed.
	Seed SeedFunc
}

// Registry records kitties and their ownership
type Registry struct {
	db        *ledger.DB
	cfg       Config
	contracts Contracts
	now       func() time.Time
	log       logrus.FieldLogger
}

// New creates a Registry and stores the sentinel kitty 0 on first use
func New(log logrus.FieldLogger, db *ledger.DB, contracts Contracts, cfg Config) (*Registry, error) {
	if db == nil {
		return nil, errors.New("new Registry failed, db is nil")
	}

	if contracts == nil {
		return nil, errors.New("new Registry failed, contracts is nil")
	}

	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Symbol == "" {
		cfg.Symbol = DefaultSymbol
	}
	if cfg.Generation == nil {
		cfg.Generation = genes.MaxPlusOne
	}
	if cfg.Seed == nil {
		cfg.Seed = HashSeed
	}

	if err := db.Init(func(tx *bolt.Tx) error {
		if err := dbutil.CreateBuckets(tx, KittiesBkt, OwnersBkt, OwnerIndexBkt, ApprovalsBkt, OperatorsBkt, MetaBkt); err != nil {
			return err
		}

		key := dbutil.Uint64Key(uint64(kitty.NoKitty))
		if has, err := dbutil.BucketHasKey(tx, KittiesBkt, key); err != nil || has {
			return err
		}

		return dbutil.PutBucketValue(tx, KittiesBkt, key, SentinelKitty())
	}); err != nil {
		return nil, err
	}

	return &Registry{
		db:        db,
		cfg:       cfg,
		contracts: contracts,
		now:       time.Now,
		log:       log.WithField("prefix", "kittymarket.registry"),
	}, nil
}

// SentinelKitty returns the record of kitty 0
func SentinelKitty() kitty.Kitty {
	return kitty.Kitty{
		ID:    kitty.NoKitty,
		Genes: new(big.Int).Set(genes.MaxGenes),
	}
}

// Name returns the registry name
func (r *Registry) Name() string {
	return r.cfg.Name
}

// Symbol returns the registry symbol
func (r *Registry) Symbol() string {
	return r.cfg.Symbol
}

// Address returns the registry's own identity
func (r *Registry) Address() cipher.Address {
	return r.cfg.Address
}

// Gen0Limit returns the founder cap
func (r *Registry) Gen0Limit() uint64 {
	return r.cfg.Gen0Limit
}

// SupportsInterface reports whether the registry implements the interface id
func (r *Registry) SupportsInterface(id uint32) bool {
	switch id {
	case InterfaceIDERC165, InterfaceIDERC721:
		return true
	default:
		return false
	}
}

// Gen0Count returns the number of founders minted
func (r *Registry) Gen0Count() (uint64, error) {
	var n uint64
	if err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = gen0CountTx(tx)
		return err
	}); err != nil {
		return 0, err
	}
	return n, nil
}

// TotalSupply returns the number of kitties minted, not counting the sentinel
func (r *Registry) TotalSupply() (uint64, error) {
	var n uint64
	if err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = dbutil.Sequence(tx, KittiesBkt)
		return err
	}); err != nil {
		return 0, err
	}
	return n, nil
}

// GetKitty returns the record of a kitty, including the sentinel
func (r *Registry) GetKitty(id kitty.KittyID) (*kitty.Kitty, error) {
	var k *kitty.Kitty
	if err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		k, err = getKittyTx(tx, id)
		return err
	}); err != nil {
		return nil, err
	}
	return k, nil
}

// OwnerOf returns the owner of a kitty
func (r *Registry) OwnerOf(id kitty.KittyID) (cipher.Address, error) {
	var owner cipher.Address
	if err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		owner, err = r.OwnerOfTx(tx, id)
		return err
	}); err != nil {
		return cipher.Address{}, err
	}
	return owner, nil
}

// BalanceOf returns the number of kitties owned by addr
func (r *Registry) BalanceOf(addr cipher.Address) (uint64, error) {
	ids, err := r.GetAssetsOwnedBy(addr)
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}

// GetAssetsOwnedBy returns the ids owned by addr in ascending order
func (r *Registry) GetAssetsOwnedBy(addr cipher.Address) (kitty.KittyIDs, error) {
	var ids kitty.KittyIDs
	if err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		ids, err = ownedByTx(tx, addr)
		return err
	}); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetApproved returns the approved address of a kitty, or the null identity
func (r *Registry) GetApproved(id kitty.KittyID) (cipher.Address, error) {
	var approved cipher.Address
	if err := r.db.View(func(tx *bolt.Tx) error {
		if _, err := r.OwnerOfTx(tx, id); err != nil {
			return err
		}

		var err error
		approved, err = approvedTx(tx, id)
		return err
	}); err != nil {
		return cipher.Address{}, err
	}
	return approved, nil
}

// IsApprovedForAll reports whether operator holds a standing grant from owner
func (r *Registry) IsApprovedForAll(owner, operator cipher.Address) (bool, error) {
	var ok bool
	if err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		ok, err = r.IsApprovedForAllTx(tx, owner, operator)
		return err
	}); err != nil {
		return false, err
	}
	return ok, nil
}

// OwnerOfTx returns the owner of a kitty within tx
func (r *Registry) OwnerOfTx(tx *bolt.Tx, id kitty.KittyID) (cipher.Address, error) {
	if id == kitty.NoKitty {
		return cipher.Address{}, ErrUnknownAsset
	}

	v, err := dbutil.GetBucketString(tx, OwnersBkt, dbutil.Uint64Key(uint64(id)))
	switch err.(type) {
	case nil:
	case dbutil.ObjectNotExistErr:
		return cipher.Address{}, ErrUnknownAsset
	default:
		return cipher.Address{}, err
	}

	owner, err := cipher.DecodeBase58Address(v)
	if err != nil {
		return cipher.Address{}, pkgerrors.Wrapf(err, "decode owner of kitty %d", id)
	}

	return owner, nil
}

// IsApprovedForAllTx reports whether operator holds a standing grant from owner within tx
func (r *Registry) IsApprovedForAllTx(tx *bolt.Tx, owner, operator cipher.Address) (bool, error) {
	return dbutil.BucketHasKey(tx, OperatorsBkt, operatorKey(owner, operator))
}

func operatorKey(owner, operator cipher.Address) string {
	return owner.String() + ":" + operator.String()
}

func getKittyTx(tx *bolt.Tx, id kitty.KittyID) (*kitty.Kitty, error) {
	var k kitty.Kitty
	err := dbutil.GetBucketObject(tx, KittiesBkt, dbutil.Uint64Key(uint64(id)), &k)
	switch err.(type) {
	case nil:
		return &k, nil
	case dbutil.ObjectNotExistErr:
		return nil, ErrUnknownAsset
	default:
		return nil, err
	}
}

func ownedByTx(tx *bolt.Tx, addr cipher.Address) (kitty.KittyIDs, error) {
	ids := kitty.KittyIDs{}
	err := dbutil.GetBucketObject(tx, OwnerIndexBkt, addr.String(), &ids)
	switch err.(type) {
	case nil, dbutil.ObjectNotExistErr:
		return ids, nil
	default:
		return nil, err
	}
}

func approvedTx(tx *bolt.Tx, id kitty.KittyID) (cipher.Address, error) {
	v, err := dbutil.GetBucketValue(tx, ApprovalsBkt, dbutil.Uint64Key(uint64(id)))
	if err != nil {
		return cipher.Address{}, err
	}
	if v == nil {
		return cipher.Address{}, nil
	}

	addr, err := cipher.DecodeBase58Address(string(v))
	if err != nil {
		return cipher.Address{}, pkgerrors.Wrapf(err, "decode approval of kitty %d", id)
	}

	return addr, nil
}

func gen0CountTx(tx *bolt.Tx) (uint64, error) {
	v, err := dbutil.GetBucketValue(tx, MetaBkt, gen0CountKey)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}

	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "decode gen0 count")
	}

	return n, nil
}
