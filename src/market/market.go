// Package market is an offer book where owners list kitties and buyers purchase them
// for the exact asking price. The market never holds kitties. It moves them with the
// operator grant each seller gives it in the registry.
package market

import (
	"context"
	"encoding/json"

	"github.com/boltdb/bolt"
	"github.com/go-errors/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/events"
	"github.com/kittycash/kittymarket/src/kitty"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/registry"
	"github.com/kittycash/kittymarket/src/util/dbutil"
)

var (
	// OffersBkt maps a kitty id to its latest offer
	OffersBkt = []byte("market_offers")

	// OfferSlotsBkt maps a slot index to the kitty id offered in it. Removed offers
	// leave kitty.NoKitty in their slot. The bucket sequence counts slots.
	OfferSlotsBkt = []byte("market_offer_slots")
)

var (
	// ErrDuplicateOffer is returned if the kitty already has an active offer
	ErrDuplicateOffer = errors.New("kitty already has an active offer")

	// ErrNotOperator is returned if the seller has not made the market an operator
	ErrNotOperator = errors.New("market is not an operator for the owner")

	// ErrNoActiveOffer is returned if the kitty has no active offer
	ErrNoActiveOffer = errors.New("no active offer for kitty")

	// ErrNotSeller is returned if someone other than the seller removes an offer
	ErrNotSeller = errors.New("caller is not the seller")

	// ErrWrongPrice is returned if the payment does not match the price exactly
	ErrWrongPrice = errors.New("payment does not match the offer price")
)

// Offer is a seller's standing intent to sell a kitty
type Offer struct {
	Seller  cipher.Address
	Price   uint64
	Index   uint64
	TokenID kitty.KittyID
	Active  bool
}

type offerJSON struct {
	Seller  string        `json:"seller"`
	Price   uint64        `json:"price"`
	Index   uint64        `json:"index"`
	TokenID kitty.KittyID `json:"token_id"`
	Active  bool          `json:"active"`
}

// MarshalJSON renders the seller in base58
func (o Offer) MarshalJSON() ([]byte, error) {
	return json.Marshal(offerJSON{
		Seller:  kitty.AddressString(o.Seller),
		Price:   o.Price,
		Index:   o.Index,
		TokenID: o.TokenID,
		Active:  o.Active,
	})
}

// UnmarshalJSON decodes a base58 seller
func (o *Offer) UnmarshalJSON(b []byte) error {
	var v offerJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	seller, err := kitty.ParseAddress(v.Seller)
	if err != nil {
		return err
	}

	*o = Offer{
		Seller:  seller,
		Price:   v.Price,
		Index:   v.Index,
		TokenID: v.TokenID,
		Active:  v.Active,
	}
	return nil
}

// Registry is the part of the registry the market relies on
type Registry interface {
	OwnerOfTx(tx *bolt.Tx, id kitty.KittyID) (cipher.Address, error)
	IsApprovedForAllTx(tx *bolt.Tx, owner, operator cipher.Address) (bool, error)
	TransferFromTx(tx *ledger.Tx, caller, from, to cipher.Address, id kitty.KittyID) error
}

// Funds moves payment
type Funds interface {
	TransferTx(tx *ledger.Tx, from, to cipher.Address, amount uint64) error
}

// Market is the offer book
type Market struct {
	db      *ledger.DB
	reg     Registry
	funds   Funds
	address cipher.Address
	log     logrus.FieldLogger
}

// New creates a Market. address is the identity sellers grant operator rights to.
func New(log logrus.FieldLogger, db *ledger.DB, reg Registry, funds Funds, address cipher.Address) (*Market, error) {
	if db == nil {
		return nil, errors.New("new Market failed, db is nil")
	}

	if kitty.IsNull(address) {
		return nil, errors.New("new Market failed, address is null")
	}

	if err := db.Init(func(tx *bolt.Tx) error {
		return dbutil.CreateBuckets(tx, OffersBkt, OfferSlotsBkt)
	}); err != nil {
		return nil, err
	}

	return &Market{
		db:      db,
		reg:     reg,
		funds:   funds,
		address: address,
		log:     log.WithField("prefix", "kittymarket.market"),
	}, nil
}

// Address returns the market's identity
func (m *Market) Address() cipher.Address {
	return m.address
}

// SetOffer lists a kitty for sale. The caller must own it and have made the market
// an operator. An active offer made by a previous owner is removed and replaced.
func (m *Market) SetOffer(ctx context.Context, caller cipher.Address, price uint64, id kitty.KittyID) (*Offer, error) {
	log := m.log.WithFields(logrus.Fields{
		"kittyID": id,
		"price":   price,
	})

	var offer Offer
	if err := m.db.Update(ctx, func(tx *ledger.Tx) error {
		owner, err := m.reg.OwnerOfTx(tx.Tx, id)
		if err != nil {
			return err
		}

		if caller != owner {
			return registry.ErrNotAuthorized
		}

		ok, err := m.reg.IsApprovedForAllTx(tx.Tx, owner, m.address)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotOperator
		}

		cur, err := getOfferTx(tx.Tx, id)
		if err != nil {
			return err
		}
		if cur != nil && cur.Active {
			if cur.Seller == owner {
				return ErrDuplicateOffer
			}

			// left behind by a previous owner who transferred the kitty outside the market
			if err := deactivateTx(tx.Tx, cur); err != nil {
				return err
			}

			tx.Emit(events.MarketTransaction{
				TxType:  events.TxTypeRemove,
				Owner:   cur.Seller,
				TokenID: id,
			})
		}

		seq, err := dbutil.NextSequence(tx.Tx, OfferSlotsBkt)
		if err != nil {
			return err
		}

		offer = Offer{
			Seller:  owner,
			Price:   price,
			Index:   seq - 1,
			TokenID: id,
			Active:  true,
		}

		if err := putSlotTx(tx.Tx, offer.Index, id); err != nil {
			return err
		}

		if err := putOfferTx(tx.Tx, offer); err != nil {
			return err
		}

		tx.Emit(events.MarketTransaction{
			TxType:  events.TxTypeCreate,
			Owner:   owner,
			TokenID: id,
		})

		return nil
	}); err != nil {
		log.WithError(err).Info("SetOffer failed")
		return nil, err
	}

	log.WithField("index", offer.Index).Info("Created offer")

	return &offer, nil
}

// RemoveOffer withdraws the active offer of a kitty. Only its seller may remove it.
func (m *Market) RemoveOffer(ctx context.Context, caller cipher.Address, id kitty.KittyID) error {
	log := m.log.WithField("kittyID", id)

	if err := m.db.Update(ctx, func(tx *ledger.Tx) error {
		offer, err := activeOfferTx(tx.Tx, id)
		if err != nil {
			return err
		}

		if caller != offer.Seller {
			return ErrNotSeller
		}

		if err := deactivateTx(tx.Tx, offer); err != nil {
			return err
		}

		tx.Emit(events.MarketTransaction{
			TxType:  events.TxTypeRemove,
			Owner:   offer.Seller,
			TokenID: id,
		})

		return nil
	}); err != nil {
		log.WithError(err).Info("RemoveOffer failed")
		return err
	}

	log.Info("Removed offer")

	return nil
}

// BuyKitty executes the active offer of a kitty. payment must equal the price.
// The offer is closed and the kitty moved to the buyer before the payment reaches the seller.
func (m *Market) BuyKitty(ctx context.Context, buyer cipher.Address, id kitty.KittyID, payment uint64) error {
	log := m.log.WithFields(logrus.Fields{
		"kittyID": id,
		"buyer":   buyer.String(),
		"payment": payment,
	})

	var offer *Offer
	if err := m.db.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		offer, err = activeOfferTx(tx.Tx, id)
		if err != nil {
			return err
		}

		if payment != offer.Price {
			return ErrWrongPrice
		}

		if err := deactivateTx(tx.Tx, offer); err != nil {
			return err
		}

		ok, err := m.reg.IsApprovedForAllTx(tx.Tx, offer.Seller, m.address)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotOperator
		}

		if err := m.reg.TransferFromTx(tx, m.address, offer.Seller, buyer, id); err != nil {
			return err
		}

		tx.Emit(events.MarketTransaction{
			TxType:  events.TxTypeBuy,
			Owner:   buyer,
			TokenID: id,
		})

		return m.funds.TransferTx(tx, buyer, offer.Seller, offer.Price)
	}); err != nil {
		log.WithError(err).Info("BuyKitty failed")
		return err
	}

	log.WithField("seller", offer.Seller.String()).Info("Sold kitty")

	return nil
}

// GetOffer returns the active offer of a kitty
func (m *Market) GetOffer(id kitty.KittyID) (*Offer, error) {
	var offer *Offer
	if err := m.db.View(func(tx *bolt.Tx) error {
		var err error
		offer, err = activeOfferTx(tx, id)
		return err
	}); err != nil {
		return nil, err
	}
	return offer, nil
}

// HasActiveOffer reports whether a kitty has an active offer
func (m *Market) HasActiveOffer(id kitty.KittyID) bool {
	_, err := m.GetOffer(id)
	switch err {
	case nil:
		return true
	case ErrNoActiveOffer:
	default:
		m.log.WithError(err).WithField("kittyID", id).Error("HasActiveOffer failed")
	}
	return false
}

// GetAllActiveOffers returns the kitty id of every offer slot in creation order.
// Slots of removed or executed offers hold kitty.NoKitty.
func (m *Market) GetAllActiveOffers() (kitty.KittyIDs, error) {
	ids := kitty.KittyIDs{}
	if err := m.db.View(func(tx *bolt.Tx) error {
		return dbutil.ForEach(tx, OfferSlotsBkt, func(k, v []byte) error {
			id, err := dbutil.KeyUint64(v)
			if err != nil {
				return pkgerrors.Wrapf(err, "decode offer slot %x", k)
			}
			ids = append(ids, kitty.KittyID(id))
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return ids, nil
}

// WithoutHoles drops the tombstoned slots of a GetAllActiveOffers result
func WithoutHoles(ids kitty.KittyIDs) kitty.KittyIDs {
	out := kitty.KittyIDs{}
	for _, id := range ids {
		if id != kitty.NoKitty {
			out = append(out, id)
		}
	}
	return out
}

func getOfferTx(tx *bolt.Tx, id kitty.KittyID) (*Offer, error) {
	var o Offer
	err := dbutil.GetBucketObject(tx, OffersBkt, dbutil.Uint64Key(uint64(id)), &o)
	switch err.(type) {
	case nil:
		return &o, nil
	case dbutil.ObjectNotExistErr:
		return nil, nil
	default:
		return nil, err
	}
}

func activeOfferTx(tx *bolt.Tx, id kitty.KittyID) (*Offer, error) {
	o, err := getOfferTx(tx, id)
	if err != nil {
		return nil, err
	}
	if o == nil || !o.Active {
		return nil, ErrNoActiveOffer
	}
	return o, nil
}

func putOfferTx(tx *bolt.Tx, o Offer) error {
	return dbutil.PutBucketValue(tx, OffersBkt, dbutil.Uint64Key(uint64(o.TokenID)), o)
}

func putSlotTx(tx *bolt.Tx, index uint64, id kitty.KittyID) error {
	return dbutil.PutBucketValue(tx, OfferSlotsBkt, dbutil.Uint64Key(index), dbutil.Uint64Key(uint64(id)))
}

// deactivateTx closes an offer and tombstones its slot
func deactivateTx(tx *bolt.Tx, o *Offer) error {
	o.Active = false
	if err := putOfferTx(tx, *o); err != nil {
		return err
	}
	return putSlotTx(tx, o.Index, kitty.NoKitty)
}
