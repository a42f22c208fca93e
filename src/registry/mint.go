package registry

import (
	"context"
	"math/big"
	"strconv"

	"github.com/boltdb/bolt"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/events"
	"github.com/kittycash/kittymarket/src/genes"
	"github.com/kittycash/kittymarket/src/kitty"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/util/dbutil"
)

// MintFounder creates a generation 0 kitty for owner. Only the minting authority may
// call it, and only until the founder cap is reached.
func (r *Registry) MintFounder(ctx context.Context, caller cipher.Address, g *big.Int, owner cipher.Address) (kitty.KittyID, error) {
	log := r.log.WithField("owner", kitty.AddressString(owner))

	if caller != r.cfg.Minter {
		log.WithField("caller", caller.String()).Info("MintFounder rejected, caller is not the minter")
		return kitty.NoKitty, ErrNotAuthorized
	}

	if !genes.Valid(g) {
		return kitty.NoKitty, ErrInvalidGenes
	}

	var k kitty.Kitty
	if err := r.db.Update(ctx, func(tx *ledger.Tx) error {
		n, err := gen0CountTx(tx.Tx)
		if err != nil {
			return err
		}

		if n >= r.cfg.Gen0Limit {
			return ErrLimitExceeded
		}

		k, err = r.mintChildTx(tx, kitty.NoKitty, kitty.NoKitty, 0, g, owner)
		if err != nil {
			return err
		}

		return dbutil.PutBucketValue(tx.Tx, MetaBkt, gen0CountKey, strconv.FormatUint(n+1, 10))
	}); err != nil {
		log.WithError(err).Info("MintFounder failed")
		return kitty.NoKitty, err
	}

	log.WithField("kittyID", k.ID).Info("Minted founder kitty")

	return k.ID, nil
}

// mintChildTx allocates the next id and records a kitty owned by owner
func (r *Registry) mintChildTx(tx *ledger.Tx, mumID, dadID kitty.KittyID, generation uint64, g *big.Int, owner cipher.Address) (kitty.Kitty, error) {
	if err := r.checkDestination(owner); err != nil {
		return kitty.Kitty{}, err
	}

	seq, err := dbutil.NextSequence(tx.Tx, KittiesBkt)
	if err != nil {
		return kitty.Kitty{}, err
	}

	k := kitty.Kitty{
		ID:         kitty.KittyID(seq),
		Genes:      new(big.Int).Set(g),
		BirthTime:  r.now().Unix(),
		MumID:      mumID,
		DadID:      dadID,
		Generation: generation,
	}

	key := dbutil.Uint64Key(seq)
	if err := dbutil.PutBucketValue(tx.Tx, KittiesBkt, key, k); err != nil {
		return kitty.Kitty{}, err
	}

	if err := dbutil.PutBucketValue(tx.Tx, OwnersBkt, key, owner.String()); err != nil {
		return kitty.Kitty{}, err
	}

	if err := addToOwnerTx(tx.Tx, owner, k.ID); err != nil {
		return kitty.Kitty{}, err
	}

	tx.Emit(events.Birth{
		Owner:    owner,
		KittenID: k.ID,
		MumID:    mumID,
		DadID:    dadID,
		Genes:    new(big.Int).Set(g),
	})

	r.log.WithFields(logrus.Fields{
		"kittyID":    k.ID,
		"generation": generation,
	}).Debug("Recorded kitty")

	return k, nil
}

func (r *Registry) checkDestination(to cipher.Address) error {
	if kitty.IsNull(to) || to == r.cfg.Address {
		return ErrInvalidDestination
	}
	return nil
}

func addToOwnerTx(tx *bolt.Tx, owner cipher.Address, id kitty.KittyID) error {
	ids, err := ownedByTx(tx, owner)
	if err != nil {
		return err
	}

	ids.Add(id)

	return dbutil.PutBucketValue(tx, OwnerIndexBkt, owner.String(), ids)
}

func removeFromOwnerTx(tx *bolt.Tx, owner cipher.Address, id kitty.KittyID) error {
	ids, err := ownedByTx(tx, owner)
	if err != nil {
		return err
	}

	if !ids.Remove(id) {
		return dbutil.NewObjectNotExistErr(OwnerIndexBkt, []byte(owner.String()))
	}

	if len(ids) == 0 {
		return dbutil.DeleteBucketValue(tx, OwnerIndexBkt, owner.String())
	}

	return dbutil.PutBucketValue(tx, OwnerIndexBkt, owner.String(), ids)
}
