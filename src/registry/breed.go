package registry

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/boltdb/bolt"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/genes"
	"github.com/kittycash/kittymarket/src/kitty"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/util/dbutil"
)

// SeedContext is what a breeding call knows when it derives its mixing seed
type SeedContext struct {
	Caller    cipher.Address
	DadID     kitty.KittyID
	MumID     kitty.KittyID
	ChildID   kitty.KittyID
	BirthTime int64
	TxID      int
}

// SeedFunc derives a gene mixing seed
type SeedFunc func(SeedContext) *big.Int

// HashSeed hashes every field of the context. The child id is unique per birth,
// so two births never share a seed.
func HashSeed(sc SeedContext) *big.Int {
	b := []byte(sc.Caller.String())
	for _, v := range []uint64{
		uint64(sc.DadID),
		uint64(sc.MumID),
		uint64(sc.ChildID),
		uint64(sc.BirthTime),
		uint64(sc.TxID),
	} {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v)
		b = append(b, buf[:]...)
	}

	h := cipher.SumSHA256(b)
	return new(big.Int).SetBytes(h[:])
}

// Breed creates a child of two kitties and gives it to the caller. The caller must
// be allowed to transfer both parents.
func (r *Registry) Breed(ctx context.Context, caller cipher.Address, dadID, mumID kitty.KittyID) (*kitty.Kitty, error) {
	log := r.log.WithFields(logrus.Fields{
		"dadID": dadID,
		"mumID": mumID,
	})

	var child kitty.Kitty
	if err := r.db.Update(ctx, func(tx *ledger.Tx) error {
		dad, err := r.breedableTx(tx.Tx, caller, dadID)
		if err != nil {
			return err
		}

		mum, err := r.breedableTx(tx.Tx, caller, mumID)
		if err != nil {
			return err
		}

		seq, err := dbutil.Sequence(tx.Tx, KittiesBkt)
		if err != nil {
			return err
		}

		seed := r.cfg.Seed(SeedContext{
			Caller:    caller,
			DadID:     dadID,
			MumID:     mumID,
			ChildID:   kitty.KittyID(seq + 1),
			BirthTime: r.now().Unix(),
			TxID:      tx.ID(),
		})

		g := genes.Mix(dad.Genes, mum.Genes, seed)
		generation := r.cfg.Generation(dad.Generation, mum.Generation)

		child, err = r.mintChildTx(tx, mumID, dadID, generation, g, caller)
		return err
	}); err != nil {
		log.WithError(err).Info("Breed failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"kittyID":    child.ID,
		"generation": child.Generation,
	}).Info("Bred kitty")

	return &child, nil
}

func (r *Registry) breedableTx(tx *bolt.Tx, caller cipher.Address, id kitty.KittyID) (*kitty.Kitty, error) {
	owner, err := r.OwnerOfTx(tx, id)
	if err != nil {
		return nil, err
	}

	ok, err := r.canTransferTx(tx, caller, owner, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthorized
	}

	return getKittyTx(tx, id)
}
