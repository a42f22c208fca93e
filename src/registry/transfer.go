package registry

import (
	"context"

	"github.com/boltdb/bolt"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/events"
	"github.com/kittycash/kittymarket/src/kitty"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/receiver"
	"github.com/kittycash/kittymarket/src/util/dbutil"
)

// Approve sets the approval slot of a kitty. The caller must own the kitty or be
// an operator of its owner. The null identity clears the slot.
func (r *Registry) Approve(ctx context.Context, caller, approved cipher.Address, id kitty.KittyID) error {
	log := r.log.WithFields(logrus.Fields{
		"kittyID":  id,
		"approved": kitty.AddressString(approved),
	})

	if err := r.db.Update(ctx, func(tx *ledger.Tx) error {
		owner, err := r.OwnerOfTx(tx.Tx, id)
		if err != nil {
			return err
		}

		if caller != owner {
			ok, err := r.IsApprovedForAllTx(tx.Tx, owner, caller)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNotAuthorized
			}
		}

		key := dbutil.Uint64Key(uint64(id))
		if kitty.IsNull(approved) {
			err = dbutil.DeleteBucketValue(tx.Tx, ApprovalsBkt, key)
		} else {
			err = dbutil.PutBucketValue(tx.Tx, ApprovalsBkt, key, approved.String())
		}
		if err != nil {
			return err
		}

		tx.Emit(events.Approval{
			Owner:    owner,
			Approved: approved,
			TokenID:  id,
		})

		return nil
	}); err != nil {
		log.WithError(err).Info("Approve failed")
		return err
	}

	log.Info("Approved")

	return nil
}

// SetApprovalForAll grants or revokes operator's standing permission over all of
// the caller's kitties
func (r *Registry) SetApprovalForAll(ctx context.Context, caller, operator cipher.Address, approved bool) error {
	if err := r.db.Update(ctx, func(tx *ledger.Tx) error {
		key := operatorKey(caller, operator)

		var err error
		if approved {
			err = dbutil.PutBucketValue(tx.Tx, OperatorsBkt, key, "1")
		} else {
			err = dbutil.DeleteBucketValue(tx.Tx, OperatorsBkt, key)
		}
		if err != nil {
			return err
		}

		tx.Emit(events.ApprovalForAll{
			Owner:    caller,
			Operator: operator,
			Approved: approved,
		})

		return nil
	}); err != nil {
		r.log.WithError(err).Error("SetApprovalForAll failed")
		return err
	}

	r.log.WithFields(logrus.Fields{
		"owner":    caller.String(),
		"operator": operator.String(),
		"approved": approved,
	}).Info("Set operator approval")

	return nil
}

// Transfer moves a kitty from its current owner to another address
func (r *Registry) Transfer(ctx context.Context, caller, to cipher.Address, id kitty.KittyID) error {
	return r.update(ctx, "Transfer", id, func(tx *ledger.Tx) error {
		owner, err := r.OwnerOfTx(tx.Tx, id)
		if err != nil {
			return err
		}
		return r.TransferFromTx(tx, caller, owner, to, id)
	})
}

// TransferFrom moves a kitty from its owner to another address. The caller must be
// the owner, the kitty's approved address or an operator of the owner.
func (r *Registry) TransferFrom(ctx context.Context, caller, from, to cipher.Address, id kitty.KittyID) error {
	return r.update(ctx, "TransferFrom", id, func(tx *ledger.Tx) error {
		return r.TransferFromTx(tx, caller, from, to, id)
	})
}

// SafeTransferFrom is TransferFrom followed by the acceptance check of a contract
// recipient. If the recipient does not acknowledge the kitty the transfer is rolled back.
func (r *Registry) SafeTransferFrom(ctx context.Context, caller, from, to cipher.Address, id kitty.KittyID, data []byte) error {
	return r.update(ctx, "SafeTransferFrom", id, func(tx *ledger.Tx) error {
		if err := r.TransferFromTx(tx, caller, from, to, id); err != nil {
			return err
		}
		return r.checkReceiverTx(tx, caller, from, to, id, data)
	})
}

// TransferFromTx performs a transfer within tx. The marketplace uses it to move
// a kitty as part of a sale.
func (r *Registry) TransferFromTx(tx *ledger.Tx, caller, from, to cipher.Address, id kitty.KittyID) error {
	owner, err := r.OwnerOfTx(tx.Tx, id)
	if err != nil {
		return err
	}

	if err := r.checkDestination(to); err != nil {
		return err
	}

	if from != owner {
		return ErrNotAuthorized
	}

	ok, err := r.canTransferTx(tx.Tx, caller, owner, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	key := dbutil.Uint64Key(uint64(id))
	if err := dbutil.DeleteBucketValue(tx.Tx, ApprovalsBkt, key); err != nil {
		return err
	}

	if err := removeFromOwnerTx(tx.Tx, from, id); err != nil {
		return err
	}

	if err := addToOwnerTx(tx.Tx, to, id); err != nil {
		return err
	}

	if err := dbutil.PutBucketValue(tx.Tx, OwnersBkt, key, to.String()); err != nil {
		return err
	}

	tx.Emit(events.Transfer{
		From:    from,
		To:      to,
		TokenID: id,
	})

	return nil
}

// canTransferTx reports whether caller is the owner, the approved address or an operator
func (r *Registry) canTransferTx(tx *bolt.Tx, caller, owner cipher.Address, id kitty.KittyID) (bool, error) {
	if caller == owner {
		return true, nil
	}

	approved, err := approvedTx(tx, id)
	if err != nil {
		return false, err
	}
	if !kitty.IsNull(approved) && approved == caller {
		return true, nil
	}

	return r.IsApprovedForAllTx(tx, owner, caller)
}

// checkReceiverTx runs the acceptance hook of a contract recipient.
// All registry writes of the transfer must be done before it is called.
func (r *Registry) checkReceiverTx(tx *ledger.Tx, operator, from, to cipher.Address, id kitty.KittyID, data []byte) error {
	hook, ok := r.contracts.Contract(to)
	if !ok {
		return nil
	}

	log := r.log.WithFields(logrus.Fields{
		"kittyID": id,
		"to":      to.String(),
	})

	if hook == nil {
		log.Info("Contract recipient has no acceptance hook")
		return ErrReceiverRejected
	}

	return tx.External(func(ctx context.Context) error {
		ack, err := hook.OnKittyReceived(ctx, operator, from, id, data)
		if err != nil {
			log.WithError(err).Info("Acceptance hook failed")
			return ErrReceiverRejected
		}

		if ack != receiver.KittyReceivedAck {
			log.WithField("ack", ack).Info("Acceptance hook returned wrong acknowledgement")
			return ErrReceiverRejected
		}

		return nil
	})
}

func (r *Registry) update(ctx context.Context, op string, id kitty.KittyID, f func(*ledger.Tx) error) error {
	log := r.log.WithFields(logrus.Fields{
		"op":      op,
		"kittyID": id,
	})

	if err := r.db.Update(ctx, f); err != nil {
		log.WithError(err).Info("Transfer failed")
		return err
	}

	log.Info("Transferred kitty")
	return nil
}
