// Package receiver keeps track of contract-capable identities and the acceptance hooks
// they expose to safe transfers
package receiver

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/kitty"
)

// KittyReceivedAck is the value a receiver returns to accept a kitty
const KittyReceivedAck uint32 = 0x150b7a02

// Receiver is the acceptance hook of a contract-capable identity. It runs while the
// transfer's write is still open, so any ledger write it attempts fails with
// ledger.ErrReentrantCall, whichever context it uses. Reads see the state before the transfer.
type Receiver interface {
	OnKittyReceived(ctx context.Context, operator, from cipher.Address, id kitty.KittyID, data []byte) (uint32, error)
}

// Func adapts a function to a Receiver
type Func func(ctx context.Context, operator, from cipher.Address, id kitty.KittyID, data []byte) (uint32, error)

// OnKittyReceived implements Receiver
func (f Func) OnKittyReceived(ctx context.Context, operator, from cipher.Address, id kitty.KittyID, data []byte) (uint32, error) {
	return f(ctx, operator, from, id, data)
}

// Accept is a Receiver that acknowledges every kitty
var Accept = Func(func(context.Context, cipher.Address, cipher.Address, kitty.KittyID, []byte) (uint32, error) {
	return KittyReceivedAck, nil
})

// Directory maps contract addresses to their hooks. A contract registered without
// a hook rejects every safe transfer.
type Directory struct {
	sync.RWMutex
	contracts map[cipher.Address]Receiver
	log       logrus.FieldLogger
}

// NewDirectory creates an empty Directory
func NewDirectory(log logrus.FieldLogger) *Directory {
	return &Directory{
		contracts: make(map[cipher.Address]Receiver),
		log:       log.WithField("prefix", "kittymarket.receiver"),
	}
}

// Register marks addr as a contract. r may be nil.
func (d *Directory) Register(addr cipher.Address, r Receiver) {
	d.Lock()
	defer d.Unlock()

	d.contracts[addr] = r
	d.log.WithFields(logrus.Fields{
		"address": addr.String(),
		"hook":    r != nil,
	}).Info("Registered contract")
}

// Unregister forgets addr
func (d *Directory) Unregister(addr cipher.Address) {
	d.Lock()
	defer d.Unlock()
	delete(d.contracts, addr)
}

// Contract returns the hook of addr and whether addr is a contract at all
func (d *Directory) Contract(addr cipher.Address) (Receiver, bool) {
	d.RLock()
	defer d.RUnlock()
	r, ok := d.contracts[addr]
	return r, ok
}

// IsContract reports whether addr is a contract
func (d *Directory) IsContract(addr cipher.Address) bool {
	_, ok := d.Contract(addr)
	return ok
}
