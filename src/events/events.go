// Package events defines the notifications emitted by successful registry and
// marketplace operations and fans them out to subscribers and sinks
package events

import (
	"encoding/json"
	"math/big"

	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/kitty"
)

// Kind names a notification type
type Kind string

const (
	// KindTransfer is emitted when a kitty changes owner
	KindTransfer Kind = "Transfer"
	// KindApproval is emitted when a kitty's approval slot is set
	KindApproval Kind = "Approval"
	// KindApprovalForAll is emitted when an operator grant is set or revoked
	KindApprovalForAll Kind = "ApprovalForAll"
	// KindBirth is emitted when a kitty is minted or bred
	KindBirth Kind = "Birth"
	// KindMarketTransaction is emitted when an offer is created, removed or executed
	KindMarketTransaction Kind = "MarketTransaction"
)

// Market transaction types
const (
	TxTypeCreate = "Create offer"
	TxTypeRemove = "Remove offer"
	TxTypeBuy    = "Buy"
)

// Event is a notification
type Event interface {
	Kind() Kind
}

// Transfer records a change of ownership
type Transfer struct {
	From    cipher.Address
	To      cipher.Address
	TokenID kitty.KittyID
}

// Kind implements Event
func (Transfer) Kind() Kind { return KindTransfer }

// MarshalJSON renders addresses in base58
func (e Transfer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		From    string        `json:"from"`
		To      string        `json:"to"`
		TokenID kitty.KittyID `json:"token_id"`
	}{kitty.AddressString(e.From), kitty.AddressString(e.To), e.TokenID})
}

// Approval records a new value of a kitty's approval slot
type Approval struct {
	Owner    cipher.Address
	Approved cipher.Address
	TokenID  kitty.KittyID
}

// Kind implements Event
func (Approval) Kind() Kind { return KindApproval }

// MarshalJSON renders addresses in base58
func (e Approval) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Owner    string        `json:"owner"`
		Approved string        `json:"approved"`
		TokenID  kitty.KittyID `json:"token_id"`
	}{kitty.AddressString(e.Owner), kitty.AddressString(e.Approved), e.TokenID})
}

// ApprovalForAll records an operator grant or revocation
type ApprovalForAll struct {
	Owner    cipher.Address
	Operator cipher.Address
	Approved bool
}

// Kind implements Event
func (ApprovalForAll) Kind() Kind { return KindApprovalForAll }

// MarshalJSON renders addresses in base58
func (e ApprovalForAll) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Owner    string `json:"owner"`
		Operator string `json:"operator"`
		Approved bool   `json:"approved"`
	}{kitty.AddressString(e.Owner), kitty.AddressString(e.Operator), e.Approved})
}

// Birth records a newly minted or bred kitty
type Birth struct {
	Owner    cipher.Address
	KittenID kitty.KittyID
	MumID    kitty.KittyID
	DadID    kitty.KittyID
	Genes    *big.Int
}

// Kind implements Event
func (Birth) Kind() Kind { return KindBirth }

// MarshalJSON renders addresses in base58
func (e Birth) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Owner    string        `json:"owner"`
		KittenID kitty.KittyID `json:"kitten_id"`
		MumID    kitty.KittyID `json:"mum_id"`
		DadID    kitty.KittyID `json:"dad_id"`
		Genes    *big.Int      `json:"genes"`
	}{kitty.AddressString(e.Owner), e.KittenID, e.MumID, e.DadID, e.Genes})
}

// MarketTransaction records an offer being created, removed or bought.
// Owner is the seller for create and remove, and the buyer for buy.
type MarketTransaction struct {
	TxType  string
	Owner   cipher.Address
	TokenID kitty.KittyID
}

// Kind implements Event
func (MarketTransaction) Kind() Kind { return KindMarketTransaction }

// MarshalJSON renders addresses in base58
func (e MarketTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TxType  string        `json:"tx_type"`
		Owner   string        `json:"owner"`
		TokenID kitty.KittyID `json:"token_id"`
	}{e.TxType, kitty.AddressString(e.Owner), e.TokenID})
}

// Envelope wraps an event with its kind for transport
type Envelope struct {
	Kind Kind  `json:"kind"`
	Data Event `json:"data"`
}

// Encode marshals an event wrapped in an Envelope
func Encode(e Event) ([]byte, error) {
	return json.Marshal(Envelope{
		Kind: e.Kind(),
		Data: e,
	})
}
