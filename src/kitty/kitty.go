// Package kitty holds the value types shared by the registry and the marketplace
package kitty

import (
	"math/big"
	"sort"
	"strconv"

	"github.com/skycoin/skycoin/src/cipher"
)

// KittyID identifies a kitty. ID 0 is the sentinel "un-kitty" and is never owned or traded.
type KittyID uint64

// NoKitty is the sentinel kitty ID, also used to mark tombstoned offer slots
const NoKitty KittyID = 0

// KittyIDFromString parses a decimal kitty ID
func KittyIDFromString(idStr string) (KittyID, error) {
	id, err := strconv.ParseUint(idStr, 10, 64)
	return KittyID(id), err
}

func (id KittyID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// KittyIDs is a list of kitty IDs
type KittyIDs []KittyID

// Sort sorts the IDs in ascending order
func (ids KittyIDs) Sort() {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
}

// Add inserts id keeping the list sorted
func (ids *KittyIDs) Add(id KittyID) {
	*ids = append(*ids, id)
	ids.Sort()
}

// Remove removes the first occurrence of id. It returns false if id was not in the list.
func (ids *KittyIDs) Remove(id KittyID) bool {
	for i, v := range *ids {
		if v == id {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether id is in the list
func (ids KittyIDs) Contains(id KittyID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Kitty is the immutable record of a kitty. Ownership and approvals live in the registry.
type Kitty struct {
	ID         KittyID  `json:"kitty_id"`
	Genes      *big.Int `json:"genes"`
	BirthTime  int64    `json:"birth_time"`
	MumID      KittyID  `json:"mum_id"`
	DadID      KittyID  `json:"dad_id"`
	Generation uint64   `json:"generation"`
}

// IsFounder reports whether the kitty has no parents
func (k Kitty) IsFounder() bool {
	return k.MumID == NoKitty && k.DadID == NoKitty
}

// NullAddress is the null identity. It owns the sentinel kitty and can never receive kitties.
var NullAddress = cipher.Address{}

// IsNull reports whether addr is the null identity
func IsNull(addr cipher.Address) bool {
	return addr == NullAddress
}

// AddressString renders addr in base58, or the empty string for the null identity
func AddressString(addr cipher.Address) string {
	if IsNull(addr) {
		return ""
	}
	return addr.String()
}

// ParseAddress decodes a base58 address. The empty string decodes to the null identity.
func ParseAddress(s string) (cipher.Address, error) {
	if s == "" {
		return NullAddress, nil
	}
	return cipher.DecodeBase58Address(s)
}
