package kitty

import (
	"testing"

	"github.com/skycoin/skycoin/src/cipher"
	"github.com/stretchr/testify/require"
)

func TestKittyIDs(t *testing.T) {
	var ids KittyIDs
	ids.Add(3)
	ids.Add(1)
	ids.Add(2)
	require.Equal(t, KittyIDs{1, 2, 3}, ids)
	require.True(t, ids.Contains(2))

	require.True(t, ids.Remove(2))
	require.False(t, ids.Remove(2))
	require.False(t, ids.Contains(2))
	require.Equal(t, KittyIDs{1, 3}, ids)
}

func TestKittyIDFromString(t *testing.T) {
	id, err := KittyIDFromString("42")
	require.NoError(t, err)
	require.Equal(t, KittyID(42), id)
	require.Equal(t, "42", id.String())

	_, err = KittyIDFromString("-1")
	require.Error(t, err)
}

func TestAddress(t *testing.T) {
	require.True(t, IsNull(NullAddress))
	require.Equal(t, "", AddressString(NullAddress))

	addr, err := ParseAddress("")
	require.NoError(t, err)
	require.True(t, IsNull(addr))

	pk, _ := cipher.GenerateKeyPair()
	want := cipher.AddressFromPubKey(pk)

	addr, err = ParseAddress(want.String())
	require.NoError(t, err)
	require.Equal(t, want, addr)
	require.Equal(t, want.String(), AddressString(addr))

	_, err = ParseAddress("not-an-address")
	require.Error(t, err)
}

func TestIsFounder(t *testing.T) {
	require.True(t, Kitty{ID: 1}.IsFounder())
	require.False(t, Kitty{ID: 3, DadID: 1, MumID: 2}.IsFounder())
}
