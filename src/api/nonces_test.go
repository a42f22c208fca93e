package api

import (
	"context"
	"testing"

	"github.com/skycoin/skycoin/src/cipher"
	"github.com/stretchr/testify/require"

	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/util/testutil"
)

func TestNonceStoreAdvance(t *testing.T) {
	db, shutdown := testutil.PrepareDB(t)
	defer shutdown()
	log, _ := testutil.NewLogger(t)

	ldb, err := ledger.New(log, db, nil)
	require.NoError(t, err)

	s, err := NewNonceStore(log, ldb)
	require.NoError(t, err)

	alice := newKeyPair().addr
	bob := newKeyPair().addr
	ctx := context.Background()

	last, err := s.Last(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(0), last)

	tt := []struct {
		name   string
		caller cipher.Address
		nonce  uint64
		err    error
	}{
		{"zero is never valid", alice, 0, ErrStaleNonce},
		{"first", alice, 1, nil},
		{"replay", alice, 1, ErrStaleNonce},
		{"skip ahead", alice, 10, nil},
		{"behind", alice, 9, ErrStaleNonce},
		{"other caller", bob, 1, nil},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.err, s.Advance(ctx, tc.caller, tc.nonce))
		})
	}

	last, err = s.Last(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10), last)

	last, err = s.Last(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1), last)

	_, err = NewNonceStore(log, nil)
	require.Error(t, err)
}
