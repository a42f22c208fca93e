package events

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/skycoin/skycoin/src/cipher"
	"github.com/stretchr/testify/require"

	"github.com/kittycash/kittymarket/src/util/testutil"
)

func newAddress() cipher.Address {
	pk, _ := cipher.GenerateKeyPair()
	return cipher.AddressFromPubKey(pk)
}

type failingSink struct{}

func (failingSink) Publish(Event) error {
	return errors.New("sink down")
}

func TestEncode(t *testing.T) {
	from := newAddress()
	to := newAddress()

	data, err := Encode(Transfer{From: from, To: to, TokenID: 7})
	require.NoError(t, err)

	var out struct {
		Kind Kind `json:"kind"`
		Data struct {
			From    string `json:"from"`
			To      string `json:"to"`
			TokenID uint64 `json:"token_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, KindTransfer, out.Kind)
	require.Equal(t, from.String(), out.Data.From)
	require.Equal(t, to.String(), out.Data.To)
	require.Equal(t, uint64(7), out.Data.TokenID)
}

func TestEncodeBirthNullOwner(t *testing.T) {
	data, err := Encode(Birth{KittenID: 3, MumID: 2, DadID: 1, Genes: big.NewInt(1234)})
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"Birth","data":{"owner":"","kitten_id":3,"mum_id":2,"dad_id":1,"genes":1234}}`, string(data))
}

func TestFeedPublish(t *testing.T) {
	log, hook := testutil.NewLogger(t)
	f := NewFeed(log)

	rec := &Recorder{}
	f.AddSink(failingSink{})
	f.AddSink(rec)

	c, unsubscribe := f.Subscribe(2)

	owner := newAddress()
	evs := []Event{
		ApprovalForAll{Owner: owner, Operator: newAddress(), Approved: true},
		MarketTransaction{TxType: TxTypeCreate, Owner: owner, TokenID: 1},
		MarketTransaction{TxType: TxTypeRemove, Owner: owner, TokenID: 1},
	}
	f.Publish(evs...)

	// the sink sees everything, the subscriber only what fits its buffer
	require.Equal(t, evs, rec.Events())
	require.Equal(t, evs[0], <-c)
	require.Equal(t, evs[1], <-c)

	var sinkErrors, dropped int
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "Sink.Publish failed":
			sinkErrors++
		case "Subscriber channel full, dropping event":
			dropped++
		}
	}
	require.Equal(t, 3, sinkErrors)
	require.Equal(t, 1, dropped)

	unsubscribe()
	unsubscribe()
	_, ok := <-c
	require.False(t, ok)

	// publishing after unsubscribe does not panic on the closed channel
	f.Publish(evs[0])
	require.Len(t, rec.Events(), 4)

	rec.Reset()
	require.Empty(t, rec.Events())
}
