package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skycoin/skycoin/src/cipher"
	"github.com/stretchr/testify/require"

	"github.com/kittycash/kittymarket/src/config"
	"github.com/kittycash/kittymarket/src/events"
	"github.com/kittycash/kittymarket/src/funds"
	"github.com/kittycash/kittymarket/src/genes"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/market"
	"github.com/kittycash/kittymarket/src/receiver"
	"github.com/kittycash/kittymarket/src/registry"
	"github.com/kittycash/kittymarket/src/util/httputil"
	"github.com/kittycash/kittymarket/src/util/testutil"
)

type keyPair struct {
	pk   cipher.PubKey
	sk   cipher.SecKey
	addr cipher.Address
}

func newKeyPair() keyPair {
	pk, sk := cipher.GenerateKeyPair()
	return keyPair{
		pk:   pk,
		sk:   sk,
		addr: cipher.AddressFromPubKey(pk),
	}
}

type testServer struct {
	handler   http.Handler
	market    *market.Market
	contracts *receiver.Directory
	nonces    *NonceStore
	minter    keyPair
	sent      map[cipher.Address]uint64
}

func newTestServer(t *testing.T) (*testServer, func()) {
	db, shutdown := testutil.PrepareDB(t)
	log, _ := testutil.NewLogger(t)

	metrics := NewMetrics()
	feed := events.NewFeed(log)
	feed.AddSink(metrics)

	ldb, err := ledger.New(log, db, feed)
	require.NoError(t, err)

	minter := newKeyPair()
	contracts := receiver.NewDirectory(log)

	reg, err := registry.New(log, ldb, contracts, registry.Config{
		Address:   newKeyPair().addr,
		Minter:    minter.addr,
		Gen0Limit: 3,
	})
	require.NoError(t, err)

	store, err := funds.NewStore(log, ldb, minter.addr)
	require.NoError(t, err)

	m, err := market.New(log, ldb, reg, store, newKeyPair().addr)
	require.NoError(t, err)

	nonces, err := NewNonceStore(log, ldb)
	require.NoError(t, err)

	s := NewHTTPServer(log, config.Web{HTTPAddr: "127.0.0.1:0"}, reg, m, store, nonces, metrics)

	return &testServer{
		handler:   s.setupMux(),
		market:    m,
		contracts: contracts,
		nonces:    nonces,
		minter:    minter,
		sent:      make(map[cipher.Address]uint64),
	}, shutdown
}

func (ts *testServer) nextNonce(kp keyPair) uint64 {
	ts.sent[kp.addr]++
	return ts.sent[kp.addr]
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) get(t *testing.T, url string) *httptest.ResponseRecorder {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return ts.do(req)
}

func (ts *testServer) post(t *testing.T, url string, kp keyPair, body interface{}) *httptest.ResponseRecorder {
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	SignRequest(req, kp.pk, kp.sk, ts.nextNonce(kp), b)

	return ts.do(req)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func requireError(t *testing.T, rr *httptest.ResponseRecorder, status int, msg string) {
	require.Equal(t, status, rr.Code, rr.Body.String())
	var e httputil.HTTPError
	decode(t, rr, &e)
	require.Equal(t, msg, e.Error)
}

func (ts *testServer) mint(t *testing.T, owner cipher.Address) uint64 {
	rr := ts.post(t, "/api/mint", ts.minter, map[string]string{
		"genes": "9988776604332215",
		"owner": owner.String(),
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp MintResponse
	decode(t, rr, &resp)
	return uint64(resp.KittyID)
}

func TestAuthenticate(t *testing.T) {
	ts, shutdown := newTestServer(t)
	defer shutdown()

	body := []byte(`{"genes":"1","owner":""}`)
	other := newKeyPair()

	tt := []struct {
		name   string
		method string
		ctype  string
		sign   func(*http.Request)
		status int
		err    string
	}{
		{
			"405",
			http.MethodGet,
			"application/json",
			func(r *http.Request) { SignRequest(r, ts.minter.pk, ts.minter.sk, ts.nextNonce(ts.minter), body) },
			http.StatusMethodNotAllowed,
			"Method Not Allowed",
		},
		{
			"401 missing headers",
			http.MethodPost,
			"application/json",
			func(*http.Request) {},
			http.StatusUnauthorized,
			"Missing request signature",
		},
		{
			"401 signed other body",
			http.MethodPost,
			"application/json",
			func(r *http.Request) { SignRequest(r, ts.minter.pk, ts.minter.sk, ts.nextNonce(ts.minter), []byte("{}")) },
			http.StatusUnauthorized,
			"Invalid request signature",
		},
		{
			"401 key does not match signature",
			http.MethodPost,
			"application/json",
			func(r *http.Request) { SignRequest(r, other.pk, ts.minter.sk, ts.nextNonce(other), body) },
			http.StatusUnauthorized,
			"Invalid request signature",
		},
		{
			"401 bad hex",
			http.MethodPost,
			"application/json",
			func(r *http.Request) {
				r.Header.Set(PubKeyHeader, "zz")
				r.Header.Set(SigHeader, "zz")
				r.Header.Set(NonceHeader, "1")
			},
			http.StatusUnauthorized,
			"Invalid request signature",
		},
		{
			"401 missing nonce",
			http.MethodPost,
			"application/json",
			func(r *http.Request) {
				SignRequest(r, ts.minter.pk, ts.minter.sk, ts.nextNonce(ts.minter), body)
				r.Header.Del(NonceHeader)
			},
			http.StatusUnauthorized,
			"Missing request signature",
		},
		{
			"401 nonce not a number",
			http.MethodPost,
			"application/json",
			func(r *http.Request) {
				SignRequest(r, ts.minter.pk, ts.minter.sk, ts.nextNonce(ts.minter), body)
				r.Header.Set(NonceHeader, "x")
			},
			http.StatusUnauthorized,
			"Invalid request signature",
		},
		{
			"401 nonce not the signed one",
			http.MethodPost,
			"application/json",
			func(r *http.Request) {
				SignRequest(r, ts.minter.pk, ts.minter.sk, ts.nextNonce(ts.minter), body)
				r.Header.Set(NonceHeader, "1000")
			},
			http.StatusUnauthorized,
			"Invalid request signature",
		},
		{
			"401 signed for another path",
			http.MethodPost,
			"application/json",
			func(r *http.Request) {
				deposit, err := http.NewRequest(http.MethodPost, "/api/deposit", nil)
				require.NoError(t, err)
				SignRequest(deposit, ts.minter.pk, ts.minter.sk, ts.nextNonce(ts.minter), body)
				for _, h := range []string{PubKeyHeader, SigHeader, NonceHeader} {
					r.Header.Set(h, deposit.Header.Get(h))
				}
			},
			http.StatusUnauthorized,
			"Invalid request signature",
		},
		{
			"415",
			http.MethodPost,
			"text/plain",
			func(r *http.Request) { SignRequest(r, ts.minter.pk, ts.minter.sk, ts.nextNonce(ts.minter), body) },
			http.StatusUnsupportedMediaType,
			"Invalid content type",
		},
		{
			"400 owner missing",
			http.MethodPost,
			"application/json",
			func(r *http.Request) { SignRequest(r, ts.minter.pk, ts.minter.sk, ts.nextNonce(ts.minter), body) },
			http.StatusBadRequest,
			"Missing owner",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, "/api/mint", bytes.NewReader(body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", tc.ctype)
			tc.sign(req)

			requireError(t, ts.do(req), tc.status, tc.err)
		})
	}
}

func TestMintAndQuery(t *testing.T) {
	ts, shutdown := newTestServer(t)
	defer shutdown()

	owner := newKeyPair()

	rr := ts.post(t, "/api/mint", owner, map[string]string{
		"genes": "1",
		"owner": owner.addr.String(),
	})
	requireError(t, rr, http.StatusForbidden, registry.ErrNotAuthorized.Error())

	rr = ts.post(t, "/api/mint", ts.minter, map[string]string{
		"genes": "abc",
		"owner": owner.addr.String(),
	})
	requireError(t, rr, http.StatusBadRequest, "Invalid genes")

	require.Equal(t, uint64(1), ts.mint(t, owner.addr))
	require.Equal(t, uint64(2), ts.mint(t, owner.addr))

	rr = ts.get(t, "/api/kitty?id=1")
	require.Equal(t, http.StatusOK, rr.Code)
	var k KittyResponse
	decode(t, rr, &k)
	require.Equal(t, "9988776604332215", k.Genes)
	require.Equal(t, owner.addr.String(), k.Owner)
	require.Equal(t, "", k.Approved)
	require.False(t, k.OnSale)

	rr = ts.get(t, "/api/kitty?id=0")
	require.Equal(t, http.StatusOK, rr.Code)
	k = KittyResponse{}
	decode(t, rr, &k)
	require.Equal(t, genes.MaxGenes.String(), k.Genes)
	require.Equal(t, "", k.Owner)

	requireError(t, ts.get(t, "/api/kitty?id=9"), http.StatusNotFound, registry.ErrUnknownAsset.Error())
	requireError(t, ts.get(t, "/api/kitty?id=abc"), http.StatusBadRequest, "Invalid kitty_id")
	requireError(t, ts.get(t, "/api/kitty"), http.StatusBadRequest, "Missing kitty_id")

	rr = ts.get(t, "/api/kitties?owner="+owner.addr.String())
	require.Equal(t, http.StatusOK, rr.Code)
	var kitties KittiesResponse
	decode(t, rr, &kitties)
	require.Len(t, kitties.KittyIDs, 2)

	requireError(t, ts.get(t, "/api/kitties?owner=nope"), http.StatusBadRequest, "Invalid owner")

	rr = ts.get(t, "/api/balance?addr="+owner.addr.String())
	require.Equal(t, http.StatusOK, rr.Code)
	var bal BalanceResponse
	decode(t, rr, &bal)
	require.Equal(t, BalanceResponse{
		Address: owner.addr.String(),
		Kitties: 2,
	}, bal)

	rr = ts.get(t, "/api/registry")
	require.Equal(t, http.StatusOK, rr.Code)
	var reg RegistryResponse
	decode(t, rr, &reg)
	require.Equal(t, registry.DefaultName, reg.Name)
	require.Equal(t, registry.DefaultSymbol, reg.Symbol)
	require.Equal(t, ts.market.Address().String(), reg.MarketAddress)
	require.Equal(t, uint64(2), reg.Gen0Count)
	require.Equal(t, uint64(3), reg.Gen0Limit)
	require.Equal(t, uint64(2), reg.TotalSupply)

	ts.mint(t, owner.addr)
	rr = ts.post(t, "/api/mint", ts.minter, map[string]string{
		"genes": "1",
		"owner": owner.addr.String(),
	})
	requireError(t, rr, http.StatusConflict, registry.ErrLimitExceeded.Error())

	req, err := http.NewRequest(http.MethodPost, "/api/kitty?id=1", nil)
	require.NoError(t, err)
	requireError(t, ts.do(req), http.StatusMethodNotAllowed, "Invalid request method")
}

func TestBreedAndTransfer(t *testing.T) {
	ts, shutdown := newTestServer(t)
	defer shutdown()

	owner := newKeyPair()
	friend := newKeyPair()
	dad := ts.mint(t, owner.addr)
	mum := ts.mint(t, owner.addr)

	rr := ts.post(t, "/api/breed", friend, map[string]uint64{"dad_id": dad, "mum_id": mum})
	requireError(t, rr, http.StatusForbidden, registry.ErrNotAuthorized.Error())

	rr = ts.post(t, "/api/breed", owner, map[string]uint64{"dad_id": dad, "mum_id": mum})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var child KittyResponse
	decode(t, rr, &child)
	require.Equal(t, uint64(3), uint64(child.KittyID))
	require.Equal(t, uint64(1), child.Generation)
	require.Equal(t, owner.addr.String(), child.Owner)

	rr = ts.post(t, "/api/approve", owner, map[string]interface{}{
		"approved": friend.addr.String(),
		"kitty_id": child.KittyID,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.get(t, "/api/kitty?id=3")
	var k KittyResponse
	decode(t, rr, &k)
	require.Equal(t, friend.addr.String(), k.Approved)

	// the approved friend takes the kitty
	rr = ts.post(t, "/api/transfer", friend, map[string]interface{}{
		"from":     owner.addr.String(),
		"to":       friend.addr.String(),
		"kitty_id": child.KittyID,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.get(t, "/api/kitty?id=3")
	k = KittyResponse{}
	decode(t, rr, &k)
	require.Equal(t, friend.addr.String(), k.Owner)
	require.Equal(t, "", k.Approved)

	rr = ts.post(t, "/api/transfer", owner, map[string]interface{}{
		"kitty_id": dad,
	})
	requireError(t, rr, http.StatusBadRequest, registry.ErrInvalidDestination.Error())

	// safe transfer to a contract without an acceptance hook is rejected
	contract := newKeyPair().addr
	ts.contracts.Register(contract, nil)
	rr = ts.post(t, "/api/transfer", owner, map[string]interface{}{
		"from":     owner.addr.String(),
		"to":       contract.String(),
		"kitty_id": dad,
		"safe":     true,
	})
	requireError(t, rr, http.StatusBadGateway, registry.ErrReceiverRejected.Error())

	rr = ts.post(t, "/api/transfer", owner, map[string]interface{}{
		"to":       contract.String(),
		"kitty_id": dad,
		"safe":     true,
	})
	requireError(t, rr, http.StatusBadRequest, "Missing from")

	ts.contracts.Register(contract, receiver.Accept)
	rr = ts.post(t, "/api/transfer", owner, map[string]interface{}{
		"from":     owner.addr.String(),
		"to":       contract.String(),
		"kitty_id": dad,
		"safe":     true,
		"data":     []byte("hello"),
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.get(t, "/api/kitties?owner="+owner.addr.String())
	var kitties KittiesResponse
	decode(t, rr, &kitties)
	require.Len(t, kitties.KittyIDs, 1)
}

func TestSale(t *testing.T) {
	ts, shutdown := newTestServer(t)
	defer shutdown()

	seller := newKeyPair()
	buyer := newKeyPair()
	id := ts.mint(t, seller.addr)
	marketAddr := ts.market.Address().String()

	rr := ts.post(t, "/api/offer", seller, map[string]uint64{"price": 100, "kitty_id": id})
	requireError(t, rr, http.StatusForbidden, market.ErrNotOperator.Error())

	rr = ts.post(t, "/api/operator", seller, map[string]interface{}{
		"operator": marketAddr,
		"approved": true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.get(t, "/api/operator?owner="+seller.addr.String()+"&operator="+marketAddr)
	require.Equal(t, http.StatusOK, rr.Code)
	var op OperatorResponse
	decode(t, rr, &op)
	require.True(t, op.Approved)

	rr = ts.post(t, "/api/offer", seller, map[string]uint64{"price": 100, "kitty_id": id})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.post(t, "/api/offer", seller, map[string]uint64{"price": 100, "kitty_id": id})
	requireError(t, rr, http.StatusConflict, market.ErrDuplicateOffer.Error())

	rr = ts.get(t, "/api/offer?kitty_id=1")
	require.Equal(t, http.StatusOK, rr.Code)
	var offer market.Offer
	decode(t, rr, &offer)
	require.Equal(t, market.Offer{
		Seller:  seller.addr,
		Price:   100,
		TokenID: 1,
		Active:  true,
	}, offer)

	rr = ts.post(t, "/api/deposit", buyer, map[string]interface{}{"to": buyer.addr.String(), "amount": 100})
	requireError(t, rr, http.StatusForbidden, funds.ErrNotMinter.Error())

	rr = ts.post(t, "/api/deposit", ts.minter, map[string]interface{}{"to": buyer.addr.String(), "amount": 100})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.post(t, "/api/buy", buyer, map[string]uint64{"kitty_id": id, "payment": 99})
	requireError(t, rr, http.StatusBadRequest, market.ErrWrongPrice.Error())

	rr = ts.post(t, "/api/buy", buyer, map[string]uint64{"kitty_id": id, "payment": 100})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.post(t, "/api/buy", buyer, map[string]uint64{"kitty_id": id, "payment": 100})
	requireError(t, rr, http.StatusNotFound, market.ErrNoActiveOffer.Error())

	rr = ts.get(t, "/api/balance?addr="+seller.addr.String())
	var bal BalanceResponse
	decode(t, rr, &bal)
	require.Equal(t, uint64(0), bal.Kitties)
	require.Equal(t, uint64(100), bal.Funds)

	rr = ts.get(t, "/api/kitty?id=1")
	var k KittyResponse
	decode(t, rr, &k)
	require.Equal(t, buyer.addr.String(), k.Owner)

	rr = ts.get(t, "/api/offers")
	require.Equal(t, http.StatusOK, rr.Code)
	var offers OffersResponse
	decode(t, rr, &offers)
	require.Len(t, offers.KittyIDs, 1)
	require.Equal(t, uint64(0), uint64(offers.KittyIDs[0]))

	rr = ts.post(t, "/api/offer/remove", seller, map[string]uint64{"kitty_id": id})
	requireError(t, rr, http.StatusNotFound, market.ErrNoActiveOffer.Error())
}

func TestReplayedRequestRejected(t *testing.T) {
	ts, shutdown := newTestServer(t)
	defer shutdown()

	victim := newKeyPair()
	body, err := json.Marshal(map[string]interface{}{"to": victim.addr.String(), "amount": 100})
	require.NoError(t, err)

	signed, err := http.NewRequest(http.MethodPost, "/api/deposit", nil)
	require.NoError(t, err)
	SignRequest(signed, ts.minter.pk, ts.minter.sk, 5, body)

	send := func() *httptest.ResponseRecorder {
		req, err := http.NewRequest(http.MethodPost, "/api/deposit", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header = signed.Header.Clone()
		req.Header.Set("Content-Type", "application/json")
		return ts.do(req)
	}

	rr := send()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	for i := 0; i < 2; i++ {
		requireError(t, send(), http.StatusUnauthorized, ErrStaleNonce.Error())
	}

	rr = ts.get(t, "/api/balance?addr="+victim.addr.String())
	var bal BalanceResponse
	decode(t, rr, &bal)
	require.Equal(t, uint64(100), bal.Funds)

	last, err := ts.nonces.Last(ts.minter.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(5), last)

	// a lower nonce is stale too, a higher one goes through
	req, err := http.NewRequest(http.MethodPost, "/api/deposit", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	SignRequest(req, ts.minter.pk, ts.minter.sk, 4, body)
	requireError(t, ts.do(req), http.StatusUnauthorized, ErrStaleNonce.Error())

	ts.sent[ts.minter.addr] = 5
	rr = ts.post(t, "/api/deposit", ts.minter, map[string]interface{}{"to": victim.addr.String(), "amount": 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var dep DepositResponse
	decode(t, rr, &dep)
	require.Equal(t, uint64(101), dep.Funds)
}

func TestSupportsHandler(t *testing.T) {
	ts, shutdown := newTestServer(t)
	defer shutdown()

	tt := []struct {
		name      string
		query     string
		status    int
		supported bool
	}{
		{"erc165", "0x01ffc9a7", http.StatusOK, true},
		{"erc721 upper case", "0x80AC58CD", http.StatusOK, true},
		{"erc721 no prefix", "80ac58cd", http.StatusOK, true},
		{"unknown", "0xffffffff", http.StatusOK, false},
		{"too wide", "0x1ffffffff", http.StatusBadRequest, false},
		{"missing", "", http.StatusBadRequest, false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.get(t, "/api/supports?interface="+tc.query)
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}

			var resp SupportsResponse
			decode(t, rr, &resp)
			require.Equal(t, tc.supported, resp.Supported)
		})
	}
}

func TestMetrics(t *testing.T) {
	ts, shutdown := newTestServer(t)
	defer shutdown()

	ts.mint(t, newKeyPair().addr)
	ts.get(t, "/api/kitty?id=1")

	rr := ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	require.True(t, strings.Contains(body, `kittymarket_http_requests_total{method="POST",path="/api/mint",status="200"} 1`), body)
	require.True(t, strings.Contains(body, `kittymarket_http_requests_total{method="GET",path="/api/kitty",status="200"} 1`), body)
	require.True(t, strings.Contains(body, `kittymarket_events_published_total{kind="Birth"} 1`), body)
}

func TestStatusForError(t *testing.T) {
	tt := []struct {
		err    error
		status int
	}{
		{registry.ErrUnknownAsset, http.StatusNotFound},
		{market.ErrNoActiveOffer, http.StatusNotFound},
		{registry.ErrNotAuthorized, http.StatusForbidden},
		{market.ErrNotOperator, http.StatusForbidden},
		{market.ErrNotSeller, http.StatusForbidden},
		{registry.ErrInvalidDestination, http.StatusBadRequest},
		{market.ErrWrongPrice, http.StatusBadRequest},
		{registry.ErrLimitExceeded, http.StatusConflict},
		{market.ErrDuplicateOffer, http.StatusConflict},
		{funds.ErrInsufficientFunds, http.StatusConflict},
		{registry.ErrReceiverRejected, http.StatusBadGateway},
		{errInternalServerError, http.StatusInternalServerError},
	}

	for _, tc := range tt {
		t.Run(tc.err.Error(), func(t *testing.T) {
			require.Equal(t, tc.status, statusForError(tc.err))
		})
	}
}
