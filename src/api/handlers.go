package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/funds"
	"github.com/kittycash/kittymarket/src/kitty"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/market"
	"github.com/kittycash/kittymarket/src/registry"
	"github.com/kittycash/kittymarket/src/util/httputil"
	"github.com/kittycash/kittymarket/src/util/logger"
)

// Registry is the kitty registry served by the API
type Registry interface {
	Name() string
	Symbol() string
	Address() cipher.Address
	Gen0Count() (uint64, error)
	Gen0Limit() uint64
	TotalSupply() (uint64, error)
	GetKitty(id kitty.KittyID) (*kitty.Kitty, error)
	OwnerOf(id kitty.KittyID) (cipher.Address, error)
	GetApproved(id kitty.KittyID) (cipher.Address, error)
	BalanceOf(addr cipher.Address) (uint64, error)
	GetAssetsOwnedBy(addr cipher.Address) (kitty.KittyIDs, error)
	IsApprovedForAll(owner, operator cipher.Address) (bool, error)
	SupportsInterface(id uint32) bool
	MintFounder(ctx context.Context, caller cipher.Address, g *big.Int, owner cipher.Address) (kitty.KittyID, error)
	Breed(ctx context.Context, caller cipher.Address, dadID, mumID kitty.KittyID) (*kitty.Kitty, error)
	Approve(ctx context.Context, caller, approved cipher.Address, id kitty.KittyID) error
	SetApprovalForAll(ctx context.Context, caller, operator cipher.Address, approved bool) error
	Transfer(ctx context.Context, caller, to cipher.Address, id kitty.KittyID) error
	TransferFrom(ctx context.Context, caller, from, to cipher.Address, id kitty.KittyID) error
	SafeTransferFrom(ctx context.Context, caller, from, to cipher.Address, id kitty.KittyID, data []byte) error
}

// Market is the offer book served by the API
type Market interface {
	Address() cipher.Address
	SetOffer(ctx context.Context, caller cipher.Address, price uint64, id kitty.KittyID) (*market.Offer, error)
	RemoveOffer(ctx context.Context, caller cipher.Address, id kitty.KittyID) error
	BuyKitty(ctx context.Context, buyer cipher.Address, id kitty.KittyID, payment uint64) error
	GetOffer(id kitty.KittyID) (*market.Offer, error)
	HasActiveOffer(id kitty.KittyID) bool
	GetAllActiveOffers() (kitty.KittyIDs, error)
}

// Funds are the balances served by the API
type Funds interface {
	BalanceOf(addr cipher.Address) (uint64, error)
	Deposit(ctx context.Context, caller, to cipher.Address, amount uint64) (uint64, error)
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch err {
	case registry.ErrUnknownAsset, market.ErrNoActiveOffer:
		return http.StatusNotFound
	case registry.ErrNotAuthorized, market.ErrNotOperator, market.ErrNotSeller, funds.ErrNotMinter:
		return http.StatusForbidden
	case registry.ErrInvalidDestination, registry.ErrInvalidGenes, market.ErrWrongPrice,
		funds.ErrInvalidAddress, funds.ErrZeroAmount:
		return http.StatusBadRequest
	case registry.ErrLimitExceeded, market.ErrDuplicateOffer, funds.ErrInsufficientFunds,
		funds.ErrBalanceOverflow, ledger.ErrReentrantCall:
		return http.StatusConflict
	case registry.ErrReceiverRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func serviceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	log := logger.FromContext(ctx)

	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Errorf("%s failed", op)
		err = errInternalServerError
	}

	errorResponse(ctx, w, status, err)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, data interface{}) {
	if err := httputil.JSONResponse(w, data); err != nil {
		logger.FromContext(ctx).WithError(err).Error(err)
	}
}

func decodeRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		errorResponse(ctx, w, http.StatusUnsupportedMediaType, errors.New("Invalid content type"))
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errorResponse(ctx, w, http.StatusBadRequest, fmt.Errorf("Invalid json request body: %v", err))
		return false
	}

	return true
}

func parseKittyID(ctx context.Context, w http.ResponseWriter, s string) (kitty.KittyID, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		errorResponse(ctx, w, http.StatusBadRequest, errors.New("Missing kitty_id"))
		return 0, false
	}

	id, err := kitty.KittyIDFromString(s)
	if err != nil {
		errorResponse(ctx, w, http.StatusBadRequest, errors.New("Invalid kitty_id"))
		return 0, false
	}

	return id, true
}

// parseAddress decodes a base58 address. The empty string is the null identity
// unless the address is required.
func parseAddress(ctx context.Context, w http.ResponseWriter, name, s string, required bool) (cipher.Address, bool) {
	s = strings.TrimSpace(s)
	if s == "" && required {
		errorResponse(ctx, w, http.StatusBadRequest, fmt.Errorf("Missing %s", name))
		return cipher.Address{}, false
	}

	addr, err := kitty.ParseAddress(s)
	if err != nil {
		errorResponse(ctx, w, http.StatusBadRequest, fmt.Errorf("Invalid %s", name))
		return cipher.Address{}, false
	}

	return addr, true
}

// RegistryResponse http response for /api/registry
type RegistryResponse struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Address       string `json:"address"`
	MarketAddress string `json:"market_address"`
	Gen0Count     uint64 `json:"gen0_count"`
	Gen0Limit     uint64 `json:"gen0_limit"`
	TotalSupply   uint64 `json:"total_supply"`
}

// RegistryHandler returns the registry summary
// Method: GET
// URI: /api/registry
func RegistryHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !validMethod(ctx, w, r, []string{http.MethodGet}) {
			return
		}

		n, err := s.registry.Gen0Count()
		if err != nil {
			serviceError(ctx, w, "registry.Gen0Count", err)
			return
		}

		total, err := s.registry.TotalSupply()
		if err != nil {
			serviceError(ctx, w, "registry.TotalSupply", err)
			return
		}

		writeJSON(ctx, w, RegistryResponse{
			Name:          s.registry.Name(),
			Symbol:        s.registry.Symbol(),
			Address:       s.registry.Address().String(),
			MarketAddress: s.market.Address().String(),
			Gen0Count:     n,
			Gen0Limit:     s.registry.Gen0Limit(),
			TotalSupply:   total,
		})
	}
}

// KittyResponse http response for /api/kitty
type KittyResponse struct {
	KittyID    kitty.KittyID `json:"kitty_id"`
	Genes      string        `json:"genes"`
	BirthTime  int64         `json:"birth_time"`
	MumID      kitty.KittyID `json:"mum_id"`
	DadID      kitty.KittyID `json:"dad_id"`
	Generation uint64        `json:"generation"`
	Owner      string        `json:"owner"`
	Approved   string        `json:"approved"`
	OnSale     bool          `json:"on_sale"`
}

func newKittyResponse(k *kitty.Kitty) KittyResponse {
	return KittyResponse{
		KittyID:    k.ID,
		Genes:      k.Genes.String(),
		BirthTime:  k.BirthTime,
		MumID:      k.MumID,
		DadID:      k.DadID,
		Generation: k.Generation,
	}
}

// KittyHandler returns a kitty with its owner and approval
// Method: GET
// URI: /api/kitty
// Args:
//     id
func KittyHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !validMethod(ctx, w, r, []string{http.MethodGet}) {
			return
		}

		id, ok := parseKittyID(ctx, w, r.URL.Query().Get("id"))
		if !ok {
			return
		}

		k, err := s.registry.GetKitty(id)
		if err != nil {
			serviceError(ctx, w, "registry.GetKitty", err)
			return
		}

		resp := newKittyResponse(k)

		// the sentinel kitty has no owner
		if id != kitty.NoKitty {
			owner, err := s.registry.OwnerOf(id)
			if err != nil {
				serviceError(ctx, w, "registry.OwnerOf", err)
				return
			}

			approved, err := s.registry.GetApproved(id)
			if err != nil {
				serviceError(ctx, w, "registry.GetApproved", err)
				return
			}

			resp.Owner = kitty.AddressString(owner)
			resp.Approved = kitty.AddressString(approved)
			resp.OnSale = s.market.HasActiveOffer(id)
		}

		writeJSON(ctx, w, resp)
	}
}

// KittiesResponse http response for /api/kitties
type KittiesResponse struct {
	Owner    string         `json:"owner"`
	KittyIDs kitty.KittyIDs `json:"kitty_ids"`
}

// KittiesHandler returns the kitties owned by an address
// Method: GET
// URI: /api/kitties
// Args:
//     owner
func KittiesHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !validMethod(ctx, w, r, []string{http.MethodGet}) {
			return
		}

		owner, ok := parseAddress(ctx, w, "owner", r.URL.Query().Get("owner"), true)
		if !ok {
			return
		}

		ids, err := s.registry.GetAssetsOwnedBy(owner)
		if err != nil {
			serviceError(ctx, w, "registry.GetAssetsOwnedBy", err)
			return
		}

		writeJSON(ctx, w, KittiesResponse{
			Owner:    owner.String(),
			KittyIDs: ids,
		})
	}
}

// BalanceResponse http response for /api/balance
type BalanceResponse struct {
	Address string `json:"address"`
	Kitties uint64 `json:"kitties"`
	Funds   uint64 `json:"funds"`
}

// BalanceHandler returns the number of kitties and the funds of an address
// Method: GET
// URI: /api/balance
// Args:
//     addr
func BalanceHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !validMethod(ctx, w, r, []string{http.MethodGet}) {
			return
		}

		addr, ok := parseAddress(ctx, w, "addr", r.URL.Query().Get("addr"), true)
		if !ok {
			return
		}

		n, err := s.registry.BalanceOf(addr)
		if err != nil {
			serviceError(ctx, w, "registry.BalanceOf", err)
			return
		}

		bal, err := s.funds.BalanceOf(addr)
		if err != nil {
			serviceError(ctx, w, "funds.BalanceOf", err)
			return
		}

		writeJSON(ctx, w, BalanceResponse{
			Address: addr.String(),
			Kitties: n,
			Funds:   bal,
		})
	}
}

// OperatorResponse http response for /api/operator
type OperatorResponse struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

// OperatorHandler reports whether operator holds a standing grant from owner
// Method: GET
// URI: /api/operator
// Args:
//     owner
//     operator
func OperatorHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !validMethod(ctx, w, r, []string{http.MethodGet}) {
			return
		}

		owner, ok := parseAddress(ctx, w, "owner", r.URL.Query().Get("owner"), true)
		if !ok {
			return
		}

		operator, ok := parseAddress(ctx, w, "operator", r.URL.Query().Get("operator"), true)
		if !ok {
			return
		}

		approved, err := s.registry.IsApprovedForAll(owner, operator)
		if err != nil {
			serviceError(ctx, w, "registry.IsApprovedForAll", err)
			return
		}

		writeJSON(ctx, w, OperatorResponse{
			Owner:    owner.String(),
			Operator: operator.String(),
			Approved: approved,
		})
	}
}

// SupportsResponse http response for /api/supports
type SupportsResponse struct {
	Interface string `json:"interface"`
	Supported bool   `json:"supported"`
}

// SupportsHandler answers interface discovery queries
// Method: GET
// URI: /api/supports
// Args:
//     interface: 4 byte interface id in hex, e.g. 0x80ac58cd
func SupportsHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !validMethod(ctx, w, r, []string{http.MethodGet}) {
			return
		}

		v := strings.TrimSpace(r.URL.Query().Get("interface"))
		if v == "" {
			errorResponse(ctx, w, http.StatusBadRequest, errors.New("Missing interface"))
			return
		}

		id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(v), "0x"), 16, 32)
		if err != nil {
			errorResponse(ctx, w, http.StatusBadRequest, errors.New("Invalid interface"))
			return
		}

		writeJSON(ctx, w, SupportsResponse{
			Interface: fmt.Sprintf("0x%08x", id),
			Supported: s.registry.SupportsInterface(uint32(id)),
		})
	}
}

type mintRequest struct {
	Genes string `json:"genes"`
	Owner string `json:"owner"`
}

// MintResponse http response for /api/mint
type MintResponse struct {
	KittyID kitty.KittyID `json:"kitty_id"`
}

// MintHandler mints a founder kitty. Only the minting authority may call it.
// Method: POST
// Accept: application/json
// URI: /api/mint
// Args:
//    {"genes": "<decimal genes>", "owner": "<owner address>"}
func MintHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)

		req := &mintRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		g, ok := new(big.Int).SetString(strings.TrimSpace(req.Genes), 10)
		if !ok {
			errorResponse(ctx, w, http.StatusBadRequest, errors.New("Invalid genes"))
			return
		}

		owner, ok := parseAddress(ctx, w, "owner", req.Owner, true)
		if !ok {
			return
		}

		id, err := s.registry.MintFounder(ctx, callerFromContext(ctx), g, owner)
		if err != nil {
			serviceError(ctx, w, "registry.MintFounder", err)
			return
		}

		log.WithField("kittyID", id).Info("Minted founder")

		writeJSON(ctx, w, MintResponse{
			KittyID: id,
		})
	}
}

type breedRequest struct {
	DadID kitty.KittyID `json:"dad_id"`
	MumID kitty.KittyID `json:"mum_id"`
}

// BreedHandler breeds two kitties and gives the child to the caller
// Method: POST
// Accept: application/json
// URI: /api/breed
// Args:
//    {"dad_id": <dad id>, "mum_id": <mum id>}
func BreedHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req := &breedRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		child, err := s.registry.Breed(ctx, callerFromContext(ctx), req.DadID, req.MumID)
		if err != nil {
			serviceError(ctx, w, "registry.Breed", err)
			return
		}

		resp := newKittyResponse(child)
		resp.Owner = callerFromContext(ctx).String()

		writeJSON(ctx, w, resp)
	}
}

type approveRequest struct {
	Approved string        `json:"approved"`
	KittyID  kitty.KittyID `json:"kitty_id"`
}

// ApproveHandler sets the approval slot of a kitty. An empty approved clears it.
// Method: POST
// Accept: application/json
// URI: /api/approve
// Args:
//    {"approved": "<address>", "kitty_id": <kitty id>}
func ApproveHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req := &approveRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		approved, ok := parseAddress(ctx, w, "approved", req.Approved, false)
		if !ok {
			return
		}

		if err := s.registry.Approve(ctx, callerFromContext(ctx), approved, req.KittyID); err != nil {
			serviceError(ctx, w, "registry.Approve", err)
			return
		}

		writeJSON(ctx, w, KittyResponse{
			KittyID:  req.KittyID,
			Approved: kitty.AddressString(approved),
		})
	}
}

type setOperatorRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

// SetOperatorHandler grants or revokes an operator for all of the caller's kitties
// Method: POST
// Accept: application/json
// URI: /api/operator
// Args:
//    {"operator": "<address>", "approved": true}
func SetOperatorHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req := &setOperatorRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		operator, ok := parseAddress(ctx, w, "operator", req.Operator, true)
		if !ok {
			return
		}

		caller := callerFromContext(ctx)
		if err := s.registry.SetApprovalForAll(ctx, caller, operator, req.Approved); err != nil {
			serviceError(ctx, w, "registry.SetApprovalForAll", err)
			return
		}

		writeJSON(ctx, w, OperatorResponse{
			Owner:    caller.String(),
			Operator: operator.String(),
			Approved: req.Approved,
		})
	}
}

type transferRequest struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	KittyID kitty.KittyID `json:"kitty_id"`
	Safe    bool          `json:"safe"`
	Data    []byte        `json:"data"`
}

// TransferResponse http response for /api/transfer
type TransferResponse struct {
	KittyID kitty.KittyID `json:"kitty_id"`
	Owner   string        `json:"owner"`
}

// TransferHandler moves a kitty. Without "from" the kitty moves from its current owner.
// With "safe" a contract recipient must acknowledge the kitty.
// Method: POST
// Accept: application/json
// URI: /api/transfer
// Args:
//    {"from": "<address>", "to": "<address>", "kitty_id": <kitty id>, "safe": false, "data": "<base64>"}
func TransferHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)

		req := &transferRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		from, ok := parseAddress(ctx, w, "from", req.From, req.Safe)
		if !ok {
			return
		}

		to, ok := parseAddress(ctx, w, "to", req.To, false)
		if !ok {
			return
		}

		caller := callerFromContext(ctx)
		log = log.WithFields(logrus.Fields{
			"kittyID": req.KittyID,
			"safe":    req.Safe,
		})

		var err error
		switch {
		case req.Safe:
			err = s.registry.SafeTransferFrom(ctx, caller, from, to, req.KittyID, req.Data)
		case kitty.IsNull(from):
			err = s.registry.Transfer(ctx, caller, to, req.KittyID)
		default:
			err = s.registry.TransferFrom(ctx, caller, from, to, req.KittyID)
		}
		if err != nil {
			serviceError(ctx, w, "registry.Transfer", err)
			return
		}

		log.Info("Transferred kitty")

		writeJSON(ctx, w, TransferResponse{
			KittyID: req.KittyID,
			Owner:   to.String(),
		})
	}
}

type depositRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// DepositResponse http response for /api/deposit
type DepositResponse struct {
	Address string `json:"address"`
	Funds   uint64 `json:"funds"`
}

// DepositHandler credits funds to an address. Only the minting authority may call it.
// Method: POST
// Accept: application/json
// URI: /api/deposit
// Args:
//    {"to": "<address>", "amount": <amount>}
func DepositHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req := &depositRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		to, ok := parseAddress(ctx, w, "to", req.To, true)
		if !ok {
			return
		}

		bal, err := s.funds.Deposit(ctx, callerFromContext(ctx), to, req.Amount)
		if err != nil {
			serviceError(ctx, w, "funds.Deposit", err)
			return
		}

		writeJSON(ctx, w, DepositResponse{
			Address: to.String(),
			Funds:   bal,
		})
	}
}

// OffersResponse http response for /api/offers
type OffersResponse struct {
	KittyIDs kitty.KittyIDs `json:"kitty_ids"`
}

// OffersHandler returns every offer slot. Removed or sold offers leave 0 in their slot.
// Method: GET
// URI: /api/offers
func OffersHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !validMethod(ctx, w, r, []string{http.MethodGet}) {
			return
		}

		ids, err := s.market.GetAllActiveOffers()
		if err != nil {
			serviceError(ctx, w, "market.GetAllActiveOffers", err)
			return
		}

		writeJSON(ctx, w, OffersResponse{
			KittyIDs: ids,
		})
	}
}

// OfferHandler returns the active offer of a kitty
// Method: GET
// URI: /api/offer
// Args:
//     kitty_id
func OfferHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !validMethod(ctx, w, r, []string{http.MethodGet}) {
			return
		}

		id, ok := parseKittyID(ctx, w, r.URL.Query().Get("kitty_id"))
		if !ok {
			return
		}

		offer, err := s.market.GetOffer(id)
		if err != nil {
			serviceError(ctx, w, "market.GetOffer", err)
			return
		}

		writeJSON(ctx, w, offer)
	}
}

type setOfferRequest struct {
	Price   uint64        `json:"price"`
	KittyID kitty.KittyID `json:"kitty_id"`
}

// SetOfferHandler lists one of the caller's kitties for sale
// Method: POST
// Accept: application/json
// URI: /api/offer
// Args:
//    {"price": <price>, "kitty_id": <kitty id>}
func SetOfferHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req := &setOfferRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		offer, err := s.market.SetOffer(ctx, callerFromContext(ctx), req.Price, req.KittyID)
		if err != nil {
			serviceError(ctx, w, "market.SetOffer", err)
			return
		}

		writeJSON(ctx, w, offer)
	}
}

type kittyRequest struct {
	KittyID kitty.KittyID `json:"kitty_id"`
}

// RemoveOfferHandler withdraws the caller's offer of a kitty
// Method: POST
// Accept: application/json
// URI: /api/offer/remove
// Args:
//    {"kitty_id": <kitty id>}
func RemoveOfferHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req := &kittyRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		if err := s.market.RemoveOffer(ctx, callerFromContext(ctx), req.KittyID); err != nil {
			serviceError(ctx, w, "market.RemoveOffer", err)
			return
		}

		writeJSON(ctx, w, req)
	}
}

type buyRequest struct {
	KittyID kitty.KittyID `json:"kitty_id"`
	Payment uint64        `json:"payment"`
}

// BuyHandler buys a kitty for exactly its offer price
// Method: POST
// Accept: application/json
// URI: /api/buy
// Args:
//    {"kitty_id": <kitty id>, "payment": <payment>}
func BuyHandler(s *HTTPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req := &buyRequest{}
		if !decodeRequest(ctx, w, r, req) {
			return
		}

		buyer := callerFromContext(ctx)
		if err := s.market.BuyKitty(ctx, buyer, req.KittyID, req.Payment); err != nil {
			serviceError(ctx, w, "market.BuyKitty", err)
			return
		}

		writeJSON(ctx, w, TransferResponse{
			KittyID: req.KittyID,
			Owner:   buyer.String(),
		})
	}
}
