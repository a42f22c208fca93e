package api

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"

	"github.com/kittycash/kittymarket/src/config"
	"github.com/kittycash/kittymarket/src/util/httputil"
	"github.com/kittycash/kittymarket/src/util/logger"
)

const (
	shutdownTimeout = time.Second * 5

	// maxBodySize is the largest request body accepted
	maxBodySize = 1 << 20

	// PubKeyHeader carries the hex public key of the caller
	PubKeyHeader = "X-Kitty-Pubkey"
	// SigHeader carries the hex signature of the request hash, see RequestHash
	SigHeader = "X-Kitty-Sig"
	// NonceHeader carries the decimal request nonce. Each caller's nonces must increase.
	NonceHeader = "X-Kitty-Nonce"
)

var (
	errInternalServerError = errors.New("Internal Server Error")
	errMissingSignature    = errors.New("Missing request signature")
	errInvalidSignature    = errors.New("Invalid request signature")
)

type callerKey struct{}

// HTTPServer exposes the registry, the market and funds over HTTP
type HTTPServer struct {
	cfg      config.Web
	log      logrus.FieldLogger
	registry Registry
	market   Market
	funds    Funds
	nonces   Nonces
	metrics  *Metrics
	server   *http.Server
	quit     chan struct{}
	done     chan struct{}
}

// NewHTTPServer creates an HTTPServer
func NewHTTPServer(log logrus.FieldLogger, cfg config.Web, registry Registry, market Market, funds Funds, nonces Nonces, metrics *Metrics) *HTTPServer {
	s := &HTTPServer{
		cfg:      cfg,
		log:      log.WithField("prefix", "kittymarket.http"),
		registry: registry,
		market:   market,
		funds:    funds,
		nonces:   nonces,
		metrics:  metrics,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      s.setupMux(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Run runs the HTTP server until Shutdown is called
func (s *HTTPServer) Run() error {
	log := s.log.WithField("config", s.cfg)
	log.Info("HTTP service start")
	defer log.Info("HTTP service closed")
	defer close(s.done)

	if err := s.server.ListenAndServe(); err != nil {
		select {
		case <-s.quit:
			return nil
		default:
			return err
		}
	}

	return nil
}

// Shutdown stops the HTTP server
func (s *HTTPServer) Shutdown() {
	s.log.Info("Shutting down HTTP server")
	defer s.log.Info("Shutdown HTTP server")

	close(s.quit)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("HTTP server shutdown error")
	}

	<-s.done
}

func (s *HTTPServer) setupMux() http.Handler {
	mux := http.NewServeMux()

	handle := func(path string, h http.Handler) {
		mux.Handle(path, s.instrument(path, h))
	}

	handleAuth := func(path string, h http.HandlerFunc) {
		handle(path, s.authenticate(h))
	}

	handle("/api/registry", RegistryHandler(s))
	handle("/api/kitty", KittyHandler(s))
	handle("/api/kitties", KittiesHandler(s))
	handle("/api/balance", BalanceHandler(s))
	handle("/api/supports", SupportsHandler(s))
	handle("/api/offers", OffersHandler(s))

	// GET is public, POST changes state and needs a signature
	handle("/api/operator", methodSwitch(OperatorHandler(s), s.authenticate(SetOperatorHandler(s))))
	handle("/api/offer", methodSwitch(OfferHandler(s), s.authenticate(SetOfferHandler(s))))

	handleAuth("/api/mint", MintHandler(s))
	handleAuth("/api/breed", BreedHandler(s))
	handleAuth("/api/approve", ApproveHandler(s))
	handleAuth("/api/transfer", TransferHandler(s))
	handleAuth("/api/deposit", DepositHandler(s))
	handleAuth("/api/offer/remove", RemoveOfferHandler(s))
	handleAuth("/api/buy", BuyHandler(s))

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return mux
}

// methodSwitch sends POST requests to post and everything else to get
func methodSwitch(get, post http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			post.ServeHTTP(w, r)
			return
		}
		get.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument attaches a request logger to the context and records metrics
func (s *HTTPServer) instrument(path string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		log := s.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		ctx := logger.WithContext(r.Context(), log)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r.WithContext(ctx))

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, path, sw.status, time.Since(start))
		}
	})
}

// authenticate verifies that the request was signed by the key in PubKeyHeader, consumes
// its nonce and stores the address of that key in the request context as the caller
func (s *HTTPServer) authenticate(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			httputil.ErrResponse(w, http.StatusMethodNotAllowed)
			return
		}

		pkHex := r.Header.Get(PubKeyHeader)
		sigHex := r.Header.Get(SigHeader)
		nonceStr := r.Header.Get(NonceHeader)
		if pkHex == "" || sigHex == "" || nonceStr == "" {
			errorResponse(ctx, w, http.StatusUnauthorized, errMissingSignature)
			return
		}

		nonce, err := strconv.ParseUint(nonceStr, 10, 64)
		if err != nil {
			errorResponse(ctx, w, http.StatusUnauthorized, errInvalidSignature)
			return
		}

		body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			errorResponse(ctx, w, http.StatusBadRequest, errors.New("Invalid request body"))
			return
		}
		defer func(log logrus.FieldLogger) {
			if err := r.Body.Close(); err != nil {
				log.WithError(err).Warn("Failed to closed request body")
			}
		}(log)

		hash := RequestHash(r.Method, r.URL.Path, nonce, body)
		caller, err := verifyRequest(pkHex, sigHex, hash)
		if err != nil {
			log.WithError(err).Info("Request signature rejected")
			errorResponse(ctx, w, http.StatusUnauthorized, errInvalidSignature)
			return
		}

		switch err := s.nonces.Advance(ctx, caller, nonce); err {
		case nil:
		case ErrStaleNonce:
			errorResponse(ctx, w, http.StatusUnauthorized, err)
			return
		default:
			log.WithError(err).Error("nonces.Advance failed")
			errorResponse(ctx, w, http.StatusInternalServerError, errInternalServerError)
			return
		}

		log = log.WithField("caller", caller.String())
		ctx = logger.WithContext(ctx, log)
		ctx = context.WithValue(ctx, callerKey{}, caller)

		r = r.WithContext(ctx)
		r.Body = ioutil.NopCloser(bytes.NewReader(body))

		h(w, r)
	})
}

func verifyRequest(pkHex, sigHex string, hash cipher.SHA256) (cipher.Address, error) {
	pk, err := cipher.PubKeyFromHex(pkHex)
	if err != nil {
		return cipher.Address{}, err
	}

	sig, err := cipher.SigFromHex(sigHex)
	if err != nil {
		return cipher.Address{}, err
	}

	if err := cipher.VerifySignature(pk, sig, hash); err != nil {
		return cipher.Address{}, err
	}

	return cipher.AddressFromPubKey(pk), nil
}

// RequestHash is the hash a caller signs: SHA256 of method, path, nonce and body,
// the first three each followed by a newline
func RequestHash(method, path string, nonce uint64, body []byte) cipher.SHA256 {
	var b bytes.Buffer
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatUint(nonce, 10))
	b.WriteByte('\n')
	b.Write(body)
	return cipher.SumSHA256(b.Bytes())
}

// SignRequest signs r with sk and sets the authentication headers on it.
// body must be the request body.
func SignRequest(r *http.Request, pk cipher.PubKey, sk cipher.SecKey, nonce uint64, body []byte) {
	sig := cipher.SignHash(RequestHash(r.Method, r.URL.Path, nonce, body), sk)
	r.Header.Set(PubKeyHeader, pk.Hex())
	r.Header.Set(SigHeader, sig.Hex())
	r.Header.Set(NonceHeader, strconv.FormatUint(nonce, 10))
}

func callerFromContext(ctx context.Context) cipher.Address {
	caller, _ := ctx.Value(callerKey{}).(cipher.Address)
	return caller
}

func errorResponse(ctx context.Context, w http.ResponseWriter, code int, err error) {
	log := logger.FromContext(ctx)
	log.WithField("status", code).WithError(err).Info("Returning error response")
	httputil.ErrMsgResponse(w, code, err.Error())
}

func validMethod(ctx context.Context, w http.ResponseWriter, r *http.Request, allowed []string) bool {
	for _, m := range allowed {
		if r.Method == m {
			return true
		}
	}

	w.Header().Set("Allow", allowed[0])
	errorResponse(ctx, w, http.StatusMethodNotAllowed, errors.New("Invalid request method"))
	return false
}
