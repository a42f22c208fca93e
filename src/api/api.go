// Package api serves the kitty registry, the marketplace and funds over HTTP.
// State changing requests are signed by the caller's key.
package api

import (
	"github.com/sirupsen/logrus"

	"github.com/kittycash/kittymarket/src/config"
)

// API provides the HTTP service
type API struct {
	log      logrus.FieldLogger
	httpServ *HTTPServer
	quit     chan struct{}
	done     chan struct{}
}

// New creates an API
func New(log logrus.FieldLogger, cfg config.Config, registry Registry, market Market, funds Funds, nonces Nonces, metrics *Metrics) *API {
	return &API{
		log:      log.WithField("prefix", "kittymarket.api"),
		httpServ: NewHTTPServer(log, cfg.Web, registry, market, funds, nonces, metrics),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the API
func (s *API) Run() error {
	log := s.log
	log.Info("Starting api...")
	defer log.Info("API closed")
	defer close(s.done)

	if err := s.httpServ.Run(); err != nil {
		log.WithError(err).Error(err)
		select {
		case <-s.quit:
			return nil
		default:
			return err
		}
	}

	return nil
}

// Shutdown closes the API
func (s *API) Shutdown() {
	s.log.Info("Shutting down api service")
	defer s.log.Info("Shutdown api service")

	close(s.quit)
	s.httpServ.Shutdown()
	<-s.done
}
