package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/boltdb/bolt"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/cipher"
	"gopkg.in/urfave/cli.v1"

	"github.com/kittycash/kittymarket/src/api"
	"github.com/kittycash/kittymarket/src/config"
	"github.com/kittycash/kittymarket/src/events"
	"github.com/kittycash/kittymarket/src/events/redisfeed"
	"github.com/kittycash/kittymarket/src/funds"
	"github.com/kittycash/kittymarket/src/ledger"
	"github.com/kittycash/kittymarket/src/market"
	"github.com/kittycash/kittymarket/src/receiver"
	"github.com/kittycash/kittymarket/src/registry"
	"github.com/kittycash/kittymarket/src/util/logger"
)

const (
	fConfig = "config"
	fAppDir = "app-dir"
)

// Flag appends a short alias to a flag name
func Flag(flag string, short ...string) string {
	if len(short) == 0 {
		return flag
	}
	return flag + ", " + short[0]
}

var app = cli.NewApp()

func init() {
	app.Name = "kittymarket"
	app.Usage = "kitty registry, marketplace and breeding service"
	// without a command, the service is run
	app.Flags = runFlags()
	app.Action = runAction
	app.Commands = cli.Commands{
		runCommand(),
		keygenCommand(),
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  Flag(fConfig, "c"),
			Usage: "config file name, without extension it is looked up as .toml",
			Value: "config",
		},
		cli.StringFlag{
			Name:  Flag(fAppDir, "d"),
			Usage: "directory searched for the config file",
			Value: defaultAppDir(),
		},
	}
}

func runAction(c *cli.Context) error {
	return run(c.String(fConfig), c.String(fAppDir))
}

func runCommand() cli.Command {
	return cli.Command{
		Name:   "run",
		Usage:  "serve the registry and market over HTTP",
		Flags:  runFlags(),
		Action: runAction,
	}
}

func keygenCommand() cli.Command {
	return cli.Command{
		Name:  "keygen",
		Usage: "generate a key pair for signing requests or for use as a service address",
		Action: func(c *cli.Context) error {
			pk, sk := cipher.GenerateKeyPair()
			fmt.Printf("pubkey:  %s\n", pk.Hex())
			fmt.Printf("seckey:  %s\n", sk.Hex())
			fmt.Printf("address: %s\n", cipher.AddressFromPubKey(pk).String())
			return nil
		},
	}
}

func defaultAppDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".kittymarket")
}

func run(configName, appDir string) error {
	cfg, err := config.Load(configName, appDir)
	if err != nil {
		return fmt.Errorf("load config failed: %v", err)
	}

	rootLog, err := logger.NewLogger(cfg.LogFilename, cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger failed: %v", err)
	}
	log := rootLog.WithField("prefix", "kittymarket")

	log.WithField("config", cfg.Redacted()).Info("Loaded kittymarket config")

	db, err := bolt.Open(cfg.DBFilename, 0700, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		log.WithError(err).Error("Open db failed")
		return err
	}
	defer func() {
		log.Info("Closing db")
		if err := db.Close(); err != nil {
			log.WithError(err).Error("Close db failed")
		}
	}()

	metrics := api.NewMetrics()

	feed := events.NewFeed(rootLog)
	feed.AddSink(metrics)

	if cfg.Redis.Enabled {
		pub, err := redisfeed.New(rootLog, redisfeed.Config{
			Address:  cfg.Redis.Address,
			Database: cfg.Redis.Database,
			Password: cfg.Redis.Password,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			log.WithError(err).Error("redisfeed.New failed")
			return err
		}
		defer closeRedis(log, pub)
		feed.AddSink(pub)
	}

	ldb, err := ledger.New(rootLog, db, feed)
	if err != nil {
		log.WithError(err).Error("ledger.New failed")
		return err
	}

	contracts := receiver.NewDirectory(rootLog)
	// the market receives no kitties, but it is an account without a key
	contracts.Register(cfg.MarketAddress(), nil)

	store, err := funds.NewStore(rootLog, ldb, cfg.MinterAddress())
	if err != nil {
		log.WithError(err).Error("funds.NewStore failed")
		return err
	}

	reg, err := registry.New(rootLog, ldb, contracts, registry.Config{
		Name:       cfg.Registry.Name,
		Symbol:     cfg.Registry.Symbol,
		Address:    cfg.RegistryAddress(),
		Minter:     cfg.MinterAddress(),
		Gen0Limit:  cfg.Registry.Gen0Limit,
		Generation: cfg.GenerationPolicy(),
	})
	if err != nil {
		log.WithError(err).Error("registry.New failed")
		return err
	}

	mkt, err := market.New(rootLog, ldb, reg, store, cfg.MarketAddress())
	if err != nil {
		log.WithError(err).Error("market.New failed")
		return err
	}

	nonces, err := api.NewNonceStore(rootLog, ldb)
	if err != nil {
		log.WithError(err).Error("api.NewNonceStore failed")
		return err
	}

	srv := api.New(rootLog, cfg, reg, mkt, store, nonces, metrics)

	errC := make(chan error, 1)
	go func() {
		errC <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.WithField("signal", sig).Info("Got signal, shutting down")
		srv.Shutdown()
		return nil
	case err := <-errC:
		if err != nil {
			log.WithError(err).Error("API failed")
		}
		srv.Shutdown()
		return err
	}
}

func closeRedis(log logrus.FieldLogger, pub *redisfeed.Publisher) {
	log.Info("Closing redis publisher")
	if err := pub.Close(); err != nil {
		log.WithError(err).Error("Close redis publisher failed")
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
