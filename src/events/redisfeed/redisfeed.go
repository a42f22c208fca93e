// Package redisfeed publishes registry and marketplace notifications to a redis channel
package redisfeed

import (
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kittycash/kittymarket/src/events"
)

// DefaultChannel is used when Config.Channel is empty
const DefaultChannel = "kittymarket:events"

// Config configures the redis connection
type Config struct {
	Address  string
	Database int
	Password string
	Channel  string
}

// Publisher is an events.Sink that PUBLISHes each event as JSON
type Publisher struct {
	log     logrus.FieldLogger
	conn    redis.Conn
	channel string
	mux     sync.Mutex
}

// New dials redis and returns a Publisher
func New(log logrus.FieldLogger, c Config) (*Publisher, error) {
	options := []redis.DialOption{
		redis.DialDatabase(c.Database),
		redis.DialConnectTimeout(time.Second * 10),
	}
	if c.Password != "" {
		options = append(options, redis.DialPassword(c.Password))
	}

	conn, err := redis.Dial("tcp", c.Address, options...)
	if err != nil {
		return nil, errors.Wrap(err, "dial to redis server failed")
	}

	return NewWithConn(log, conn, c.Channel), nil
}

// NewWithConn returns a Publisher using an established connection
func NewWithConn(log logrus.FieldLogger, conn redis.Conn, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		log:     log.WithField("prefix", "kittymarket.redisfeed"),
		conn:    conn,
		channel: channel,
	}
}

// Publish implements events.Sink
func (p *Publisher) Publish(e events.Event) error {
	data, err := events.Encode(e)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	p.mux.Lock()
	defer p.mux.Unlock()

	n, err := redis.Int(p.conn.Do("PUBLISH", p.channel, data))
	if err != nil {
		return errors.Wrapf(err, "PUBLISH to %s failed", p.channel)
	}

	p.log.WithFields(logrus.Fields{
		"kind":        e.Kind(),
		"subscribers": n,
	}).Debug("Published event")

	return nil
}

// Close closes the redis connection
func (p *Publisher) Close() error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
