// Package engine ties a relay pool, the local event store and a signer
// together. Every client operation is a method of Engine; there is no
// package level state, so several engines can run in one process.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Hubmakerlabs/nostrengine/pkg/config"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore/badger"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"github.com/Hubmakerlabs/nostrengine/pkg/signer"
	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

type Option func(e *Engine)

// WithDialer replaces the websocket dialer used by pools the engine creates.
func WithDialer(d relaypool.Dialer) Option {
	return func(e *Engine) { e.dialer = d }
}

// WithStore uses s instead of opening the badger store of the configuration.
func WithStore(s eventstore.Store) Option {
	return func(e *Engine) { e.store = s }
}

type Engine struct {
	cfg    *config.Config
	dialer relaypool.Dialer

	// mx guards the fields below. Swapping the pool or the store takes it
	// exclusively.
	mx         sync.RWMutex
	pool       *relaypool.Pool
	store      eventstore.Store
	opened     badger.OpenResult
	signer     signer.Signer
	userRelays []string
}

// New opens the event store of cfg and loads the configured key. Relays are
// set up by Init.
func New(cfg *config.Config, opts ...Option) (e *Engine, err error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	e = &Engine{cfg: cfg}
	for _, o := range opts {
		o(e)
	}
	if cfg.SecKey != "" {
		var k *signer.Keys
		if k, err = signer.FromHex(cfg.SecKey); chk.E(err) {
			return nil, err
		}
		e.signer = k
	}
	if e.store == nil {
		if err = e.openStore(); err != nil {
			return nil, err
		}
	}
	return
}

// openStore must be called with mx held or before the engine is shared.
func (e *Engine) openStore() (err error) {
	var path string
	if path, err = e.cfg.StorePath(); chk.E(err) {
		return
	}
	var b *badger.Backend
	if b, e.opened, err = badger.Open(path, e.cfg.StoreCapacities...); chk.E(err) {
		return
	}
	if e.opened.Recreated {
		log.W.Ln("event store was recreated, previously stored events are gone")
	}
	e.store = b
	return
}

func (e *Engine) options() relaypool.Options {
	return relaypool.Options{
		SendTimeout:    e.cfg.SendTimeout,
		FetchTimeout:   e.cfg.FetchTimeout,
		ConnectTimeout: e.cfg.ConnectTimeout,
		SyncTimeout:    e.cfg.SyncTimeout,
		ReconnectEvery: e.cfg.ReconnectEvery,
		ReconnectBurst: e.cfg.ReconnectBurst,
	}
}

// Init builds a new pool with relays as the user relays plus the discovery
// relays of the configuration, replacing and disconnecting any previous
// pool. A nil signer keeps the current one. Malformed relay urls are skipped.
// The relays are not dialled until Connect.
func (e *Engine) Init(relays []string, s signer.Signer) (err error) {
	pool := relaypool.New(e.dialer, e.options())
	var user []string
	for _, u := range relays {
		var added bool
		if added, err = pool.AddRelay(u, relaypool.Read|relaypool.Write); err != nil {
			log.W.Ln("skipping relay:", err)
			err = nil
			continue
		}
		if added {
			user = append(user, normalize.URL(u))
		}
	}
	for _, u := range e.cfg.Discover {
		if _, err = pool.AddDiscoveryRelay(u); err != nil {
			log.W.Ln("skipping discovery relay:", err)
			err = nil
		}
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.store == nil {
		if err = e.openStore(); err != nil {
			pool.DisconnectAll()
			return
		}
	}
	if s != nil {
		e.signer = s
	}
	pool.SetSigner(e.signer)
	old := e.pool
	e.pool, e.userRelays = pool, user
	if old != nil {
		old.DisconnectAll()
	}
	log.D.F("engine initialized with %d user relays", len(user))
	return
}

// Connect dials every relay of the pool and returns how many are connected.
func (e *Engine) Connect(c context.Context) (connected int, err error) {
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	return p.ConnectAll(c)
}

// Disconnect closes every connection and live subscription but keeps the
// relays, so Connect can dial them again.
func (e *Engine) Disconnect() (err error) {
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	p.DisconnectAll()
	return
}

// Close disconnects the pool and closes the store. The engine can be set up
// again with Init.
func (e *Engine) Close() (err error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.pool != nil {
		e.pool.DisconnectAll()
		e.pool = nil
	}
	if e.store != nil {
		err = e.store.Close()
		chk.E(err)
		e.store = nil
	}
	e.userRelays = nil
	return
}

func (e *Engine) IsInitialized() bool {
	e.mx.RLock()
	defer e.mx.RUnlock()
	return e.pool != nil && e.store != nil
}

// OpenResult tells how the store was opened.
func (e *Engine) OpenResult() badger.OpenResult {
	e.mx.RLock()
	defer e.mx.RUnlock()
	return e.opened
}

func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) SetSigner(s signer.Signer) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.signer = s
	if e.pool != nil {
		e.pool.SetSigner(s)
	}
}

func (e *Engine) Signer() signer.Signer {
	e.mx.RLock()
	defer e.mx.RUnlock()
	return e.signer
}

// PublicKey is the key of the signer, or empty without one.
func (e *Engine) PublicKey() string {
	if s := e.Signer(); s != nil {
		return s.PublicKey()
	}
	return ""
}

func (e *Engine) relays() (p *relaypool.Pool, err error) {
	e.mx.RLock()
	defer e.mx.RUnlock()
	if e.pool == nil {
		return nil, fmt.Errorf("relay pool: %w", errs.NotInitialized)
	}
	return e.pool, nil
}

func (e *Engine) db() (s eventstore.Store, err error) {
	e.mx.RLock()
	defer e.mx.RUnlock()
	if e.store == nil {
		return nil, fmt.Errorf("event store: %w", errs.NotInitialized)
	}
	return e.store, nil
}

func (e *Engine) both() (p *relaypool.Pool, s eventstore.Store, err error) {
	if p, err = e.relays(); err != nil {
		return
	}
	s, err = e.db()
	return
}

func (e *Engine) sign() (s signer.Signer, err error) {
	if s = e.Signer(); s == nil {
		return nil, fmt.Errorf("signer: %w", errs.NotInitialized)
	}
	return
}
