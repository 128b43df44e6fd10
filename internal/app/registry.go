package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Lobby/internal/app/admission"
	"github.com/dkeye/Lobby/internal/app/handoff"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/rs/zerolog/log"
)

// Client is a communication client the registry can tear down.
type Client interface {
	admission.CommunicationClient
	Close() error
}

type ClientFactory func(id domain.ClientID) Client

// Session is one browser's admission controller together with the client it
// drives and the feed its views are published to.
type Session struct {
	ID         domain.ClientID
	Controller *admission.Controller
	Client     Client
	Feed       *Feed

	seen atomic.Int64
}

func (s *Session) touch(now time.Time) { s.seen.Store(now.UnixNano()) }

// LastSeen is when the client last asked the registry for this session.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.seen.Load()) }

type RegistryConfig struct {
	Credentials admission.Credentials
	Signer      admission.TokenSigner
	NewClient   ClientFactory
	Handoff     handoff.Store
	// IdleTTL reclaims sessions nobody has asked for or watched in that long.
	// Zero keeps sessions until Remove or CloseAll.
	IdleTTL time.Duration
}

const minSweepInterval = time.Second

type Registry struct {
	ctx context.Context
	cfg RegistryConfig
	now func() time.Time

	mu       sync.RWMutex
	sessions map[domain.ClientID]*Session
}

// NewRegistry binds every controller it creates to ctx. With an IdleTTL it
// also sweeps idle sessions until ctx is done.
func NewRegistry(ctx context.Context, cfg RegistryConfig) *Registry {
	if cfg.Handoff == nil {
		cfg.Handoff = handoff.NewMemStore()
	}
	r := &Registry{
		ctx:      ctx,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[domain.ClientID]*Session),
	}
	if cfg.IdleTTL > 0 {
		go r.reapIdle()
	}
	return r
}

func (r *Registry) Handoff() handoff.Store { return r.cfg.Handoff }

func (r *Registry) Get(id domain.ClientID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// GetOrCreate returns the client's session, starting a fresh controller and
// communication client when there is none. A load error is returned with the
// session; its status stream still reports what went wrong.
func (r *Registry) GetOrCreate(id domain.ClientID) (*Session, error) {
	if s, ok := r.Get(id); ok {
		return s, nil
	}

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.touch(r.now())
		r.mu.Unlock()
		return s, nil
	}
	feed := NewFeed()
	client := r.cfg.NewClient(id)
	s := &Session{
		ID:     id,
		Client: client,
		Feed:   feed,
		Controller: admission.New(admission.Options{
			ClientID:    id,
			Credentials: r.cfg.Credentials,
			Client:      client,
			Navigator:   feed,
			Signer:      r.cfg.Signer,
			Listener:    feed.PublishView,
		}),
	}
	s.touch(r.now())
	r.sessions[id] = s
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("client", string(id)).Msg("created new session")
	if err := s.Controller.Start(r.ctx); err != nil {
		return s, err
	}
	return s, nil
}

// Remove tears the client's session down and forgets its handoff. The next
// GetOrCreate starts from a fresh state.
func (r *Registry) Remove(ctx context.Context, id domain.ClientID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	var errs []error
	if ok {
		errs = append(errs, r.teardown(s))
	}
	errs = append(errs, r.cfg.Handoff.Delete(ctx, id))
	log.Info().Str("module", "app.registry").Str("client", string(id)).Bool("had_session", ok).Msg("removed session")
	return errors.Join(errs...)
}

func (r *Registry) teardown(s *Session) error {
	s.Controller.Close()
	s.Feed.Close()
	return s.Client.Close()
}

func (r *Registry) reapIdle() {
	every := r.cfg.IdleTTL / 2
	if every < minSweepInterval {
		every = minSweepInterval
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			r.sweep(r.now())
		}
	}
}

// sweep tears down sessions without watchers that were last seen before
// now minus IdleTTL. Handoffs are left to their own TTL.
func (r *Registry) sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.Feed.Watchers() == 0 && s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		if err := r.teardown(s); err != nil {
			log.Error().Err(err).Str("module", "app.registry").Str("client", string(s.ID)).Msg("teardown idle")
		}
	}
	if len(idle) > 0 {
		log.Info().Str("module", "app.registry").Int("reclaimed", len(idle)).Msg("swept idle sessions")
	}
	return len(idle)
}

// CloseAll tears down every session. Handoffs are kept.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[domain.ClientID]*Session)
	r.mu.Unlock()

	for id, s := range sessions {
		if err := r.teardown(s); err != nil {
			log.Error().Err(err).Str("module", "app.registry").Str("client", string(id)).Msg("teardown")
		}
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(sessions)).Msg("closed all sessions")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
