// Package admission gates the way from the login form into a session: it
// validates the form, derives the credential, hands the session to the
// communication client and mirrors the client's status into view state.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/token"
	"github.com/rs/zerolog/log"
)

// RouteSession is where a successful join navigates to.
const RouteSession = "/chat"

var (
	ErrNoCredential = errors.New("no credential derived")
	ErrHandoff      = errors.New("session handoff failed")
	ErrStarted      = errors.New("controller already started")
)

// CommunicationClient is the real-time client the controller drives. Status
// values on a subscription arrive in emission order; the returned func
// releases the subscription and is safe to call more than once.
type CommunicationClient interface {
	Load(ctx context.Context) error
	Subscribe() (<-chan domain.ConnectionStatus, func())
	SetSessionParameters(ctx context.Context, p domain.SessionParams) error
}

// Navigator receives navigation requests. Navigate must not block.
type Navigator interface {
	Navigate(route string)
}

type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// TokenSigner is satisfied by token.Signer.
type TokenSigner interface {
	Sign(key, appID, userName string, expiresInSeconds int64) (string, error)
}

// Listener is called with the view after every state change, in order. It
// runs under the controller lock and must not call back into the controller.
type Listener func(ViewModel)

type Credentials struct {
	DeveloperKey     string
	ApplicationID    string
	ExpiresInSeconds int64
}

type Options struct {
	ClientID    domain.ClientID
	Credentials Credentials
	Client      CommunicationClient
	Navigator   Navigator
	Signer      TokenSigner
	Listener    Listener
}

type JoinResult struct {
	Params domain.SessionParams
	Route  string
}

type Controller struct {
	opts Options

	mu    sync.Mutex
	state State

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	unsub     func()
}

func New(opts Options) *Controller {
	if opts.Signer == nil {
		opts.Signer = token.Signer{}
	}
	if opts.Navigator == nil {
		opts.Navigator = NavigatorFunc(func(string) {})
	}
	return &Controller{
		opts:  opts,
		state: InitialState(),
		done:  make(chan struct{}),
	}
}

// Start subscribes to the client's status stream, triggers the client load and
// begins reducing statuses on a single goroutine. Close releases all of it.
func (c *Controller) Start(ctx context.Context) error {
	err := ErrStarted
	c.startOnce.Do(func() {
		err = nil
		ch, unsub := c.opts.Client.Subscribe()
		loopCtx, cancel := context.WithCancel(ctx)

		c.mu.Lock()
		c.started = true
		c.cancel = cancel
		c.unsub = unsub
		c.mu.Unlock()

		go c.run(loopCtx, ch)

		if lerr := c.opts.Client.Load(ctx); lerr != nil {
			log.Error().Err(lerr).Str("module", "admission").Str("client", string(c.opts.ClientID)).Msg("client load")
			err = fmt.Errorf("load communication client: %w", lerr)
		}
	})
	return err
}

func (c *Controller) run(ctx context.Context, ch <-chan domain.ConnectionStatus) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				log.Info().Str("module", "admission").Str("client", string(c.opts.ClientID)).Msg("status stream closed")
				return
			}
			c.OnStatus(st)
		}
	}
}

// Close stops the status loop and releases the subscription. It is idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		started, cancel, unsub := c.started, c.cancel, c.unsub
		c.mu.Unlock()
		if !started {
			return
		}
		defer unsub()
		cancel()
		<-c.done
		log.Debug().Str("module", "admission").Str("client", string(c.opts.ClientID)).Msg("controller closed")
	})
}

// OnStatus reduces a single status into the controller state.
func (c *Controller) OnStatus(st domain.ConnectionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Info().
		Str("module", "admission").
		Str("client", string(c.opts.ClientID)).
		Str("status", string(st.Kind)).
		Str("description", st.Description).
		Msg("connection status")
	c.setLocked(Reduce(c.state, st))
}

func (c *Controller) setLocked(s State) {
	c.state = s
	if c.opts.Listener != nil {
		c.opts.Listener(s.View())
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) View() ViewModel { return c.State().View() }

// Validate runs form validation against the controller state.
func (c *Controller) Validate(in domain.LoginInput) (domain.LoginInput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, out, err := Validate(c.state, in)
	c.setLocked(s)
	return out, err
}

// JoinMeeting validates the form, signs a credential for the user, hands the
// session to the client and then navigates to the session view. Any error
// means no navigation happened.
func (c *Controller) JoinMeeting(ctx context.Context, in domain.LoginInput) (JoinResult, error) {
	logger := log.With().Str("module", "admission").Str("client", string(c.opts.ClientID)).Logger()

	in, err := c.Validate(in)
	if err != nil {
		logger.Debug().Err(err).Msg("join rejected")
		return JoinResult{}, err
	}

	cr := c.opts.Credentials
	in.Token, err = c.opts.Signer.Sign(cr.DeveloperKey, cr.ApplicationID, in.UserName, cr.ExpiresInSeconds)
	if err != nil {
		logger.Error().Err(err).Msg("sign token")
		c.fail("Unable to create a session credential")
		return JoinResult{}, err
	}
	if in.Token == "" {
		logger.Error().Msg("signer returned an empty token")
		c.fail("Unable to create a session credential")
		return JoinResult{}, ErrNoCredential
	}
	logger.Debug().Int("token_len", len(in.Token)).Msg("token derived")

	params := domain.SessionParams{
		UserName:    in.UserName,
		MeetingRoom: in.MeetingRoom,
		HostName:    in.HostName,
		Token:       in.Token,
	}
	if err := c.opts.Client.SetSessionParameters(ctx, params); err != nil {
		logger.Error().Err(err).Msg("set session parameters")
		c.fail("Unable to start the session, please retry")
		return JoinResult{}, errors.Join(ErrHandoff, err)
	}

	c.opts.Navigator.Navigate(RouteSession)
	logger.Info().Str("user", in.UserName).Str("room", in.MeetingRoom).Str("host", in.HostName).Msg("session handed off")
	return JoinResult{Params: params, Route: RouteSession}, nil
}

func (c *Controller) fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.ErrorOccurred = true
	s.Message = msg
	c.setLocked(s)
}
