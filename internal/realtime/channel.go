package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/trackline/internal/eventbus"
	"github.com/kazz187/trackline/pkg/cerr"
	"github.com/kazz187/trackline/pkg/panicerr"
)

const (
	DefaultReconnectDelay = 3 * time.Second

	probeMessage = "ping"
	probeReply   = "pong"
)

// Conn is one live push connection.
type Conn interface {
	Send(msg string) error
	Receive() (string, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type Option func(*Channel)

// WithReconnectDelay sets the fixed wait between a severed connection and the
// next dial.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.delay = d
		}
	}
}

func WithEventBuffer(n int) Option {
	return func(c *Channel) {
		c.events = make(chan Event, n)
	}
}

// Channel keeps at most one push connection open and reconnects after a fixed
// delay for as long as its context lives. Events are delivered in transport
// order on Events, which is closed when the loop ends.
type Channel struct {
	dialer Dialer
	delay  time.Duration
	events chan Event
	state  *eventbus.Value[State]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func New(dialer Dialer, opts ...Option) *Channel {
	c := &Channel{
		dialer: dialer,
		delay:  DefaultReconnectDelay,
		events: make(chan Event, 16),
		state:  eventbus.NewValue(StateDisconnected),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Events() <-chan Event {
	return c.events
}

func (c *Channel) State() State {
	return c.state.Get()
}

func (c *Channel) SubscribeState(bufSize int) (string, <-chan State) {
	return c.state.Subscribe(bufSize)
}

func (c *Channel) UnsubscribeState(id string) {
	c.state.Unsubscribe(id)
}

// Start runs the loop in the background until ctx ends or Close is called.
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	c.wg.Go(func() {
		c.Run(ctx)
	})
}

// Close stops the loop, closes any live connection and waits until no timer or
// dial is left behind.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Run is the connect/receive/reconnect loop. It must be called at most once.
func (c *Channel) Run(ctx context.Context) {
	defer close(c.events)
	defer c.state.Set(StateDisconnected)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if !c.emit(ctx, EventConnecting{Attempt: attempt}) {
			return
		}
		opened, err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if opened {
			attempt = 0
		}
		var ev EventDisconnected
		if err != nil {
			ev.Err = cerr.NewError(cerr.ChannelError, "push connection lost", err)
			slog.WarnContext(ctx, "push connection lost",
				"component", "realtime", "error", err, "retry_in", c.delay.String())
		}
		if !c.emit(ctx, ev) {
			return
		}
		if !ShouldReconnect(c.state.Get(), ev) || !c.sleep(ctx) {
			return
		}
	}
}

// connect dials and reads until the connection fails. The connection is
// always closed before connect returns.
func (c *Channel) connect(ctx context.Context) (opened bool, err error) {
	err = panicerr.SafeContext(func(ctx context.Context) error {
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		var closeOnce sync.Once
		closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
		defer closeConn()
		stop := context.AfterFunc(ctx, closeConn)
		defer stop()

		opened = true
		if !c.emit(ctx, EventConnected{}) {
			return nil
		}
		if err := conn.Send(probeMessage); err != nil {
			return fmt.Errorf("send probe: %w", err)
		}
		for {
			msg, err := conn.Receive()
			if err != nil {
				return err
			}
			if msg == probeReply {
				continue
			}
			env, err := Decode(msg)
			if err != nil {
				slog.WarnContext(ctx, "dropped malformed push message",
					"component", "realtime", "error", err, "size", len(msg))
				continue
			}
			if !c.emit(ctx, EventMessage{Envelope: env}) {
				return nil
			}
		}
	})(ctx)
	return opened, err
}

// emit advances the state and delivers ev. It reports false once ctx is done.
func (c *Channel) emit(ctx context.Context, ev Event) bool {
	c.state.Update(func(s State) State { return Next(s, ev) })
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Channel) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var errNoType = errors.New("envelope has no type")

// Decode parses a push frame.
func Decode(msg string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(msg), &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, errNoType
	}
	return env, nil
}
