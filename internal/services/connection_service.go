package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/ak-mqtt/internal/constants"
	"github.com/benmeehan/ak-mqtt/internal/metrics"
	"github.com/benmeehan/ak-mqtt/internal/models"
	"github.com/benmeehan/ak-mqtt/internal/utils"
	"github.com/benmeehan/ak-mqtt/pkg/mqtt"
)

// ConnectionService owns the broker session. A single coordination goroutine consumes
// transport events and is the only writer of the connection state and the retry counter.
type ConnectionService struct {
	Transport     mqtt.Transport
	Tokens        *TokenSource
	Backoff       utils.Backoff
	Subscriptions *SubscriptionService
	Downlinks     *DownlinkService
	Pool          *utils.WorkerPool
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger

	// MaxRetries is the number of consecutive connection failures tolerated.
	MaxRetries int
	// RenewalMargin is how long before expiry the token is replaced.
	RenewalMargin time.Duration
	// CycleTimeout bounds the wait for outstanding uplinks before a renewed token forces a reconnect.
	CycleTimeout time.Duration

	now func() time.Time

	state   atomic.Int32
	retries int

	retryTimer *time.Timer
	renewTimer *time.Timer
	cycleTimer *time.Timer

	// cyclePending is set while a renewed token waits for the uplink queue to drain.
	cyclePending bool
	cycleErrs    chan error

	connected     chan struct{}
	connectedOnce sync.Once
	done          chan struct{}
	err           error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnectionService initializes a ConnectionService in the Disconnected state.
func NewConnectionService(transport mqtt.Transport, tokens *TokenSource, backoff utils.Backoff,
	subscriptions *SubscriptionService, downlinks *DownlinkService, pool *utils.WorkerPool,
	m *metrics.Metrics, logger zerolog.Logger) *ConnectionService {

	return &ConnectionService{
		Transport:     transport,
		Tokens:        tokens,
		Backoff:       backoff,
		Subscriptions: subscriptions,
		Downlinks:     downlinks,
		Pool:          pool,
		Metrics:       m,
		Logger:        logger,
		MaxRetries:    constants.MaxConnectRetries,
		RenewalMargin: constants.TokenRenewalMargin,
		CycleTimeout:  constants.SessionCycleTimeout,
		now:           time.Now,
		cycleErrs:     make(chan error, 1),
		connected:     make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start issues the first connection attempt and launches the coordination loop.
func (c *ConnectionService) Start() error {
	if c.ctx != nil {
		c.Logger.Warn().Msg("ConnectionService is already running")
		return fmt.Errorf("connection service: %w", ErrAlreadyRunning)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(c.ctx)
	}()

	c.Logger.Info().Msg("ConnectionService started successfully")
	return nil
}

// Stop ends the coordination loop, closes the session and drains pending downlink handlers.
func (c *ConnectionService) Stop() error {
	if c.ctx == nil {
		c.Logger.Warn().Msg("ConnectionService is not running")
		return fmt.Errorf("connection service: %w", ErrNotRunning)
	}

	c.cancel()
	c.wg.Wait()
	c.Transport.Disconnect()
	c.Pool.Shutdown()

	c.ctx = nil
	c.cancel = nil

	c.Logger.Info().Msg("ConnectionService stopped successfully")
	return nil
}

// State returns the current connection state. Safe for concurrent use.
func (c *ConnectionService) State() models.ConnectionState {
	return models.ConnectionState(c.state.Load())
}

// Done is closed when the coordination loop has exited.
func (c *ConnectionService) Done() <-chan struct{} {
	return c.done
}

// Err returns the fatal error that ended the loop, or nil while it runs or after a clean stop.
func (c *ConnectionService) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// WaitConnected blocks until the first session is established, the loop ends, or ctx is done.
func (c *ConnectionService) WaitConnected(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return fmt.Errorf("connection service: %w", ErrNotRunning)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitReady makes the registry hold later services until the first session is up.
func (c *ConnectionService) WaitReady(ctx context.Context) error {
	return c.WaitConnected(ctx)
}

func (c *ConnectionService) run(ctx context.Context) {
	defer close(c.done)
	defer func() {
		stopTimer(c.retryTimer)
		stopTimer(c.renewTimer)
		stopTimer(c.cycleTimer)
	}()

	c.scheduleRenewal()
	c.connect()

	for c.State() != models.StateFailed {
		select {
		case <-ctx.Done():
			c.Logger.Info().Str("state", c.State().String()).Msg("Connection loop stopped")
			return
		case ev := <-c.Transport.Events():
			c.handleEvent(ev)
		case <-timerC(c.retryTimer):
			c.retryTimer = nil
			c.connect()
		case <-timerC(c.renewTimer):
			c.renewTimer = nil
			c.renewToken()
		case <-timerC(c.cycleTimer):
			c.cycleTimer = nil
			c.Logger.Warn().Int("outstanding", c.Transport.Outstanding()).Msg("Uplinks still unacknowledged, reconnecting with renewed token anyway")
			c.cycleSession()
		case err := <-c.cycleErrs:
			if err != nil {
				c.fail(fmt.Errorf("reconnect with renewed token: %w", err))
			}
		}
	}
}

func (c *ConnectionService) handleEvent(ev mqtt.Event) {
	switch ev.Type {
	case mqtt.EventConnected:
		c.onConnected(ev)
	case mqtt.EventConnectFailed:
		c.onConnectFailed(ev)
	case mqtt.EventConnectionLost:
		c.onConnectionLost(ev)
	case mqtt.EventReconnectFailed:
		c.onReconnectFailed(ev)
	case mqtt.EventSubscribeResult:
		c.Subscriptions.OnSubscribeResult(ev)
	case mqtt.EventMessageArrived:
		c.dispatchDownlink(ev)
	case mqtt.EventDeliveryComplete:
		c.onDeliveryComplete(ev)
	default:
		c.Logger.Warn().Int("type", int(ev.Type)).Msg("Ignoring unknown transport event")
	}
}

func (c *ConnectionService) connect() {
	c.Metrics.IncConnectAttempts()
	if c.State() == models.StateDisconnected {
		c.setState(models.StateConnecting, "connect", nil, "")
	}

	if err := c.Transport.Connect(); err != nil {
		c.fail(fmt.Errorf("connect: %w", err))
	}
}

func (c *ConnectionService) onConnected(ev mqtt.Event) {
	if c.State() == models.StateConnected {
		c.Logger.Debug().Str("session_id", ev.SessionID).Msg("Already connected, keeping current subscription")
		return
	}

	stopTimer(c.retryTimer)
	c.retryTimer = nil
	c.retries = 0

	c.setState(models.StateConnected, ev.Type.String(), nil, ev.SessionID)
	c.Subscriptions.Subscribe()
	c.connectedOnce.Do(func() { close(c.connected) })
}

// recordFailure counts a failed attempt against the retry ceiling. It reports whether
// the loop should keep trying.
func (c *ConnectionService) recordFailure(ev mqtt.Event) bool {
	c.Metrics.IncConnectFailures()

	if c.State() == models.StateConnected {
		c.Logger.Warn().Err(ev.Err).Str("session_id", ev.SessionID).Msg("Ignoring connect failure for a superseded attempt")
		return false
	}

	c.retries++
	if c.retries > c.MaxRetries {
		c.fail(fmt.Errorf("%w: %d consecutive failures: %w", ErrRetriesExhausted, c.retries, ev.Err))
		return false
	}

	c.setState(models.StateReconnecting, ev.Type.String(), ev.Err, ev.SessionID)
	return true
}

func (c *ConnectionService) onConnectFailed(ev mqtt.Event) {
	if !c.recordFailure(ev) {
		return
	}

	delay := c.Backoff.Next(c.retries)
	c.Logger.Warn().
		Err(ev.Err).
		Int("retry", c.retries).
		Int("max_retries", c.MaxRetries).
		Dur("delay", delay).
		Msg("Connection failed, retrying")

	stopTimer(c.retryTimer)
	c.retryTimer = time.NewTimer(delay)
}

// onReconnectFailed counts a failed automatic reconnect. paho schedules the next attempt itself.
func (c *ConnectionService) onReconnectFailed(ev mqtt.Event) {
	if !c.recordFailure(ev) {
		return
	}
	c.Logger.Warn().
		Err(ev.Err).
		Int("retry", c.retries).
		Int("max_retries", c.MaxRetries).
		Msg("Automatic reconnect failed")
}

func (c *ConnectionService) onConnectionLost(ev mqtt.Event) {
	c.Metrics.IncConnectionsLost()
	c.clearPendingCycle()
	c.setState(models.StateReconnecting, ev.Type.String(), ev.Err, ev.SessionID)
	c.Logger.Warn().Err(ev.Err).Msg("Connection lost, transport is reconnecting")
}

func (c *ConnectionService) dispatchDownlink(ev mqtt.Event) {
	topic, payload := ev.Topic, ev.Payload
	err := c.Pool.Submit("downlink", func() {
		c.Downlinks.OnMessage(topic, payload)
	})
	if err != nil {
		c.Logger.Warn().Err(err).Str("topic", topic).Msg("Dropping downlink message")
	}
}

func (c *ConnectionService) onDeliveryComplete(ev mqtt.Event) {
	outstanding := c.Transport.Outstanding()
	c.Metrics.SetOutstanding(outstanding)

	if ev.Err != nil {
		c.Logger.Warn().Err(ev.Err).Str("topic", ev.Topic).Uint16("message_id", ev.MessageID).Msg("Uplink delivery failed")
	} else {
		c.Logger.Debug().Str("topic", ev.Topic).Uint16("message_id", ev.MessageID).Msg("Uplink delivered")
	}

	if c.cyclePending && outstanding == 0 && c.State() == models.StateConnected {
		c.cycleSession()
	}
}

// scheduleRenewal arms the renewal timer for the current token.
func (c *ConnectionService) scheduleRenewal() {
	token := c.Tokens.Current()
	if token == nil {
		return
	}

	now := c.now()
	renewAt := token.ExpiresAt.Add(-c.RenewalMargin)
	var delay time.Duration
	if !token.ExpiresWithin(now, c.RenewalMargin) {
		delay = renewAt.Sub(now)
	}

	stopTimer(c.renewTimer)
	c.renewTimer = time.NewTimer(delay)
	c.Logger.Debug().Time("renew_at", renewAt).Msg("Scheduled token renewal")
}

// renewToken replaces the token and, when a session is up, reconnects so the broker sees it.
// The session is only dropped once in-flight uplinks are acknowledged, because a clean
// session discards them on disconnect.
func (c *ConnectionService) renewToken() {
	if _, err := c.Tokens.Renew(); err != nil {
		delay := c.Backoff.Next(1)
		c.Logger.Error().Err(err).Dur("delay", delay).Msg("Token renewal failed, retrying")
		c.renewTimer = time.NewTimer(delay)
		return
	}
	c.scheduleRenewal()

	// Any attempt in flight picks the new token up through the password provider.
	if c.State() != models.StateConnected || c.cyclePending {
		return
	}

	if outstanding := c.Transport.Outstanding(); outstanding > 0 {
		c.cyclePending = true
		stopTimer(c.cycleTimer)
		c.cycleTimer = time.NewTimer(c.CycleTimeout)
		c.Logger.Info().Int("outstanding", outstanding).Msg("Waiting for uplinks to be acknowledged before reconnecting")
		return
	}
	c.cycleSession()
}

// cycleSession reconnects with the current token. Reconnect runs off the loop so
// transport callbacks blocked on the event channel keep draining while paho disconnects.
func (c *ConnectionService) cycleSession() {
	c.clearPendingCycle()
	c.setState(models.StateReconnecting, "token_renewed", nil, "")

	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.Transport.Reconnect()
		select {
		case c.cycleErrs <- err:
		case <-ctx.Done():
		}
	}()
}

func (c *ConnectionService) clearPendingCycle() {
	c.cyclePending = false
	stopTimer(c.cycleTimer)
	c.cycleTimer = nil
}

func (c *ConnectionService) fail(err error) {
	c.err = err
	c.setState(models.StateFailed, "fatal", err, "")
}

func (c *ConnectionService) setState(next models.ConnectionState, event string, cause error, sessionID string) {
	prev := models.ConnectionState(c.state.Swap(int32(next)))
	c.Metrics.SetConnectionState(next)

	entry := c.Logger.Info()
	if next == models.StateFailed {
		entry = c.Logger.Error()
	}
	if cause != nil {
		entry = entry.Err(cause)
	}
	if sessionID != "" {
		entry = entry.Str("session_id", sessionID)
	}
	entry.
		Str("from", prev.String()).
		Str("to", next.String()).
		Str("event", event).
		Msg("Connection state changed")
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
