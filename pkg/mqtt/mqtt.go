package mqtt

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// subscriptionFailure is the SUBACK return code signalling a refused subscription.
const subscriptionFailure = 0x80

// MQTTClient defines the subset of the paho client the transport drives.
type MQTTClient interface {
	Connect() pahomqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Transport is the contract the session layer programs against: connect, subscribe,
// publish, and a single stream of tagged notifications.
type Transport interface {
	Events() <-chan Event
	Connect() error
	Reconnect() error
	Subscribe(topic string, qos byte) uint32
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Outstanding() int
	Disconnect()
}

// MqttService adapts a paho client to the Transport contract.
type MqttService struct {
	cfg    ConnectionConfig
	client MQTTClient
	logger zerolog.Logger

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once

	sessionID atomic.Value
	subSeq    atomic.Uint32
	pubSeq    atomic.Uint64

	// reconnectAttempts counts automatic reconnect attempts since the last loss.
	reconnectAttempts atomic.Int32

	dialMu      sync.Mutex
	lastDialErr error

	// outstanding holds publishes handed to paho that are not yet acknowledged.
	outstanding cmap.ConcurrentMap[string, time.Time]
}

// NewMqttService creates the paho client for cfg. The client is not connected yet.
func NewMqttService(cfg ConnectionConfig, password PasswordProvider, eventBuffer int, logger zerolog.Logger) (*MqttService, error) {
	tlsConfig, err := newTLSConfig(cfg.CACertificate, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportFatal, err)
	}

	s := newMqttService(cfg, eventBuffer, logger)

	opts := buildClientOptions(cfg, tlsConfig, password, logger)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)
	opts.SetReconnectingHandler(s.onReconnecting)
	opts.SetCustomOpenConnectionFn(s.openConnection)

	s.client = pahomqtt.NewClient(opts)
	return s, nil
}

// NewMqttServiceWithClient creates a transport around an existing client (for testing).
// Connection handlers must be driven by the caller.
func NewMqttServiceWithClient(cfg ConnectionConfig, client MQTTClient, eventBuffer int, logger zerolog.Logger) *MqttService {
	s := newMqttService(cfg, eventBuffer, logger)
	s.client = client
	return s
}

func newMqttService(cfg ConnectionConfig, eventBuffer int, logger zerolog.Logger) *MqttService {
	s := &MqttService{
		cfg:         cfg,
		logger:      logger,
		events:      make(chan Event, eventBuffer),
		closed:      make(chan struct{}),
		outstanding: cmap.New[time.Time](),
	}
	s.sessionID.Store("")
	return s
}

// Events returns the notification stream. It is never closed.
func (s *MqttService) Events() <-chan Event {
	return s.events
}

// Connect starts an asynchronous connection attempt. The outcome arrives as
// EventConnected or EventConnectFailed; only an unusable transport fails synchronously.
func (s *MqttService) Connect() error {
	select {
	case <-s.closed:
		return fmt.Errorf("%w: transport is closed", ErrTransportFatal)
	default:
	}
	if s.client == nil {
		return fmt.Errorf("%w: client not initialized", ErrTransportFatal)
	}

	sessionID := uuid.New().String()
	s.sessionID.Store(sessionID)
	s.logger.Info().Str("broker", s.cfg.Broker).Str("session_id", sessionID).Msg("Connecting to broker")

	token := s.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.emit(Event{Type: EventConnectFailed, SessionID: sessionID, Err: err})
		}
	}()

	return nil
}

// Reconnect drops the current session, if any, and connects again with the same options.
func (s *MqttService) Reconnect() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(uint(disconnectQuiesce / time.Millisecond))
	}
	return s.Connect()
}

// Subscribe issues an asynchronous subscription and returns its local id.
// The outcome arrives as EventSubscribeResult.
func (s *MqttService) Subscribe(topic string, qos byte) uint32 {
	id := s.subSeq.Add(1)
	sessionID := s.currentSession()

	token := s.client.Subscribe(topic, qos, s.onMessage)
	go func() {
		<-token.Done()
		err := token.Error()
		if err == nil {
			if st, ok := token.(*pahomqtt.SubscribeToken); ok {
				if granted, ok := st.Result()[topic]; ok && granted == subscriptionFailure {
					err = ErrSubscribeRejected
				}
			}
		}
		s.emit(Event{
			Type:           EventSubscribeResult,
			SessionID:      sessionID,
			SubscriptionID: id,
			Topics:         []string{topic},
			Err:            err,
		})
	}()

	return id
}

// Publish hands payload to paho without waiting for delivery. While disconnected paho
// keeps the message for redelivery; once MaxBuffered messages are outstanding further
// publishes fail with ErrBufferFull instead of blocking.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if s.outstanding.Count() >= s.cfg.MaxBuffered {
		return fmt.Errorf("%w: %d messages outstanding", ErrBufferFull, s.cfg.MaxBuffered)
	}

	key := strconv.FormatUint(s.pubSeq.Add(1), 10)
	s.outstanding.Set(key, time.Now())

	token := s.client.Publish(topic, qos, retained, payload)

	// paho completes the token immediately when it refuses the message outright.
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			s.outstanding.Remove(key)
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	default:
	}

	go func() {
		<-token.Done()
		s.outstanding.Remove(key)
		var messageID uint16
		if pt, ok := token.(*pahomqtt.PublishToken); ok {
			messageID = pt.MessageID()
		}
		s.emit(Event{
			Type:      EventDeliveryComplete,
			SessionID: s.currentSession(),
			Topic:     topic,
			MessageID: messageID,
			Err:       token.Error(),
		})
	}()

	return nil
}

// Outstanding returns the number of publishes awaiting acknowledgement.
func (s *MqttService) Outstanding() int {
	return s.outstanding.Count()
}

// Disconnect gracefully disconnects the MQTT client and stops event delivery.
func (s *MqttService) Disconnect() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.client != nil {
			s.client.Disconnect(uint(disconnectQuiesce / time.Millisecond))
		}
	})
}

func (s *MqttService) onConnect(_ pahomqtt.Client) {
	s.reconnectAttempts.Store(0)
	s.takeDialErr()
	s.emit(Event{Type: EventConnected, SessionID: s.currentSession()})
}

func (s *MqttService) onConnectionLost(_ pahomqtt.Client, err error) {
	s.reconnectAttempts.Store(0)
	s.emit(Event{Type: EventConnectionLost, SessionID: s.currentSession(), Err: err})
}

// onReconnecting runs before every automatic reconnect attempt. paho reports nothing when
// an attempt fails, so each call after the first since a loss stands for the failure of
// the previous attempt.
func (s *MqttService) onReconnecting(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
	attempt := s.reconnectAttempts.Add(1)
	s.logger.Info().Str("broker", s.cfg.Broker).Int32("attempt", attempt).Msg("Transport reconnecting automatically")
	if attempt == 1 {
		return
	}

	err := fmt.Errorf("%w: attempt %d", ErrReconnectFailed, attempt-1)
	if dialErr := s.takeDialErr(); dialErr != nil {
		err = fmt.Errorf("%w: attempt %d: %w", ErrReconnectFailed, attempt-1, dialErr)
	}
	s.emit(Event{Type: EventReconnectFailed, SessionID: s.currentSession(), Err: err})
}

// openConnection dials the broker for both initial and automatic connect attempts and
// logs every handshake failure.
func (s *MqttService) openConnection(uri *url.URL, opts pahomqtt.ClientOptions) (net.Conn, error) {
	conn, err := dialBroker(uri, opts.TLSConfig, opts.ConnectTimeout)
	if err != nil {
		if isTLSError(err) {
			s.logger.Error().Err(err).Str("broker", uri.String()).Str("session_id", s.currentSession()).Msg("SSL error")
		} else {
			s.logger.Warn().Err(err).Str("broker", uri.String()).Msg("Failed to open connection to broker")
		}
	}

	s.dialMu.Lock()
	s.lastDialErr = err
	s.dialMu.Unlock()

	return conn, err
}

// takeDialErr returns and clears the error of the most recent dial.
func (s *MqttService) takeDialErr() error {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()
	err := s.lastDialErr
	s.lastDialErr = nil
	return err
}

func (s *MqttService) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.emit(Event{
		Type:      EventMessageArrived,
		SessionID: s.currentSession(),
		Topic:     msg.Topic(),
		Payload:   msg.Payload(),
		MessageID: msg.MessageID(),
	})
}

// emit blocks paho's goroutine until the event is consumed or the transport is closed.
func (s *MqttService) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *MqttService) currentSession() string {
	id, _ := s.sessionID.Load().(string)
	return id
}
