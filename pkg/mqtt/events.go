package mqtt

// EventType tags a transport notification.
type EventType int

const (
	EventConnected EventType = iota + 1
	EventConnectFailed
	EventConnectionLost
	EventSubscribeResult
	EventMessageArrived
	EventDeliveryComplete
	EventReconnectFailed
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventConnectFailed:
		return "connect_failed"
	case EventConnectionLost:
		return "connection_lost"
	case EventSubscribeResult:
		return "subscribe_result"
	case EventMessageArrived:
		return "message_arrived"
	case EventDeliveryComplete:
		return "delivery_complete"
	case EventReconnectFailed:
		return "reconnect_failed"
	default:
		return "unknown"
	}
}

// Event is a single notification raised by the transport's network goroutines.
// Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	SessionID string

	// Err carries the failure or loss cause; nil on success.
	Err error

	// SubscriptionID and Topics identify a subscribe request.
	SubscriptionID uint32
	Topics         []string

	// Topic and Payload describe an arrived message.
	Topic   string
	Payload []byte

	// MessageID identifies a completed publish.
	MessageID uint16
}
