package constants

import (
	"fmt"
	"time"
)

const (
	// QOS is the delivery guarantee used for uplinks and the downlink subscription.
	QOS = 1

	// MaxBufferedMessages caps the publishes that may be outstanding while the broker is unreachable.
	MaxBufferedMessages = 120

	// MaxConnectRetries is the number of consecutive connect failures tolerated before giving up.
	MaxConnectRetries = 10

	// ConnectRetryDelay is the pause before a failed connect is re-issued.
	ConnectRetryDelay = 2500 * time.Millisecond

	// KeepAlive spans the whole offline buffer so it never fires during normal publishing.
	KeepAlive = MaxBufferedMessages * SampleInterval

	// EventBufferSize is the capacity of the transport event channel.
	EventBufferSize = 64

	// DownlinkWorkers is the number of goroutines dispatching downlink messages.
	DownlinkWorkers = 2

	// SessionCycleTimeout bounds how long a token-driven reconnect waits for uplinks to be acknowledged.
	SessionCycleTimeout = time.Minute
)

// Connection defaults, matching the akenza broker.
const (
	DefaultHostname  = "mqtt.akenza.io"
	DefaultPort      = 8883
	DefaultAlgorithm = "ES256"
	DefaultAudience  = "akenza.io"
)

// BrokerAddress builds the TLS transport address for host and port.
func BrokerAddress(hostname string, port int) string {
	return fmt.Sprintf("ssl://%s:%d", hostname, port)
}

// UplinkTopic is where measurements for deviceID are published.
func UplinkTopic(deviceID string) string {
	return "/up/device/id/" + deviceID + "/measurements"
}

// DownlinkTopic is the wildcard subscription receiving every downlink for deviceID.
func DownlinkTopic(deviceID string) string {
	return "/down/device/id/" + deviceID + "/#"
}
