package mqtt

import "errors"

var (
	// ErrTransportFatal is returned when the transport cannot even attempt a connection.
	ErrTransportFatal = errors.New("mqtt: fatal transport error")

	// ErrBufferFull is returned by Publish once the outstanding-message buffer is exhausted.
	ErrBufferFull = errors.New("mqtt: offline buffer full")

	// ErrSubscribeRejected is reported when the broker refuses a subscription (granted QoS 0x80).
	ErrSubscribeRejected = errors.New("mqtt: subscription rejected by broker")

	// ErrReconnectFailed is reported for each automatic reconnect attempt that did not succeed.
	ErrReconnectFailed = errors.New("mqtt: automatic reconnect failed")

	// ErrInvalidCACertificate is returned when the configured CA bundle has no usable certificate.
	ErrInvalidCACertificate = errors.New("mqtt: failed to append CA certificate")
)
