package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	connectTimeout       = 30 * time.Second
	maxReconnectInterval = time.Minute
	disconnectQuiesce    = 250 * time.Millisecond
	tlsMinVersion        = tls.VersionTLS12
)

// ConnectionConfig is the immutable description of how to reach the broker.
// It is built once at startup and shared by value with every (re)connect.
type ConnectionConfig struct {
	Broker        string
	ClientID      string
	Username      string
	CACertificate []byte
	KeepAlive     time.Duration
	MaxBuffered   int
}

// PasswordProvider returns the password to present on the next connect.
type PasswordProvider func() string

// newTLSConfig enables server certificate verification against the system roots, or
// against caCert when one is configured. Handshake outcomes are logged, never altered.
func newTLSConfig(caCert []byte, logger zerolog.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if len(caCert) > 0 {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, ErrInvalidCACertificate
		}
		tlsConfig.RootCAs = caCertPool
	}

	tlsConfig.VerifyConnection = func(cs tls.ConnectionState) error {
		logger.Debug().
			Str("server_name", cs.ServerName).
			Uint16("tls_version", cs.Version).
			Int("peer_certificates", len(cs.PeerCertificates)).
			Msg("TLS handshake verified")
		return nil
	}

	return tlsConfig, nil
}

// dialBroker opens the network connection for one connect attempt. TLS schemes complete
// the handshake here, so certificate failures surface as the returned error.
func dialBroker(uri *url.URL, tlsConfig *tls.Config, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}

	switch uri.Scheme {
	case "ssl", "tls", "mqtts", "tcps":
		return tls.DialWithDialer(dialer, "tcp", uri.Host, tlsConfig)
	case "tcp", "mqtt":
		return dialer.Dial("tcp", uri.Host)
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", uri.Scheme)
	}
}

// isTLSError reports whether err originated in the TLS layer.
func isTLSError(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

// buildClientOptions translates cfg into paho options. Handlers are attached by the caller.
func buildClientOptions(cfg ConnectionConfig, tlsConfig *tls.Config, password PasswordProvider, logger zerolog.Logger) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetTLSConfig(tlsConfig)

	// The password is resolved on every attempt so a renewed token is picked up
	// by both manual and automatic reconnects.
	opts.SetCredentialsProvider(func() (string, string) {
		return cfg.Username, password()
	})

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)

	opts.SetConnectionAttemptHandler(func(broker *url.URL, tlsCfg *tls.Config) *tls.Config {
		logger.Debug().Str("broker", broker.String()).Msg("Attempting connection to broker")
		return tlsCfg
	})

	return opts
}
