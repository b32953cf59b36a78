package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Masterminds/semver/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/benmeehan/ak-mqtt/internal/constants"
	"github.com/benmeehan/ak-mqtt/internal/metrics"
	"github.com/benmeehan/ak-mqtt/internal/models"
	"github.com/benmeehan/ak-mqtt/internal/samplers"
	"github.com/benmeehan/ak-mqtt/internal/service_registry"
	"github.com/benmeehan/ak-mqtt/internal/services"
	"github.com/benmeehan/ak-mqtt/internal/utils"
	"github.com/benmeehan/ak-mqtt/pkg/file"
	"github.com/benmeehan/ak-mqtt/pkg/identity"
	"github.com/benmeehan/ak-mqtt/pkg/jwt"
	"github.com/benmeehan/ak-mqtt/pkg/mqtt"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	os.Exit(utils.ExitCode(run(os.Args[1:], os.Stdout)))
}

// run wires and runs the client until a signal arrives or the session fails for good.
// Every error that should end the process is returned here.
func run(args []string, stdout io.Writer) error {
	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(args, fileClient)
	switch {
	case errors.Is(err, utils.ErrHelpRequested):
		fmt.Fprintln(stdout, utils.Usage())
		return err
	case errors.Is(err, utils.ErrVersionRequested):
		fmt.Fprintln(stdout, versionString())
		return err
	case err != nil:
		fmt.Fprintf(stdout, "Error: %v\n\n%s\n", err, utils.Usage())
		return err
	}

	logger := newLogger(stdout, config.Verbose).With().Str("device_id", config.Identity.DeviceID).Logger()
	logger.Info().Str("version", version).Str("broker", config.BrokerAddress()).Msg("Starting ak-mqtt")

	creds, err := identity.LoadCredentials(config.Identity.DeviceID, config.Identity.PrivateKeyFile,
		config.Identity.Audience, config.Identity.Algorithm, fileClient)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load device credentials")
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	tokens := services.NewTokenSource(jwt.NewTokenIssuer(), creds, m, logger)
	if _, err := tokens.Renew(); err != nil {
		logger.Error().Err(err).Msg("Failed to issue authentication token")
		return err
	}

	transport, err := newTransport(config, creds, tokens, fileClient, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize MQTT transport")
		return err
	}

	sampler, err := newSampler(config.Telemetry.Sampler, logger)
	if err != nil {
		return err
	}

	subscriptions := services.NewSubscriptionService(
		models.Topic{Name: constants.DownlinkTopic(creds.DeviceID), QOS: constants.QOS},
		transport, m, logger)
	downlinks := services.NewDownlinkService(m, logger)
	pool := utils.NewWorkerPool(constants.DownlinkWorkers, constants.EventBufferSize, logger)

	connection := services.NewConnectionService(transport, tokens,
		utils.NewBackoff(config.MQTT.Backoff, constants.ConnectRetryDelay),
		subscriptions, downlinks, pool, m, logger)

	telemetry := services.NewTelemetryService(
		models.Topic{Name: constants.UplinkTopic(creds.DeviceID), QOS: constants.QOS, Retained: true},
		constants.SampleInterval, sampler, transport, connection, m, logger)

	serviceRegistry := service_registry.NewServiceRegistry(logger)
	if config.Metrics.Address != "" {
		serviceRegistry.RegisterService("metrics", metrics.NewServer(config.Metrics.Address, registry, logger))
	}
	serviceRegistry.RegisterService("connection", connection)
	serviceRegistry.RegisterService("telemetry", telemetry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serviceRegistry.StartServices(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("Interrupted before the first connection")
			return nil
		}
		logger.Error().Err(err).Msg("Failed to start services")
		return err
	}
	logger.Info().Strs("services", serviceRegistry.Names()).Msg("All services started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down gracefully...")
	case <-connection.Done():
		runErr = connection.Err()
		logger.Error().Err(runErr).Msg("Connection failed permanently, shutting down")
	}

	if err := serviceRegistry.StopServices(); err != nil {
		logger.Warn().Err(err).Msg("Some services did not stop cleanly")
	}
	return runErr
}

func newLogger(out io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// newTransport builds the immutable connection configuration and the paho-backed transport.
func newTransport(config *utils.Config, creds *identity.Credentials, tokens *services.TokenSource,
	fileClient file.FileOperations, logger zerolog.Logger) (*mqtt.MqttService, error) {

	var caCert []byte
	if config.MQTT.CACertificate != "" {
		data, err := fileClient.ReadFileRaw(config.MQTT.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("%w: read CA certificate %s: %w", utils.ErrConfig, config.MQTT.CACertificate, err)
		}
		caCert = data
	}

	transport, err := mqtt.NewMqttService(mqtt.ConnectionConfig{
		Broker:        config.BrokerAddress(),
		ClientID:      creds.DeviceID,
		Username:      creds.DeviceID,
		CACertificate: caCert,
		KeepAlive:     constants.KeepAlive,
		MaxBuffered:   constants.MaxBufferedMessages,
	}, tokens.Password, constants.EventBufferSize, logger)
	if errors.Is(err, mqtt.ErrInvalidCACertificate) {
		return nil, fmt.Errorf("%w: %w", utils.ErrConfig, err)
	}
	return transport, err
}

func newSampler(name string, logger zerolog.Logger) (samplers.Sampler, error) {
	random := samplers.NewRandomSampler(logger)

	registry := samplers.NewSamplersRegistry()
	registry.Register(random)
	registry.Register(samplers.NewHostTemperatureSampler(random, logger))

	sampler, err := registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrConfig, err)
	}
	return sampler, nil
}

func versionString() string {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Sprintf("ak-mqtt %s (unversioned build)", version)
	}
	return "ak-mqtt v" + v.String()
}
