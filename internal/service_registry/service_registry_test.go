package service_registry

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
	readyErr error
}

func (s *recordingService) Start() error {
	*s.log = append(*s.log, "start:"+s.name)
	return s.startErr
}

func (s *recordingService) Stop() error {
	*s.log = append(*s.log, "stop:"+s.name)
	return s.stopErr
}

type readyService struct {
	*recordingService
}

func (s readyService) WaitReady(context.Context) error {
	*s.log = append(*s.log, "ready:"+s.name)
	return s.readyErr
}

func TestServiceRegistry_StartStopOrder(t *testing.T) {
	var log []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("metrics", &recordingService{name: "metrics", log: &log})
	sr.RegisterService("connection", readyService{&recordingService{name: "connection", log: &log}})
	sr.RegisterService("telemetry", &recordingService{name: "telemetry", log: &log})
	sr.RegisterService("metrics", &recordingService{name: "duplicate", log: &log})

	assert.Equal(t, []string{"metrics", "connection", "telemetry"}, sr.Names())

	require.NoError(t, sr.StartServices(context.Background()))
	require.NoError(t, sr.StopServices())

	assert.Equal(t, []string{
		"start:metrics",
		"start:connection",
		"ready:connection",
		"start:telemetry",
		"stop:telemetry",
		"stop:connection",
		"stop:metrics",
	}, log)
}

func TestServiceRegistry_RollbackOnStartFailure(t *testing.T) {
	var log []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("first", &recordingService{name: "first", log: &log})
	sr.RegisterService("second", &recordingService{name: "second", log: &log, startErr: errors.New("boom")})
	sr.RegisterService("third", &recordingService{name: "third", log: &log})

	err := sr.StartServices(context.Background())
	assert.ErrorContains(t, err, "start second: boom")
	assert.Equal(t, []string{"start:first", "start:second", "stop:first"}, log)

	// nothing left to stop
	assert.NoError(t, sr.StopServices())
}

func TestServiceRegistry_RollbackWhenNotReady(t *testing.T) {
	var log []string
	notReady := errors.New("retries exhausted")
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("connection", readyService{&recordingService{name: "connection", log: &log, readyErr: notReady}})
	sr.RegisterService("telemetry", &recordingService{name: "telemetry", log: &log})

	err := sr.StartServices(context.Background())
	assert.ErrorIs(t, err, notReady)
	assert.Equal(t, []string{"start:connection", "ready:connection", "stop:connection"}, log)
}

func TestServiceRegistry_StopErrorsAreJoined(t *testing.T) {
	var log []string
	sr := NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", log: &log, stopErr: errors.New("a failed")})
	sr.RegisterService("b", &recordingService{name: "b", log: &log, stopErr: errors.New("b failed")})

	require.NoError(t, sr.StartServices(context.Background()))
	err := sr.StopServices()
	assert.ErrorContains(t, err, "failed to stop a: a failed")
	assert.ErrorContains(t, err, "failed to stop b: b failed")
}
