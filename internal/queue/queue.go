package queue

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ExecutionEvent is published once per session when it reaches a terminal
// state, letting downstream consumers react without polling the api.
type ExecutionEvent struct {
	ID            string `json:"id"`
	Language      string `json:"language"`
	Status        string `json:"status"`
	RuntimeMs     int64  `json:"runtime_ms"`
	CompileTimeMs int64  `json:"compile_time_ms"`
}

type Queue interface {
	PublishExecutionEvent(event *ExecutionEvent) error
	Stop()
}

type Config struct {
	// ForceLocalMode skips the NSQ producer and logs events instead, used
	// for development and single-host deployments without a broker.
	ForceLocalMode bool

	Nsq *NsqConfig
}

// NewQueue selects the event publisher from configuration.
func NewQueue(config *Config) (Queue, error) {
	if config.ForceLocalMode || config.Nsq == nil || config.Nsq.Address == "" {
		log.Info().Msg("queue running in local mode, events will be logged only")
		return localQueue{}, nil
	}

	queue, err := newNsqQueue(config.Nsq)

	if err != nil {
		return nil, errors.Wrap(err, "failed to create NSQ queue")
	}

	return queue, nil
}

type localQueue struct{}

func (localQueue) PublishExecutionEvent(event *ExecutionEvent) error {
	log.Debug().
		Str("id", event.ID).
		Str("language", event.Language).
		Str("status", event.Status).
		Msg("execution event")

	return nil
}

func (localQueue) Stop() {}
