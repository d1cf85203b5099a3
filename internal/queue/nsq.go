package queue

import (
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type NsqConfig struct {
	Address string
	Port    int
	Topic   string
}

type NsqQueue struct {
	producer *nsq.Producer
	topic    string
}

func newNsqQueue(params *NsqConfig) (*NsqQueue, error) {
	address := fmt.Sprintf("%s:%d", params.Address, params.Port)
	producer, err := nsq.NewProducer(address, nsq.NewConfig())

	if err != nil {
		return nil, errors.Wrap(err, "failed to create NSQ producer")
	}

	return &NsqQueue{producer: producer, topic: params.Topic}, nil
}

func (q *NsqQueue) PublishExecutionEvent(event *ExecutionEvent) error {
	body, marshalErr := json.Marshal(event)

	if marshalErr != nil {
		return errors.Wrap(marshalErr, "failed to marshal execution event")
	}

	if publishErr := q.producer.Publish(q.topic, body); publishErr != nil {
		return errors.Wrap(publishErr, "failed to publish execution event")
	}

	return nil
}

func (q *NsqQueue) Stop() {
	log.Info().Msg("stopping NSQ producer")

	q.producer.Stop()
}
