package bus

import (
	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing envelopes to NATS topics.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.BusConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc}, nil
}

// Publish serializes an envelope to JSON and publishes it on the NATS
// subject named after its topic.
func (p *Publisher) Publish(env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.nc.Publish(string(env.Topic), data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
