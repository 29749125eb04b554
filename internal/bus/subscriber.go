package bus

import (
	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

// EnvelopeHandler is a function that processes a received envelope.
type EnvelopeHandler func(env *model.Envelope)

// Subscriber is responsible for subscribing to bus topics and decoding
// envelopes for a handler.
type Subscriber struct {
	nc   *nats.Conn
	subs []*nats.Subscription
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.BusConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc}, nil
}

// Subscribe starts delivering envelopes published on the topic to the
// handler. Envelopes with a missing or unknown discriminator are logged
// and dropped here rather than surfaced to any module.
func (s *Subscriber) Subscribe(topic model.Topic, handler EnvelopeHandler) error {
	sub, err := s.nc.Subscribe(string(topic), func(msg *nats.Msg) {
		var env model.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("Error unmarshalling envelope on %s: %v", topic, err)
			return
		}
		if _, err := model.ParseTopic(string(env.Topic)); err != nil {
			log.Printf("Dropping message on %s: %v", topic, err)
			return
		}
		handler(&env)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	log.Printf("Subscribed to '%s'. Waiting for messages...", topic)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
