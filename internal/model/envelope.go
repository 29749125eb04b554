package model

import "fmt"

// Topic is the typed discriminator of a bus message. Using a dedicated
// type instead of free strings lets subscribers match exhaustively.
type Topic string

const (
	TopicNewFlow         Topic = "new_flow"
	TopicNewNotice       Topic = "new_notice"
	TopicNewTimewindow   Topic = "new_timewindow"
	TopicAlertFormed     Topic = "alert_formed"
	TopicFinishedModules Topic = "finished_modules"
)

// ParseTopic validates a wire-level topic string.
func ParseTopic(s string) (Topic, error) {
	switch t := Topic(s); t {
	case TopicNewFlow, TopicNewNotice, TopicNewTimewindow, TopicAlertFormed, TopicFinishedModules:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, s)
	}
}

// Envelope is the message format exchanged on the pub/sub bus. The flow
// payload is only meaningful on flow-bearing topics.
type Envelope struct {
	Topic     Topic  `json:"topic"`
	ProfileID string `json:"profileid"`
	TWID      string `json:"twid"`
	Flow      Flow   `json:"flow"`
}

// IsForTopic is the dispatch discriminator every detector module checks
// before doing anything else with a message.
func (e *Envelope) IsForTopic(t Topic) bool {
	return e != nil && e.Topic == t
}
