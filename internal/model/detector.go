package model

// Detector is the contract every analyzer module implements. Analyze is
// called once per inbound message from every topic the module subscribed
// to. It must return false, with no side effects, for messages not
// intended for it, and true once a message was handled, whether or not
// evidence was produced.
type Detector interface {
	Name() string
	Analyze(msg *Envelope) bool
}
