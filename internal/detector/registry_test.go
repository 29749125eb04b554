package detector

import (
	"FlowSentry/internal/model"
	"sync/atomic"
	"testing"
)

type countingDetector struct {
	name    string
	handled atomic.Int64
}

func (d *countingDetector) Name() string { return d.name }

func (d *countingDetector) Analyze(msg *model.Envelope) bool {
	if !msg.IsForTopic(model.TopicNewNotice) {
		return false
	}
	d.handled.Add(1)
	return true
}

type panickyDetector struct {
	calls atomic.Int64
}

func (d *panickyDetector) Name() string { return "panicky" }

func (d *panickyDetector) Analyze(msg *model.Envelope) bool {
	d.calls.Add(1)
	panic("detector blew up")
}

func noticeEnv() *model.Envelope {
	return &model.Envelope{Topic: model.TopicNewNotice, ProfileID: "10.0.0.5", TWID: "timewindow1"}
}

func TestDispatch_FansOutToSubscribers(t *testing.T) {
	r := NewRegistry()
	a := &countingDetector{name: "a"}
	b := &countingDetector{name: "b"}
	r.Register(a, model.TopicNewNotice)
	r.Register(b, model.TopicNewNotice)
	r.Start()

	for i := 0; i < 10; i++ {
		if claimed := r.Dispatch(noticeEnv()); !claimed {
			t.Fatal("Expected dispatch to be claimed")
		}
	}
	r.Stop()

	if a.handled.Load() != 10 || b.handled.Load() != 10 {
		t.Fatalf("Expected both modules to see 10 messages, got %d/%d", a.handled.Load(), b.handled.Load())
	}
}

func TestDispatch_UnclaimedTopic(t *testing.T) {
	r := NewRegistry()
	r.Register(&countingDetector{name: "a"}, model.TopicNewNotice)
	r.Start()
	defer r.Stop()

	if claimed := r.Dispatch(&model.Envelope{Topic: model.TopicNewFlow}); claimed {
		t.Fatal("Expected dispatch on an unsubscribed topic to be unclaimed")
	}
}

func TestPanicInOneModule_DoesNotStallOthers(t *testing.T) {
	r := NewRegistry()
	bad := &panickyDetector{}
	good := &countingDetector{name: "good"}
	r.Register(bad, model.TopicNewNotice)
	r.Register(good, model.TopicNewNotice)
	r.Start()

	for i := 0; i < 5; i++ {
		r.Dispatch(noticeEnv())
	}
	r.Stop()

	if good.handled.Load() != 5 {
		t.Fatalf("Healthy module missed messages after peer panicked: got %d of 5", good.handled.Load())
	}
	// The panicking module keeps consuming subsequent messages too.
	if bad.calls.Load() != 5 {
		t.Fatalf("Panicking module should continue with the next message, got %d of 5 calls", bad.calls.Load())
	}
}

func TestStop_DrainsBufferedMessages(t *testing.T) {
	r := NewRegistry()
	d := &countingDetector{name: "slow"}
	r.Register(d, model.TopicNewNotice)
	r.Start()

	for i := 0; i < 100; i++ {
		r.Dispatch(noticeEnv())
	}
	r.Stop()

	if d.handled.Load() != 100 {
		t.Fatalf("Stop dropped buffered messages: %d of 100 handled", d.handled.Load())
	}
}
