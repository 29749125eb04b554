package engine

import (
	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
	"testing"
	"time"
)

func testConfig() *config.Config {
	return &config.Config{
		Timewindow:  config.TimewindowConfig{Width: "1h"},
		Engine:      config.EngineConfig{NumWorkers: 2, SizeOfFlowChannel: 128},
		Correlation: config.CorrelationConfig{AlertThreshold: 0.4, BlockThreshold: 0.4},
	}
}

func TestPipeline_PasswordGuessingFlow(t *testing.T) {
	m, err := NewManager(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Start()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.InputChannel() <- &model.Envelope{
		Topic: model.TopicNewNotice,
		Flow: model.Flow{
			SAddr: "10.0.0.5",
			DAddr: "10.0.0.9",
			DPort: 22,
			Proto: "tcp",
			TS:    ts,
			Note:  "Password_Guessing",
		},
	}
	m.Stop()

	// The flow's source becomes the owning profile, bucketed into the
	// window computed from its timestamp.
	evidence := m.Ledger().GetEvidence("10.0.0.5", "timewindow1")
	if len(evidence) != 1 {
		t.Fatalf("Expected exactly 1 evidence entry, got %d", len(evidence))
	}
	for _, ev := range evidence {
		if ev.Kind != model.KindPasswordGuessing {
			t.Errorf("Expected kind %s, got %s", model.KindPasswordGuessing, ev.Kind)
		}
	}

	// The medium finding crosses both thresholds in the test config: one
	// alert forms and the window is blocked.
	alerts := m.Ledger().GetAlerts("10.0.0.5", "timewindow1")
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if !m.Tracker().IsBlocked("10.0.0.5", "timewindow1") {
		t.Fatal("Expected the window to be blocked")
	}

	// Both endpoints got profiles, with mirrored tuples.
	profiles := m.Store().GetProfiles()
	if len(profiles) != 2 || profiles[0] != "10.0.0.5" || profiles[1] != "10.0.0.9" {
		t.Fatalf("Expected profiles for both endpoints, got %v", profiles)
	}
	out := m.Store().GetTuples("10.0.0.5", "timewindow1", model.DirectionOut)
	if len(out) != 1 {
		t.Fatalf("Expected 1 out-tuple on the source profile, got %v", out)
	}
	in := m.Store().GetTuples("10.0.0.9", "timewindow1", model.DirectionIn)
	if len(in) != 1 {
		t.Fatalf("Expected 1 in-tuple on the destination profile, got %v", in)
	}
}

func TestPipeline_SharedTupleKeyAppends(t *testing.T) {
	m, err := NewManager(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Start()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		m.InputChannel() <- &model.Envelope{
			Topic: model.TopicNewFlow,
			Flow: model.Flow{
				SAddr: "10.0.0.5",
				DAddr: "203.0.113.7",
				SPort: uint16(50000 + i),
				DPort: 443,
				Proto: "tcp",
				TS:    ts.Add(time.Duration(i) * time.Minute),
				State: "EST",
			},
		}
	}
	m.Stop()

	tuples := m.Store().GetTuples("10.0.0.5", "timewindow1", model.DirectionOut)
	if len(tuples) != 1 {
		t.Fatalf("Expected a single tuple entry for the shared key, got %d", len(tuples))
	}
	if descs := tuples["203.0.113.7-443-tcp"]; len(descs) != 2 {
		t.Fatalf("Expected 2 descriptors under the shared tuple key, got %d", len(descs))
	}
}

func TestPipeline_InvalidTimestampIsDropped(t *testing.T) {
	m, err := NewManager(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Start()

	m.InputChannel() <- &model.Envelope{
		Topic: model.TopicNewFlow,
		Flow:  model.Flow{SAddr: "10.0.0.5", DAddr: "10.0.0.9", Proto: "tcp"},
	}
	m.Stop()

	if got := m.Store().GetProfiles(); len(got) != 0 {
		t.Fatalf("Malformed flow created profiles: %v", got)
	}
}
