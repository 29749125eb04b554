package engine

import (
	"FlowSentry/internal/blocking"
	"FlowSentry/internal/config"
	"FlowSentry/internal/detector"
	"FlowSentry/internal/detector/notice"
	"FlowSentry/internal/export"
	"FlowSentry/internal/ledger"
	"FlowSentry/internal/model"
	"FlowSentry/internal/notification"
	"FlowSentry/internal/output"
	"FlowSentry/internal/store"
	"FlowSentry/internal/timewindow"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Manager wires the pipeline together: a worker pool consuming envelopes
// from the bus, the timewindow manager and flow store they write through,
// the detector registry they dispatch into, the evidence ledger, the
// blocking tracker, and the snapshot writers.
type Manager struct {
	store    *store.Store
	tw       *timewindow.Manager
	ledger   *ledger.Ledger
	tracker  *blocking.Tracker
	registry *detector.Registry
	writers  []model.Writer
	out      *output.Router

	flowChannel chan *model.Envelope
	numWorkers  int
	workerWg    sync.WaitGroup

	done          chan struct{}
	snapshotterWg sync.WaitGroup
}

// NewManager creates a new Manager. The publisher may be nil when no bus
// is attached (tests); notifications and alert publication degrade to
// no-ops.
func NewManager(cfg *config.Config, pub model.Publisher, out *output.Router) (*Manager, error) {
	width, err := time.ParseDuration(cfg.Timewindow.Width)
	if err != nil {
		return nil, fmt.Errorf("invalid timewindow width: %w", err)
	}
	if width <= 0 {
		return nil, fmt.Errorf("timewindow width must be a positive duration")
	}

	st := store.New()
	tw := timewindow.NewManager(width, st, pub)
	led := ledger.New(cfg.Correlation.AlertThreshold)
	tracker := blocking.NewTracker(cfg.Correlation.BlockThreshold)

	led.OnAlert(tracker.HandleAlert)
	if pub != nil {
		led.OnAlert(func(alert model.Alert) {
			env := &model.Envelope{
				Topic:     model.TopicAlertFormed,
				ProfileID: alert.ProfileID,
				TWID:      alert.TWID,
			}
			if err := pub.Publish(env); err != nil {
				log.Printf("Failed to publish alert_formed for %s/%s: %v", alert.ProfileID, alert.TWID, err)
			}
		})
	}
	if cfg.SMTP.Host != "" {
		notifier := notification.NewEmailNotifier(cfg.SMTP)
		led.OnAlert(func(alert model.Alert) {
			subject := fmt.Sprintf("FlowSentry alert: %s in %s", alert.ProfileID, alert.TWID)
			body := fmt.Sprintf("Alert %s formed at %s with severity %.2f over %d findings.",
				alert.ID, alert.FormedAt.Format(time.RFC3339), alert.Severity, len(alert.EvidenceIDs))
			if err := notifier.Send(subject, body); err != nil {
				log.Printf("Failed to send alert notification: %v", err)
			}
		})
		log.Println("Email notification enabled for formed alerts.")
	}

	registry := detector.NewRegistry()
	registry.Register(notice.NewVerticalPortscan(led), model.TopicNewNotice)
	registry.Register(notice.NewHorizontalPortscan(led), model.TopicNewNotice)
	registry.Register(notice.NewPasswordGuessing(led), model.TopicNewNotice)

	writers, err := createWriters(cfg.Writers)
	if err != nil {
		return nil, err
	}

	numWorkers := cfg.Engine.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 4
	}
	chanSize := cfg.Engine.SizeOfFlowChannel
	if chanSize <= 0 {
		chanSize = 1024
	}

	return &Manager{
		store:       st,
		tw:          tw,
		ledger:      led,
		tracker:     tracker,
		registry:    registry,
		writers:     writers,
		out:         out,
		flowChannel: make(chan *model.Envelope, chanSize),
		numWorkers:  numWorkers,
		done:        make(chan struct{}),
	}, nil
}

// createWriters builds every enabled snapshot writer from config.
func createWriters(defs []config.ExportWriterDef) ([]model.Writer, error) {
	var writers []model.Writer
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		interval, err := time.ParseDuration(def.SnapshotInterval)
		if err != nil {
			log.Printf("Warning: invalid snapshot_interval for writer type '%s': %v, skipping.", def.Type, err)
			continue
		}
		switch def.Type {
		case "gob":
			writers = append(writers, export.NewGobWriter(def.Gob.RootPath, interval))
		case "clickhouse":
			w, err := export.NewClickHouseWriter(def.ClickHouse, interval)
			if err != nil {
				log.Printf("Warning: failed to create writer type '%s': %v, skipping.", def.Type, err)
				continue
			}
			writers = append(writers, w)
		default:
			log.Printf("Warning: unknown writer type '%s' in config, skipping.", def.Type)
		}
	}
	return writers, nil
}

// Store exposes the flow store for the read model.
func (m *Manager) Store() *store.Store { return m.store }

// Ledger exposes the evidence ledger for the read model.
func (m *Manager) Ledger() *ledger.Ledger { return m.ledger }

// Tracker exposes the blocking tracker for the read model.
func (m *Manager) Tracker() *blocking.Tracker { return m.tracker }

// Registry exposes the detector registry so callers can add modules
// before Start.
func (m *Manager) Registry() *detector.Registry { return m.registry }

// InputChannel returns the channel inbound envelopes are fed into.
func (m *Manager) InputChannel() chan<- *model.Envelope {
	return m.flowChannel
}

// Start launches the detector registry, the worker pool and one
// snapshotter per writer.
func (m *Manager) Start() {
	m.registry.Start()

	for _, writer := range m.writers {
		m.snapshotterWg.Add(1)
		go m.runSnapshotter(writer)
		log.Printf("Started snapshotter for a writer with interval %s.", writer.GetInterval())
	}

	m.workerWg.Add(m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		go m.worker()
	}
	log.Printf("Manager started with %d workers.", m.numWorkers)
}

// Stop gracefully shuts down the manager: stop accepting envelopes, drain
// the workers, take final snapshots, then stop the detector modules.
func (m *Manager) Stop() {
	log.Println("Manager stopping...")
	close(m.flowChannel)

	log.Println("Waiting for workers to finish...")
	m.workerWg.Wait()

	m.registry.Stop()

	close(m.done)
	log.Println("Waiting for snapshotters to finish...")
	m.snapshotterWg.Wait()

	log.Println("Manager stopped.")
}

// runSnapshotter runs a dedicated snapshot loop for a single writer.
func (m *Manager) runSnapshotter(writer model.Writer) {
	defer m.snapshotterWg.Done()
	interval := writer.GetInterval()
	if interval <= 0 {
		log.Printf("Invalid interval %s for writer, snapshotter will not run.", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSnapshotForWriter(writer)
		case <-m.done:
			m.takeSnapshotForWriter(writer)
			return
		}
	}
}

// takeSnapshotForWriter writes one point-in-time ledger snapshot.
func (m *Manager) takeSnapshotForWriter(writer model.Writer) {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	snapshot := m.ledger.Snapshot()
	if err := writer.Write(snapshot, timestamp); err != nil {
		log.Printf("Error writing ledger snapshot: %v", err)
	}
}

func (m *Manager) worker() {
	defer m.workerWg.Done()
	for env := range m.flowChannel {
		if err := m.process(env); err != nil {
			if errors.Is(err, model.ErrInvalidTimestamp) {
				m.logf(0, 2, "engine", "Dropping flow with invalid timestamp: %v", err)
				continue
			}
			m.logf(0, 1, "engine", "Failed to process flow for %s: %v", env.ProfileID, err)
		}
	}
}

// process routes one envelope: resolve its (profile, timewindow), persist
// the flow and its aggregates, then hand it to the subscribed detectors.
func (m *Manager) process(env *model.Envelope) error {
	flow := env.Flow

	profileid := env.ProfileID
	if profileid == "" {
		profileid = flow.SAddr
	}

	twid, isNew, err := m.tw.Resolve(profileid, flow.TS)
	if err != nil {
		return err
	}
	if isNew {
		m.logf(3, 0, "engine", "New timewindow %s for profile %s", twid, profileid)
	}

	if err := m.store.RecordFlow(profileid, twid, flow); err != nil {
		return err
	}
	desc := fmt.Sprintf("%s %s:%d -> %s:%d %s", flow.Proto, flow.SAddr, flow.SPort, flow.DAddr, flow.DPort, flow.State)
	outKey := model.TupleKey{PeerIP: flow.DAddr, PeerPort: flow.DPort, Proto: flow.Proto}
	if err := m.store.UpsertTuple(profileid, twid, model.DirectionOut, outKey, desc); err != nil {
		return err
	}
	if err := m.store.AppendTimeline(profileid, twid, flow); err != nil {
		return err
	}

	// The destination side gets its own profile with the mirrored tuple.
	peerTWID, _, err := m.tw.Resolve(flow.DAddr, flow.TS)
	if err == nil {
		inKey := model.TupleKey{PeerIP: flow.SAddr, PeerPort: flow.SPort, Proto: flow.Proto}
		if err := m.store.UpsertTuple(flow.DAddr, peerTWID, model.DirectionIn, inKey, desc); err != nil {
			return err
		}
	}

	env.ProfileID = profileid
	env.TWID = twid
	if !m.registry.Dispatch(env) && env.Topic != model.TopicNewFlow {
		m.logf(0, 2, "engine", "No module claimed message on topic %s", env.Topic)
	}
	return nil
}

// logf routes a leveled record through the output router when one is
// attached, falling back to the standard logger.
func (m *Manager) logf(verbosity, debug int, sender, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if m.out != nil {
		m.out.Log(verbosity, debug, sender, msg)
		return
	}
	log.Printf("[%s] %s", sender, msg)
}
