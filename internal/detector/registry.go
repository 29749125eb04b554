package detector

import (
	"FlowSentry/internal/model"
	"log"
	"sync"
)

const defaultInputSize = 1024

// moduleRunner hosts one detector module on its own goroutine with a
// private input channel, so a slow or crashing module cannot stall the
// bus or the other modules.
type moduleRunner struct {
	det   model.Detector
	input chan *model.Envelope
}

// Registry maps topics to the detector modules subscribed to them and
// fans inbound envelopes out to every subscriber. Modules run
// independently and concurrently; no ordering is guaranteed between
// different modules observing the same message.
type Registry struct {
	mu      sync.Mutex
	runners []*moduleRunner
	byTopic map[model.Topic][]*moduleRunner
	wg      sync.WaitGroup
	started bool
}

// NewRegistry creates an empty detector registry.
func NewRegistry() *Registry {
	return &Registry{byTopic: make(map[model.Topic][]*moduleRunner)}
}

// Register subscribes a detector module to one or more topics. Must be
// called before Start.
func (r *Registry) Register(det model.Detector, topics ...model.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	runner := &moduleRunner{det: det, input: make(chan *model.Envelope, defaultInputSize)}
	r.runners = append(r.runners, runner)
	for _, t := range topics {
		r.byTopic[t] = append(r.byTopic[t], runner)
	}
	log.Printf("Registered detector module '%s' for topics %v", det.Name(), topics)
}

// Start launches one goroutine per registered module.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	for _, runner := range r.runners {
		r.wg.Add(1)
		go r.run(runner)
	}
	log.Printf("Detector registry started with %d modules.", len(r.runners))
}

// run is a module's consume loop. A panic while analyzing one message is
// recovered and logged; the module continues with the next message,
// losing only in-flight state.
func (r *Registry) run(runner *moduleRunner) {
	defer r.wg.Done()
	for env := range runner.input {
		r.analyze(runner, env)
	}
}

func (r *Registry) analyze(runner *moduleRunner, env *model.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Detector module '%s' failed on message for %s/%s: %v",
				runner.det.Name(), env.ProfileID, env.TWID, rec)
		}
	}()
	runner.det.Analyze(env)
}

// Dispatch fans the envelope out to every module subscribed to its topic
// and reports whether any module claimed it. Unclaimed envelopes are the
// caller's to log.
func (r *Registry) Dispatch(env *model.Envelope) bool {
	r.mu.Lock()
	runners := r.byTopic[env.Topic]
	r.mu.Unlock()
	for _, runner := range runners {
		runner.input <- env
	}
	return len(runners) > 0
}

// Stop closes every module's input and waits for the consume loops to
// drain.
func (r *Registry) Stop() {
	r.mu.Lock()
	for _, runner := range r.runners {
		close(runner.input)
	}
	r.mu.Unlock()
	r.wg.Wait()
	log.Println("Detector registry stopped.")
}
