// Package output implements the leveled output sink: a bounded queue of
// typed records feeding a single writer goroutine. Every component logs
// through the router instead of writing to the terminal or log files
// directly.
package output

import (
	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Record is one leveled output line. Verbosity and debug each range 0-3;
// a record should be about one or the other, not both. Level 0 on both
// axes is never emitted.
type Record struct {
	Verbosity int
	Debug     int
	Sender    string
	Message   string
}

type msgKind int

const (
	kindRecord msgKind = iota
	kindQuiet
	kindStop
)

// message is the queue's element type: either a record or a control
// signal. Quiet and Stop are explicit variants, not magic string values.
type message struct {
	kind msgKind
	rec  Record
}

// Router routes leveled records to the terminal, the log file and the
// error file according to the configured verbosity and debug levels.
type Router struct {
	verbose int
	debug   int

	queue    chan message
	terminal io.Writer
	logFile  *os.File
	errFile  *os.File
	pub      model.Publisher // finished_modules notification, may be nil

	wg sync.WaitGroup
}

// ParseRecord parses the wire form "VD|sender|message", where V and D are
// the one-digit verbosity and debug levels.
func ParseRecord(line string) (Record, error) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("malformed output line: %q", line)
	}
	level := strings.TrimSpace(parts[0])
	if len(level) != 2 {
		return Record{}, fmt.Errorf("malformed level %q in output line", level)
	}
	v, err := strconv.Atoi(level[:1])
	if err != nil {
		return Record{}, fmt.Errorf("malformed verbosity in %q: %w", level, err)
	}
	d, err := strconv.Atoi(level[1:])
	if err != nil {
		return Record{}, fmt.Errorf("malformed debug level in %q: %w", level, err)
	}
	return Record{Verbosity: v, Debug: d, Sender: parts[1], Message: parts[2]}, nil
}

// NewRouter creates the router and its log files. Start must be called
// before logging.
func NewRouter(cfg config.OutputConfig, pub model.Publisher) (*Router, error) {
	r := &Router{
		verbose:  cfg.Verbose,
		debug:    cfg.Debug,
		queue:    make(chan message, 1024),
		terminal: os.Stdout,
		pub:      pub,
	}
	var err error
	if r.logFile, err = createLogFile(cfg.LogFile); err != nil {
		return nil, err
	}
	if r.errFile, err = createLogFile(cfg.ErrorsFile); err != nil {
		r.logFile.Close()
		return nil, err
	}
	return r, nil
}

func createLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// SetTerminal redirects terminal output, used by tests.
func (r *Router) SetTerminal(w io.Writer) {
	r.terminal = w
}

// Start launches the single writer goroutine.
func (r *Router) Start() {
	r.wg.Add(1)
	go r.run()
}

// Log enqueues one leveled record. It blocks only when the bounded queue
// is full.
func (r *Router) Log(verbosity, debug int, sender, msg string) {
	r.queue <- message{kind: kindRecord, rec: Record{
		Verbosity: verbosity,
		Debug:     debug,
		Sender:    sender,
		Message:   msg,
	}}
}

// Quiet suspends terminal output. File logging continues.
func (r *Router) Quiet() {
	r.queue <- message{kind: kindQuiet}
}

// Stop drains the queue, publishes the graceful-shutdown notification on
// finished_modules, and closes the log files.
func (r *Router) Stop() {
	r.queue <- message{kind: kindStop}
	r.wg.Wait()
	r.logFile.Close()
	r.errFile.Close()
}

func (r *Router) run() {
	defer r.wg.Done()
	quiet := false
	for m := range r.queue {
		switch m.kind {
		case kindQuiet:
			quiet = true
		case kindStop:
			if r.pub != nil {
				env := &model.Envelope{Topic: model.TopicFinishedModules, ProfileID: "output"}
				if err := r.pub.Publish(env); err != nil {
					log.Printf("Failed to publish finished_modules: %v", err)
				}
			}
			return
		case kindRecord:
			r.emit(m.rec, quiet)
		}
	}
}

// emit applies the level policy to one record. Verbosity or debug 0 means
// the axis never prints; debug 1 lines are duplicated to the error file;
// debug 3 lines are highlighted on the terminal.
func (r *Router) emit(rec Record, quiet bool) {
	now := time.Now().Format("2006/01/02 15:04:05")
	line := fmt.Sprintf("%s [%s] %s", now, rec.Sender, rec.Message)

	wanted := (rec.Verbosity > 0 && rec.Verbosity <= 3 && rec.Verbosity <= r.verbose) ||
		(rec.Debug > 0 && rec.Debug <= 3 && rec.Debug <= r.debug)

	if wanted {
		if !quiet {
			out := line
			if rec.Debug == 3 {
				out = "\033[0;35m" + line + "\033[0m"
			}
			fmt.Fprintln(r.terminal, out)
		}
		fmt.Fprintln(r.logFile, line)
	}
	if rec.Debug == 1 {
		fmt.Fprintln(r.errFile, line)
	}
}
