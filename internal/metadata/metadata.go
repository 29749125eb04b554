// Package metadata writes the run-provenance sidecar: a copy of the run
// configuration plus version and timing information, for audit purposes.
// The core never reads it back at runtime.
package metadata

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Version is stamped into the sidecar; overridden at build time with
// -ldflags "-X FlowSentry/internal/metadata.Version=...".
var Version = "dev"

// Sidecar records one run's provenance under a fixed directory.
type Sidecar struct {
	dir      string
	infoPath string
}

// NewSidecar creates the metadata directory and copies the run
// configuration into it.
func NewSidecar(dir, configPath string) (*Sidecar, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}
	if configPath != "" {
		if err := copyFile(configPath, filepath.Join(dir, filepath.Base(configPath))); err != nil {
			return nil, fmt.Errorf("failed to copy config: %w", err)
		}
	}
	return &Sidecar{dir: dir, infoPath: filepath.Join(dir, "info.txt")}, nil
}

// WriteStart records the version and the run's start timestamp.
func (s *Sidecar) WriteStart(start time.Time) error {
	body := fmt.Sprintf("FlowSentry version: %s\nStart date: %s\n",
		Version, start.Format(time.RFC3339))
	if err := os.WriteFile(s.infoPath, []byte(body), 0644); err != nil {
		return fmt.Errorf("failed to write metadata info: %w", err)
	}
	return nil
}

// WriteEnd appends the run's end timestamp.
func (s *Sidecar) WriteEnd(end time.Time) error {
	f, err := os.OpenFile(s.infoPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open metadata info: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "End date: %s\n", end.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to append end date: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
