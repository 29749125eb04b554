package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BusConfig holds the NATS connection settings shared by every process.
type BusConfig struct {
	NATSURL string `yaml:"nats_url"`
}

// TimewindowConfig controls how flows are bucketed into timewindows.
type TimewindowConfig struct {
	Width string `yaml:"width"` // e.g. "1h"
}

// EngineConfig holds the pipeline daemon settings.
type EngineConfig struct {
	NumWorkers        int `yaml:"num_workers"`
	SizeOfFlowChannel int `yaml:"size_of_flow_channel"`
}

// CorrelationConfig holds the evidence correlation and blocking thresholds.
type CorrelationConfig struct {
	AlertThreshold float64 `yaml:"alert_threshold"`
	BlockThreshold float64 `yaml:"block_threshold"`
}

// ClickHouseConfig holds connection settings for the ClickHouse exporter.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GobConfig holds settings for the gob file exporter.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// ExportWriterDef defines a single snapshot writer from the config file.
type ExportWriterDef struct {
	Type             string           `yaml:"type"` // "clickhouse" or "gob"
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
	Gob              GobConfig        `yaml:"gob"`
}

// OutputConfig controls the leveled output router.
type OutputConfig struct {
	Verbose     int    `yaml:"verbose"` // 0-3
	Debug       int    `yaml:"debug"`   // 0-3
	LogFile     string `yaml:"log_file"`
	ErrorsFile  string `yaml:"errors_file"`
	MetadataDir string `yaml:"metadata_dir"`
}

// SMTPConfig holds the email notification settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// APIConfig holds the read-model HTTP server settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ProbeConfig holds the ingestion publisher settings.
type ProbeConfig struct {
	Input string `yaml:"input"` // path to a JSON-lines flow file or a pcap
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Bus         BusConfig         `yaml:"bus"`
	Timewindow  TimewindowConfig  `yaml:"timewindow"`
	Engine      EngineConfig      `yaml:"engine"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Writers     []ExportWriterDef `yaml:"writers"`
	Output      OutputConfig      `yaml:"output"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	API         APIConfig         `yaml:"api"`
	Probe       ProbeConfig       `yaml:"probe"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return &cfg, nil
}
