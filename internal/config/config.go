// Package config defines the serializable configuration model for the
// pipeline. Configs load from JSON or YAML files; a handful of environment
// variables override the loaded values so deployments can keep credentials
// out of config files (12-factor style).
//
// Example (YAML):
//
//	job: sparkify
//	source:
//	  kind: file
//	  song_data: data/song_data
//	  log_data: data/log_data
//	storage:
//	  kind: sqlite
//	  dsn: warehouse.db
//	  auto_create_tables: true
//	load:
//	  variant: rowwise
//	  batch_size: 500
//	  on_record_error: skip
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Variant names for Load.Variant.
const (
	VariantRowwise = "rowwise"
	VariantBulk    = "bulk"
)

// Record-error policies for Load.OnRecordError.
const (
	PolicySkip   = "skip"
	PolicyStrict = "strict"
)

// Pipeline is the top-level configuration object.
type Pipeline struct {
	// Job labels the run in logs and metrics.
	Job string `json:"job" yaml:"job"`

	Source  Source  `json:"source" yaml:"source"`
	Storage Storage `json:"storage" yaml:"storage"`
	Load    Load    `json:"load" yaml:"load"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
}

// Source locates the two input feeds. Both are roots (a directory tree or an
// s3://bucket/prefix URI) that are walked for .json units.
type Source struct {
	// Kind selects the source implementation: "file" or "s3".
	Kind string `json:"kind" yaml:"kind"`

	// SongData is the root of the song-metadata feed. Empty means the run
	// loads no songs and resolves plays against what the warehouse already
	// holds.
	SongData string `json:"song_data" yaml:"song_data"`

	// LogData is the root of the event-log feed.
	LogData string `json:"log_data" yaml:"log_data"`

	// Region is the AWS region for the s3 kind. Empty defers to the SDK's
	// shared config chain.
	Region string `json:"region" yaml:"region"`
}

// Storage selects and configures the warehouse backend.
type Storage struct {
	// Kind selects the backend: "postgres", "sqlite", or "mysql".
	Kind string `json:"kind" yaml:"kind"`

	DSN string `json:"dsn" yaml:"dsn"`

	// AutoCreateTables applies the star-schema DDL at startup.
	AutoCreateTables bool `json:"auto_create_tables" yaml:"auto_create_tables"`
}

// Load controls how rows reach the warehouse.
type Load struct {
	// Variant is "rowwise" (per-row upserts) or "bulk" (stage then merge).
	Variant string `json:"variant" yaml:"variant"`

	// BatchSize caps rows per load call. Zero means the default (500).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// OnRecordError is "skip" (count and continue) or "strict" (abandon the
	// unit on the first bad record). Zero value means "skip".
	OnRecordError string `json:"on_record_error" yaml:"on_record_error"`

	// ErrorSamples caps how many bad-record messages the summary retains.
	// Zero means the default (5).
	ErrorSamples int `json:"error_samples" yaml:"error_samples"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "" (no-op), "prompush", or "datadog".
	Backend string `json:"backend" yaml:"backend"`

	// PushgatewayURL is the Prometheus Pushgateway base URL for "prompush".
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`

	// StatsdAddr is the DogStatsD address for "datadog",
	// e.g. "127.0.0.1:8125".
	StatsdAddr string `json:"statsd_addr" yaml:"statsd_addr"`
}

// LoadFile reads and decodes a pipeline config. The extension picks the
// codec: .yaml/.yml decode as YAML, anything else as JSON. Environment
// overrides are applied after decoding.
func LoadFile(path string) (Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	p, err := Decode(raw, filepath.Ext(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("decode %s: %w", path, err)
	}
	ApplyEnv(&p)
	return p, nil
}

// Decode decodes raw config bytes. ext selects the codec as in LoadFile.
func Decode(raw []byte, ext string) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Pipeline{}, err
		}
	default:
		if err := json.Unmarshal(raw, &p); err != nil {
			return Pipeline{}, err
		}
	}
	return p, nil
}

// ApplyEnv overlays environment variables onto p. Set values win over the
// file; unset variables leave the file values alone.
//
//	PLAYETL_DSN          storage.dsn
//	PLAYETL_STORAGE_KIND storage.kind
//	PLAYETL_SONG_DATA    source.song_data
//	PLAYETL_LOG_DATA     source.log_data
//	PLAYETL_BATCH_SIZE   load.batch_size
func ApplyEnv(p *Pipeline) {
	if v := os.Getenv("PLAYETL_DSN"); v != "" {
		p.Storage.DSN = v
	}
	if v := os.Getenv("PLAYETL_STORAGE_KIND"); v != "" {
		p.Storage.Kind = v
	}
	if v := os.Getenv("PLAYETL_SONG_DATA"); v != "" {
		p.Source.SongData = v
	}
	if v := os.Getenv("PLAYETL_LOG_DATA"); v != "" {
		p.Source.LogData = v
	}
	if v := os.Getenv("PLAYETL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Load.BatchSize = n
		}
	}
}

// Normalize fills defaults for zero-valued optional fields.
func Normalize(p *Pipeline) {
	if p.Source.Kind == "" {
		p.Source.Kind = "file"
	}
	if p.Load.Variant == "" {
		p.Load.Variant = VariantRowwise
	}
	if p.Load.BatchSize <= 0 {
		p.Load.BatchSize = 500
	}
	if p.Load.OnRecordError == "" {
		p.Load.OnRecordError = PolicySkip
	}
	if p.Load.ErrorSamples <= 0 {
		p.Load.ErrorSamples = 5
	}
}
