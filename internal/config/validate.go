// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "load.variant"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue carries SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline, so callers should Normalize first if they
// want defaults applied before linting. It returns a slice of Issue values;
// callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateLoad(p.Load, p.Storage.Kind)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"file": {},
		"s3":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching implementation exists", s.Kind),
		})
	}

	if strings.TrimSpace(s.LogData) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.log_data",
			Message:  "source.log_data must not be empty; the event-log feed is required",
		})
	}
	if strings.TrimSpace(s.SongData) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.song_data",
			Message:  "no song feed configured; plays resolve only against songs already in the warehouse",
		})
	}

	if s.Kind == "s3" {
		for path, v := range map[string]string{
			"source.song_data": s.SongData,
			"source.log_data":  s.LogData,
		} {
			if v != "" && !strings.HasPrefix(v, "s3://") {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  fmt.Sprintf("s3 source requires an s3://bucket/prefix URI, got %q", v),
				})
			}
		}
	}

	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
		"mysql":    {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}

	return issues
}

func validateLoad(l Load, storageKind string) []Issue {
	var issues []Issue

	switch l.Variant {
	case "", VariantRowwise:
	case VariantBulk:
		// The bulk variant needs a backend with staging tables and a
		// set-based merge. MySQL registers as row-wise only.
		if storageKind == "mysql" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "load.variant",
				Message:  "bulk variant is not supported on mysql; use rowwise",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "load.variant",
			Message:  fmt.Sprintf("unknown variant %q; expected %q or %q", l.Variant, VariantRowwise, VariantBulk),
		})
	}

	switch l.OnRecordError {
	case "", PolicySkip, PolicyStrict:
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "load.on_record_error",
			Message:  fmt.Sprintf("unknown policy %q; expected %q or %q", l.OnRecordError, PolicySkip, PolicyStrict),
		})
	}

	if l.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "load.batch_size",
			Message:  "batch_size must not be negative",
		})
	}

	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "prompush", "datadog":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be dropped", m.Backend),
		})
	}
	if m.Backend == "prompush" && strings.TrimSpace(m.PushgatewayURL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.pushgateway_url",
			Message:  "prompush backend requires a pushgateway URL",
		})
	}
	if m.Backend == "datadog" && strings.TrimSpace(m.StatsdAddr) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.statsd_addr",
			Message:  "datadog backend requires a statsd address",
		})
	}

	return issues
}
