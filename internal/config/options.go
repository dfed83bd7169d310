// Package config loads and holds the hub's configuration (spec.md §6):
// a static load at startup via koanf (file + environment overlay), plus
// a small hot-reloadable subset of runtime-safe knobs.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the teacher's control/config.go listener/snapshot pattern
// for the hot-reload half; the static-load half is new (the teacher had
// no config-file loader of its own) and follows koanf's own documented
// file+env composition idiom, which several other repos in the pack use
// for exactly this kind of layered load.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Options mirrors every configuration option in spec.md §6.
type Options struct {
	Listen   bool   `koanf:"listen"`
	Backlog  int    `koanf:"backlog"`
	BindName string `koanf:"bind_name"`
	BindType string `koanf:"bind_type"` // "tcp" or "unix"

	MaxEvents uint `koanf:"max_events"`

	AlarmExpirationMs uint `koanf:"alarm_expiration_ms"`
	AlarmIntervalMs   uint `koanf:"alarm_interval_ms"`

	SemaphoreMode bool `koanf:"semaphore_mode"`
	SignalCapture bool `koanf:"signal_capture"`

	MaxConnections uint `koanf:"max_connections"`
	MaxMessages    uint `koanf:"max_messages"`

	MaxGuests     uint `koanf:"max_guests"`
	GuestLeaseMs  uint `koanf:"guest_lease_ms"`

	InQuota  uint `koanf:"in_quota"`
	OutQuota uint `koanf:"out_quota"`

	Throttle      bool `koanf:"throttle"`
	Policing      bool `koanf:"policing"`
	ReservedSlots uint `koanf:"reserved_slots"`

	TTL uint `koanf:"ttl"`

	AnswerRatio  float64 `koanf:"answer_ratio"`
	ForwardRatio float64 `koanf:"forward_ratio"`

	StabilizePeriodMs uint     `koanf:"stabilize_period_ms"`
	StabilizeRetryMs  uint     `koanf:"stabilize_retry_ms"`
	BootstrapNodes    []uint64 `koanf:"bootstrap_nodes"`

	GroupSize int    `koanf:"group_size"` // SRP prime group, bits
	Hash      string `koanf:"hash"`       // "sha256" or "sha512"

	RedactLogs bool `koanf:"redact_logs"`

	RingK uint64 `koanf:"ring_k"`
	SelfID uint64 `koanf:"self_id"`
	MTU    uint16 `koanf:"mtu"`

	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	LogLevel string `koanf:"log_level"`

	MetricsAddr string `koanf:"metrics_addr"` // empty disables the metrics HTTP endpoint
}

// Defaults returns the baseline option set; Load overlays a config file
// and environment variables on top of this.
func Defaults() Options {
	return Options{
		Listen:            true,
		Backlog:           128,
		BindName:          ":9000",
		BindType:          "tcp",
		MaxEvents:         256,
		AlarmIntervalMs:   1000,
		MaxConnections:    4096,
		MaxMessages:       8192,
		MaxGuests:         256,
		GuestLeaseMs:      30000,
		InQuota:           64,
		OutQuota:          64,
		Throttle:          true,
		Policing:          true,
		ReservedSlots:     8,
		TTL:               32,
		AnswerRatio:       0.5,
		ForwardRatio:      0.5,
		StabilizePeriodMs: 5000,
		StabilizeRetryMs:  1000,
		GroupSize:         3072,
		Hash:              "sha512",
		RingK:             16,
		MTU:               4096,
		LogLevel:          "info",
		MetricsAddr:       ":9100",
	}
}

// Load builds a koanf instance from defaults, an optional YAML file, and
// HUB_-prefixed environment variables (highest precedence), then decodes
// it into Options.
func Load(path string) (Options, error) {
	k := koanf.New(".")
	opts := Defaults()
	if err := k.Load(confmap.Provider(defaultsMap(opts), "."), nil); err != nil {
		return opts, fmt.Errorf("config: seed defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return opts, fmt.Errorf("config: load file %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("HUB_", ".", envTransform), nil); err != nil {
		return opts, fmt.Errorf("config: load env: %w", err)
	}

	var out Options
	if err := k.Unmarshal("", &out); err != nil {
		return opts, fmt.Errorf("config: unmarshal: %w", err)
	}
	return out, nil
}

// envTransform maps HUB_BIND_NAME to the option key bind_name.
func envTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "HUB_"))
}

// defaultsMap flattens Options into the key names koanf/env expect,
// matching the `koanf:"..."` struct tags above.
func defaultsMap(o Options) map[string]any {
	return map[string]any{
		"listen":              o.Listen,
		"backlog":             o.Backlog,
		"bind_name":           o.BindName,
		"bind_type":           o.BindType,
		"max_events":          o.MaxEvents,
		"alarm_expiration_ms": o.AlarmExpirationMs,
		"alarm_interval_ms":   o.AlarmIntervalMs,
		"semaphore_mode":      o.SemaphoreMode,
		"signal_capture":      o.SignalCapture,
		"max_connections":     o.MaxConnections,
		"max_messages":        o.MaxMessages,
		"max_guests":          o.MaxGuests,
		"guest_lease_ms":      o.GuestLeaseMs,
		"in_quota":            o.InQuota,
		"out_quota":           o.OutQuota,
		"throttle":            o.Throttle,
		"policing":            o.Policing,
		"reserved_slots":      o.ReservedSlots,
		"ttl":                 o.TTL,
		"answer_ratio":        o.AnswerRatio,
		"forward_ratio":       o.ForwardRatio,
		"stabilize_period_ms": o.StabilizePeriodMs,
		"stabilize_retry_ms":  o.StabilizeRetryMs,
		"bootstrap_nodes":     o.BootstrapNodes,
		"group_size":          o.GroupSize,
		"hash":                o.Hash,
		"redact_logs":         o.RedactLogs,
		"ring_k":              o.RingK,
		"self_id":             o.SelfID,
		"mtu":                 o.MTU,
		"tls_cert_file":       o.TLSCertFile,
		"tls_key_file":        o.TLSKeyFile,
		"log_level":           o.LogLevel,
		"metrics_addr":        o.MetricsAddr,
	}
}
