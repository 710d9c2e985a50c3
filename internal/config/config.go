// Package config loads the decode pipeline's tunable options: defaults
// overlaid with an optional YAML file, tolerant of missing or malformed
// keys the way the host application's settings file is.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Options holds the decode pipeline's tunable parameters.
type Options struct {
	// MinCompatibilityLevel is stamped onto SemanticModel's reported
	// compatibility level; it is not checked and never rejects a file.
	MinCompatibilityLevel int

	// CacheSizeLimitBytes bounds the façade's hot file-slice cache.
	CacheSizeLimitBytes int64

	// ColdTierThresholdBytes: slices at or above this size become
	// XZ-compression candidates when evicted from the hot LRU ring
	// instead of being dropped outright.
	ColdTierThresholdBytes int64

	// CodecLibraryPath is an optional override consumed only by the CLI;
	// the library itself always takes an already-constructed codec.
	CodecLibraryPath string
}

const (
	defaultMinCompatibilityLevel = 1500
	defaultCacheSizeLimitBytes   = 256 * 1024 * 1024
	defaultColdTierThreshold     = 1 * 1024 * 1024
)

var defaultOptions = Options{
	MinCompatibilityLevel: defaultMinCompatibilityLevel,
	CacheSizeLimitBytes:   defaultCacheSizeLimitBytes,
	ColdTierThresholdBytes: defaultColdTierThreshold,
}

// Default returns a copy of the built-in defaults.
func Default() Options {
	return defaultOptions
}

// Load reads path as YAML if it exists, overlaying its recognized keys
// onto the defaults. A missing file, an unreadable file, or a file that
// isn't valid YAML all silently yield the defaults. A malformed value for
// a single key falls back to that key's default rather than failing the
// whole load.
func Load(path string) (*Options, error) {
	opts := defaultOptions

	b, err := os.ReadFile(path)
	if err != nil {
		return &opts, nil
	}

	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return &opts, nil
	}

	if v, ok := m["min_compatibility_level"]; ok {
		if vi, ok := asInt(v); ok {
			opts.MinCompatibilityLevel = vi
		}
	}
	if v, ok := m["cache_size_limit_bytes"]; ok {
		if vi, ok := asInt64(v); ok {
			opts.CacheSizeLimitBytes = vi
		}
	}
	if v, ok := m["cold_tier_threshold_bytes"]; ok {
		if vi, ok := asInt64(v); ok {
			opts.ColdTierThresholdBytes = vi
		}
	}
	if v, ok := m["codec_library_path"]; ok {
		if vs, ok := v.(string); ok {
			opts.CodecLibraryPath = vs
		}
	}

	return &opts, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
