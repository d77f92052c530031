package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/naoina/toml"

	"github.com/ottergen/snapper/hashutil"
)

// tomlSettings mirrors the field-name normalization geth's own
// cmd/geth/config.go builds around naoina/toml: field names are taken
// verbatim rather than case-folded, and unrecognized keys are
// reported as errors rather than silently dropped.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("config: field %q is not defined in %s", field, rt.String())
	},
}

// tomlConfig is the wire shape read from disk; Expiration is held as
// seconds (matching spec §6's "Seconds; ... 0 disables") and converted
// to a time.Duration once parsed.
type tomlConfig struct {
	Verbose          bool
	Redundancy       uint8
	Integrity        bool
	Threshold        uint32
	MaxSnapshots     uint32
	MinSnapshots     uint32
	ExpirationSecs   int64
	BufSize          uint32
	HashAlgorithm    string
}

// TOMLSource reads Config from a TOML file at Path, falling back to
// Defaults() for any field the file omits.
type TOMLSource struct {
	Path string
}

func (s TOMLSource) Load() (Config, error) {
	def := Defaults()
	raw := tomlConfig{
		Verbose:        def.Verbose,
		Redundancy:     def.Redundancy,
		Integrity:      def.Integrity,
		Threshold:      def.Threshold,
		MaxSnapshots:   def.MaxSnapshots,
		MinSnapshots:   def.MinSnapshots,
		ExpirationSecs: int64(def.Expiration / time.Second),
		BufSize:        def.BufSize,
		HashAlgorithm:  string(def.HashAlgorithm),
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return Config{}, fmt.Errorf("config: opening %s: %w", s.Path, err)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(f).Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", s.Path, err)
	}

	alg := hashutil.Algorithm(strings.ToLower(raw.HashAlgorithm))
	if _, err := hashutil.New(alg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", s.Path, err)
	}

	return Config{
		Verbose:       raw.Verbose,
		Redundancy:    raw.Redundancy,
		Integrity:     raw.Integrity,
		Threshold:     raw.Threshold,
		MaxSnapshots:  raw.MaxSnapshots,
		MinSnapshots:  raw.MinSnapshots,
		Expiration:    time.Duration(raw.ExpirationSecs) * time.Second,
		BufSize:       raw.BufSize,
		HashAlgorithm: alg,
	}, nil
}
