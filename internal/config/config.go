// Package config loads migration-tool configuration from environment
// variables and translates it into locale and record-type registries.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/oddnoc/silverstripe-fluent/internal/locale"
	"github.com/oddnoc/silverstripe-fluent/internal/schema"
)

// Migrate holds the configuration for the one-shot legacy migration run.
//
// Locales lists every content locale; DefaultLocale must be one of them.
// Fallbacks uses "code:fallback1,fallback2" entries separated by
// semicolons. Types uses "Base:Field1,Field2" entries separated by
// semicolons, with a leading "*" marking the type as versioned.
type Migrate struct {
	DBPath        string   `env:"FLUENT_DB_PATH" envDefault:"fluent.db"`
	DefaultLocale string   `env:"FLUENT_DEFAULT_LOCALE" envDefault:"en_US"`
	Locales       []string `env:"FLUENT_LOCALES" envSeparator:"," envDefault:"en_US"`
	Fallbacks     string   `env:"FLUENT_FALLBACKS"`
	Types         string   `env:"FLUENT_TYPES"`
	SchemaDir     string   `env:"FLUENT_SCHEMA_DIR"`
	DryRun        bool     `env:"FLUENT_DRY_RUN"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
// It provides a consistent fatal-exit pattern for CLI entry points.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// LocaleDefinitions converts the configured locale codes and fallback
// entries into registry definitions.
func (c Migrate) LocaleDefinitions() ([]locale.Definition, error) {
	fallbacks, err := c.parseFallbacks()
	if err != nil {
		return nil, err
	}

	defs := make([]locale.Definition, 0, len(c.Locales))
	for _, raw := range c.Locales {
		code := locale.Normalize(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		defs = append(defs, locale.Definition{
			Code:      code,
			Fallbacks: fallbacks[code],
			IsDefault: code == locale.Normalize(c.DefaultLocale),
		})
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("parse locales: no locale codes configured")
	}
	return defs, nil
}

// RecordTypes converts the configured type entries into schema record
// types. Each entry localizes the listed fields on the base table.
func (c Migrate) RecordTypes() ([]schema.RecordType, error) {
	spec := strings.TrimSpace(c.Types)
	if spec == "" {
		return nil, fmt.Errorf("parse types: FLUENT_TYPES is empty")
	}

	var types []schema.RecordType
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		base, fieldList, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("parse types: entry %q missing field list", entry)
		}
		base = strings.TrimSpace(base)
		versioned := strings.HasPrefix(base, "*")
		base = strings.TrimPrefix(base, "*")
		if base == "" {
			return nil, fmt.Errorf("parse types: entry %q missing table name", entry)
		}

		var fields []string
		for _, f := range strings.Split(fieldList, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("parse types: entry %q has no fields", entry)
		}

		types = append(types, schema.RecordType{
			BaseTable: base,
			Versioned: versioned,
			LocalizedFields: map[string][]string{
				base: fields,
			},
		})
	}
	return types, nil
}

func (c Migrate) parseFallbacks() (map[string][]string, error) {
	out := make(map[string][]string)
	spec := strings.TrimSpace(c.Fallbacks)
	if spec == "" {
		return out, nil
	}
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, chain, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("parse fallbacks: entry %q missing chain", entry)
		}
		var codes []string
		for _, f := range strings.Split(chain, ",") {
			if f = strings.TrimSpace(f); f != "" {
				codes = append(codes, locale.Normalize(f))
			}
		}
		out[locale.Normalize(strings.TrimSpace(code))] = codes
	}
	return out, nil
}
