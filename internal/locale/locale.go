// Package locale models translation locales and their fallback chains.
package locale

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

var (
	// ErrNoLocales indicates the registry was built without any locale definitions.
	ErrNoLocales = errors.New("no locales configured")
	// ErrNoDefaultLocale indicates no locale is flagged as the process default.
	ErrNoDefaultLocale = errors.New("no default locale configured")
)

// Definition describes one locale as sourced from external configuration.
type Definition struct {
	Code      string
	Title     string
	Fallbacks []string
	IsDefault bool
}

// Locale is one translation target. Immutable once loaded into a Registry.
type Locale struct {
	Code      string
	Title     string
	IsDefault bool
}

// Registry holds all configured locales and their resolved fallback chains.
// It is immutable after construction and safe for concurrent reads.
type Registry struct {
	locales     map[string]Locale
	chains      map[string][]Locale
	codes       []string
	defaultCode string
}

// NewRegistry builds a registry from locale definitions.
//
// Chains are resolved once here: each locale's chain starts with the locale
// itself, followed by its fallbacks in declaration order. Unknown fallback
// codes and duplicates are dropped, so every chain is finite and cycle-free.
func NewRegistry(definitions []Definition) (*Registry, error) {
	if len(definitions) == 0 {
		return nil, ErrNoLocales
	}

	reg := &Registry{
		locales: make(map[string]Locale, len(definitions)),
		chains:  make(map[string][]Locale, len(definitions)),
	}

	for _, def := range definitions {
		code := Normalize(def.Code)
		if code == "" {
			return nil, fmt.Errorf("locale code is required")
		}
		if _, err := language.Parse(strings.ReplaceAll(code, "_", "-")); err != nil {
			return nil, fmt.Errorf("parse locale code %q: %w", def.Code, err)
		}
		if _, exists := reg.locales[code]; exists {
			return nil, fmt.Errorf("duplicate locale %q", code)
		}
		if def.IsDefault {
			if reg.defaultCode != "" {
				return nil, fmt.Errorf("multiple default locales: %q and %q", reg.defaultCode, code)
			}
			reg.defaultCode = code
		}
		reg.locales[code] = Locale{
			Code:      code,
			Title:     strings.TrimSpace(def.Title),
			IsDefault: def.IsDefault,
		}
		reg.codes = append(reg.codes, code)
	}

	if reg.defaultCode == "" {
		return nil, ErrNoDefaultLocale
	}
	sort.Strings(reg.codes)

	for _, def := range definitions {
		code := Normalize(def.Code)
		chain := []Locale{reg.locales[code]}
		seen := map[string]bool{code: true}
		for _, fallback := range def.Fallbacks {
			fallbackCode := Normalize(fallback)
			entry, known := reg.locales[fallbackCode]
			if !known || seen[fallbackCode] {
				continue
			}
			seen[fallbackCode] = true
			chain = append(chain, entry)
		}
		reg.chains[code] = chain
	}

	return reg, nil
}

// Normalize maps a locale code onto the stored underscore form, e.g.
// "en-US" becomes "en_US".
func Normalize(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), "-", "_")
}

// Has reports whether the code identifies a configured locale.
func (r *Registry) Has(code string) bool {
	if r == nil {
		return false
	}
	_, ok := r.locales[Normalize(code)]
	return ok
}

// Get returns the locale for a code.
func (r *Registry) Get(code string) (Locale, bool) {
	if r == nil {
		return Locale{}, false
	}
	entry, ok := r.locales[Normalize(code)]
	return entry, ok
}

// Chain returns the fallback chain for a locale: the locale itself first,
// then its fallbacks in order. The result is empty for unknown codes.
func (r *Registry) Chain(code string) []Locale {
	if r == nil {
		return nil
	}
	chain, ok := r.chains[Normalize(code)]
	if !ok {
		return nil
	}
	out := make([]Locale, len(chain))
	copy(out, chain)
	return out
}

// Default returns the process-wide default locale.
func (r *Registry) Default() (Locale, error) {
	if r == nil || r.defaultCode == "" {
		return Locale{}, ErrNoDefaultLocale
	}
	return r.locales[r.defaultCode], nil
}

// All returns every configured locale sorted by code.
func (r *Registry) All() []Locale {
	if r == nil {
		return nil
	}
	out := make([]Locale, 0, len(r.codes))
	for _, code := range r.codes {
		out = append(out, r.locales[code])
	}
	return out
}
