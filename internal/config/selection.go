package config

import (
	"fmt"
	"slices"
	"sync"
)

// Level is a CEFR proficiency level with a short description.
type Level struct {
	Code        string
	Description string
}

var (
	TargetLanguages = []string{"English", "Spanish", "French", "German", "Italian", "Turkish", "Japanese"}
	NativeLanguages = []string{"English", "Turkish", "Spanish", "French", "German"}

	Levels = []Level{
		{"A1", "Beginner - Very simple words and sentences"},
		{"A2", "Elementary - Simple daily conversations"},
		{"B1", "Intermediate - Daily life and travel topics"},
		{"B2", "Upper Intermediate - Complex texts and discussions"},
		{"C1", "Advanced - Academic and professional language"},
		{"C2", "Expert - Native language level"},
	}
)

// Selection fields
const (
	FieldTarget = "target"
	FieldLevel  = "level"
	FieldNative = "native"
)

// Selection is the configuration triple sent with every request.
type Selection struct {
	TargetLanguage string `yaml:"target_language"`
	Level          string `yaml:"level"`
	NativeLanguage string `yaml:"native_language"`
}

// DefaultSelection returns Spanish at A1 for an English speaker.
func DefaultSelection() Selection {
	return Selection{TargetLanguage: "Spanish", Level: "A1", NativeLanguage: "English"}
}

// LevelCodes returns the level codes in ascending order.
func LevelCodes() []string {
	codes := make([]string, len(Levels))
	for i, l := range Levels {
		codes[i] = l.Code
	}
	return codes
}

// Options returns the allowed values for a selection field.
func Options(field string) ([]string, error) {
	switch field {
	case FieldTarget:
		return TargetLanguages, nil
	case FieldLevel:
		return LevelCodes(), nil
	case FieldNative:
		return NativeLanguages, nil
	default:
		return nil, fmt.Errorf("unknown setting %q (target|level|native)", field)
	}
}

// Validate reports the first field whose value is not in its option list.
func (s Selection) Validate() error {
	checks := []struct {
		field, value string
	}{
		{FieldTarget, s.TargetLanguage},
		{FieldLevel, s.Level},
		{FieldNative, s.NativeLanguage},
	}
	for _, c := range checks {
		opts, _ := Options(c.field)
		if !slices.Contains(opts, c.value) {
			return fmt.Errorf("invalid %s %q, expected one of %v", c.field, c.value, opts)
		}
	}
	return nil
}

// With returns a copy of s with one field replaced.
func (s Selection) With(field, value string) (Selection, error) {
	opts, err := Options(field)
	if err != nil {
		return s, err
	}
	if !slices.Contains(opts, value) {
		return s, fmt.Errorf("invalid %s %q, expected one of %v", field, value, opts)
	}
	switch field {
	case FieldTarget:
		s.TargetLanguage = value
	case FieldLevel:
		s.Level = value
	case FieldNative:
		s.NativeLanguage = value
	}
	return s, nil
}

// Next returns a copy of s with field advanced to the following option, wrapping around.
func (s Selection) Next(field string) (Selection, error) {
	opts, err := Options(field)
	if err != nil {
		return s, err
	}
	current := map[string]string{
		FieldTarget: s.TargetLanguage,
		FieldLevel:  s.Level,
		FieldNative: s.NativeLanguage,
	}[field]
	i := slices.Index(opts, current)
	return s.With(field, opts[(i+1)%len(opts)])
}

// Settings is the live, shared copy of the selection. Front ends write it and the
// chat client reads it at call time.
type Settings struct {
	mu        sync.RWMutex
	sel       Selection
	listeners []func(Selection)
}

// NewSettings creates a Settings holder seeded with sel.
func NewSettings(sel Selection) *Settings {
	return &Settings{sel: sel}
}

// Get returns the current selection.
func (s *Settings) Get() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sel
}

// Set changes one field after checking it against the option list.
func (s *Settings) Set(field, value string) error {
	s.mu.Lock()
	next, err := s.sel.With(field, value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.sel = next
	s.mu.Unlock()
	s.notify(next)
	return nil
}

// Cycle advances one field to its next option and returns the new selection.
func (s *Settings) Cycle(field string) (Selection, error) {
	s.mu.Lock()
	next, err := s.sel.Next(field)
	if err != nil {
		cur := s.sel
		s.mu.Unlock()
		return cur, err
	}
	s.sel = next
	s.mu.Unlock()
	s.notify(next)
	return next, nil
}

// Replace swaps the whole selection after validating it.
func (s *Settings) Replace(sel Selection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sel = sel
	s.mu.Unlock()
	s.notify(sel)
	return nil
}

// OnChange registers fn to be called after every successful change.
func (s *Settings) OnChange(fn func(Selection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Settings) notify(sel Selection) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(sel)
	}
}
