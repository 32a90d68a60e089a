package schema

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/LazarevaL/agro-llm-hack/constants"
)

// Vocabulary names a controlled-vocabulary field.
type Vocabulary string

const (
	VocabOperation Vocabulary = "type"
	VocabCulture   Vocabulary = "culture"
	VocabDivision  Vocabulary = "division"
)

// Entities is the allowed-value file: operation types, cultures, divisions
// and subdivisions. It is loaded once and never modified afterwards.
type Entities struct {
	Types        []string `yaml:"type" json:"type"`
	Cultures     []string `yaml:"culture" json:"culture"`
	Divisions    []string `yaml:"division" json:"division"`
	Subdivisions []string `yaml:"subdivision" json:"subdivision"`
}

// LoadEntities reads a YAML (or JSON) allowed-entities file.
func LoadEntities(path string) (*Entities, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	return ParseEntities(b)
}

// ParseEntities decodes an allowed-entities document.
func ParseEntities(b []byte) (*Entities, error) {
	var e Entities
	if err := yaml.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	if len(e.Types) == 0 {
		return nil, fmt.Errorf("decode entities: %q list is empty", VocabOperation)
	}
	return &e, nil
}

// Allowed returns a fresh slice of the values accepted for vocab, the
// unresolved sentinel included. Divisions also accept subdivisions.
func (e *Entities) Allowed(vocab Vocabulary) []string {
	var base []string
	switch vocab {
	case VocabOperation:
		base = e.Types
	case VocabCulture:
		base = e.Cultures
	case VocabDivision:
		base = slices.Concat(e.Divisions, e.Subdivisions)
	}
	out := make([]string, 0, len(base)+1)
	out = append(out, base...)
	if !slices.Contains(out, constants.Unresolved) {
		out = append(out, constants.Unresolved)
	}
	return out
}

// Allows reports whether value is acceptable for vocab.
func (e *Entities) Allows(vocab Vocabulary, value string) bool {
	if value == constants.Unresolved {
		return true
	}
	switch vocab {
	case VocabOperation:
		return slices.Contains(e.Types, value)
	case VocabCulture:
		return slices.Contains(e.Cultures, value)
	case VocabDivision:
		return slices.Contains(e.Divisions, value) || slices.Contains(e.Subdivisions, value)
	}
	return false
}

// DivisionsWithSubdivisions is the division list offered to the model in prompts.
func (e *Entities) DivisionsWithSubdivisions() []string {
	return slices.Concat(e.Divisions, e.Subdivisions)
}
