package llm

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/schema"
)

//go:embed prompts/*.md
var promptFS embed.FS

const (
	PromptSystem    = "0. system_prompt.md"
	PromptInitial   = "1. initial.md"
	PromptFinal     = "2. final.md"
	PromptFixFields = "3. validation_fields.md"
	PromptFixJSON   = "4. validation_json.md"
)

// Prompts renders the instruction templates against the allowed entities.
type Prompts struct {
	tmpl     *template.Template
	entities *schema.Entities
	now      func() time.Time
}

type promptData struct {
	Year       int
	Date       string
	Types      string
	Cultures   string
	Divisions  string
	Report     string
	Unresolved string
	Harvest    string
}

func NewPrompts(entities *schema.Entities) (*Prompts, error) {
	tmpl, err := template.New("prompts").ParseFS(promptFS, "prompts/*.md")
	if err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	return &Prompts{tmpl: tmpl, entities: entities, now: time.Now}, nil
}

// WithClock returns a copy of p that reads today's date from now.
func (p *Prompts) WithClock(now func() time.Time) *Prompts {
	cp := *p
	cp.now = now
	return &cp
}

// System is the system prompt shared by every call of a predictor.
func (p *Prompts) System() (string, error) {
	return p.render(PromptSystem, "")
}

// Initial is the stage-one instruction: split the report into operations
// with date, operation type and culture.
func (p *Prompts) Initial() (string, error) {
	return p.render(PromptInitial, "")
}

// Final is the stage-two instruction: division and the area and yield figures for one record.
func (p *Prompts) Final() (string, error) {
	return p.render(PromptFinal, "")
}

// FixFields asks the model to repair vocabulary or type errors in report.
func (p *Prompts) FixFields(report string) (string, error) {
	return p.render(PromptFixFields, report)
}

// FixJSON asks the model to repair the JSON syntax of report.
func (p *Prompts) FixJSON(report string) (string, error) {
	return p.render(PromptFixJSON, report)
}

func (p *Prompts) render(name, report string) (string, error) {
	today := p.now()
	data := promptData{
		Year:       today.Year(),
		Date:       today.Format(constants.DateLayout),
		Types:      listJSON(p.entities.Types),
		Cultures:   listJSON(p.entities.Cultures),
		Divisions:  listJSON(p.entities.DivisionsWithSubdivisions()),
		Report:     report,
		Unresolved: constants.Unresolved,
		Harvest:    constants.HarvestOperation,
	}
	var b strings.Builder
	if err := p.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

func listJSON(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, err := marshalNoEscape(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func marshalNoEscape(v any) ([]byte, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(b.String(), "\n")), nil
}
