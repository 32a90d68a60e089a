// Package correction walks the operator through the fields the pipeline
// left unresolved and turns the corrected records into a report.
package correction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
)

const (
	// Intro precedes the first prompt of a session.
	Intro = "При заполнении отчёта не удалось распознать некоторые значения, требуется уточнение."
	// EmptyAnswerReply asks the operator to try again.
	EmptyAnswerReply = "Пожалуйста, введите значение."
)

var (
	ErrEmptyAnswer = errors.New("correction: empty answer")
	ErrFinished    = errors.New("correction: session already finished")
)

// Pending is one unresolved field of one record.
type Pending struct {
	Entry int
	Field constants.Field
}

// Session is the correction state of one chat. Entries are owned by the
// session; callers get copies.
type Session struct {
	entries []entity.OperationRecord
	queue   []Pending
	cursor  int
	source  string
	author  string
}

// Step is the result of an answer: either the next prompt or the finished report.
type Step struct {
	Prompt string
	Report *Report
}

// Done reports whether the answer completed the session.
func (s Step) Done() bool { return s.Report != nil }

// NeedsCorrection reports whether any record holds the unresolved sentinel.
func NeedsCorrection(records []entity.OperationRecord) bool {
	return entity.ContainsUnresolved(records)
}

// NewSession queues every unresolved field, record by record in field
// order, and returns the first prompt.
func NewSession(records []entity.OperationRecord, source, author string) (*Session, string) {
	s := &Session{
		entries: append([]entity.OperationRecord(nil), records...),
		source:  source,
		author:  author,
	}
	for i := range s.entries {
		for _, f := range s.entries[i].Unresolved() {
			s.queue = append(s.queue, Pending{Entry: i, Field: f})
		}
	}
	if len(s.queue) == 0 {
		return s, ""
	}
	return s, Intro + "\n\n" + s.prompt()
}

// Current returns the field awaiting an answer.
func (s *Session) Current() (Pending, bool) {
	if s.cursor >= len(s.queue) {
		return Pending{}, false
	}
	return s.queue[s.cursor], true
}

// Remaining is the number of fields still to be answered.
func (s *Session) Remaining() int {
	return len(s.queue) - s.cursor
}

// Answer writes text into the current field and advances the cursor.
// Numeric fields keep the answer as a number when it parses as one.
func (s *Session) Answer(text string) (Step, error) {
	cur, ok := s.Current()
	if !ok {
		return Step{}, ErrFinished
	}
	value := strings.TrimSpace(text)
	if value == "" {
		return Step{}, ErrEmptyAnswer
	}
	s.entries[cur.Entry].Set(cur.Field, value)
	s.cursor++

	if s.cursor < len(s.queue) {
		return Step{Prompt: s.prompt()}, nil
	}
	report := NewReport(s.entries, s.source, s.author)
	return Step{Report: &report}, nil
}

func (s *Session) prompt() string {
	p := s.queue[s.cursor]
	return fmt.Sprintf("Запись %d. Нераспознанные данные: ```\n%s```\n\nВведите значение для поля '%s':",
		p.Entry+1, s.entries[p.Entry].Source, p.Field)
}
