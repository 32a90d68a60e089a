package pipeline

import (
	"errors"
	"fmt"

	"github.com/LazarevaL/agro-llm-hack/internal/entity"
	"github.com/LazarevaL/agro-llm-hack/internal/schema"
)

// Stage names one extraction pass.
type Stage string

const (
	StageInitial Stage = "initial"
	StageFinal   Stage = "final"
)

// Kind classifies one normalize-parse-validate attempt.
type Kind int

const (
	KindOK Kind = iota
	KindRefused
	KindParseFailed
	KindSchemaFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRefused:
		return "refused"
	case KindParseFailed:
		return "parse_failed"
	case KindSchemaFailed:
		return "schema_failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the typed result of one attempt. Parsed holds the decoded
// structure of a schema failure so the repair prompt can quote it.
type Outcome struct {
	Kind    Kind
	Records []entity.OperationRecord
	Parsed  any
	Err     error
}

// Field names the offending field of a schema failure, or "" otherwise.
func (o Outcome) Field() string {
	var fe *schema.FieldError
	if o.Kind == KindSchemaFailed && errors.As(o.Err, &fe) {
		return fe.Field
	}
	return ""
}

// ExtractionError reports a stage whose output stayed broken after every
// allowed repair.
type ExtractionError struct {
	Stage    Stage
	Attempts int
	Outcome  Outcome
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("pipeline: stage %s %s after %d repair(s)", e.Stage, e.Outcome.Kind, e.Attempts)
	if f := e.Outcome.Field(); f != "" {
		msg += fmt.Sprintf(" (field %q)", f)
	}
	if e.Outcome.Err != nil {
		msg += ": " + e.Outcome.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Outcome.Err
}
