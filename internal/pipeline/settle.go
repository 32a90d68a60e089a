package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/llm"
)

// Layouts accepted as ISO-8601 dates before reformatting to constants.DateLayout.
var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// settle runs the normalize-parse-validate sequence on raw and repairs the
// output at most maxRepairs times.
func (b *Builder) settle(ctx context.Context, stage Stage, raw string) (Outcome, error) {
	out := b.attempt(raw, true)
	for repairs := 0; ; repairs++ {
		switch out.Kind {
		case KindOK, KindRefused:
			return out, nil
		}
		if repairs >= b.maxRepairs {
			return out, &ExtractionError{Stage: stage, Attempts: repairs, Outcome: out}
		}

		b.log.Warn("pipeline.repair",
			"stage", stage,
			"outcome", out.Kind.String(),
			"field", out.Field(),
			"attempt", repairs+1,
			"error", out.Err,
			"correlation_id", correlationID(ctx),
		)
		fixed, err := b.repair(ctx, out, raw)
		if err != nil {
			return out, err
		}
		raw = fixed
		out = b.attempt(raw, false)
	}
}

func (b *Builder) repair(ctx context.Context, failed Outcome, raw string) (string, error) {
	switch failed.Kind {
	case KindParseFailed:
		instr, err := b.prompts.FixJSON(raw)
		if err != nil {
			return "", err
		}
		return b.predictor.Predict(ctx, instr, raw)
	case KindSchemaFailed:
		report, err := encode(failed.Parsed)
		if err != nil {
			return "", fmt.Errorf("encode failed structure: %w", err)
		}
		instr, err := b.prompts.FixFields(report)
		if err != nil {
			return "", err
		}
		return b.predictor.Predict(ctx, instr, "")
	}
	return "", fmt.Errorf("pipeline: nothing to repair for outcome %s", failed.Kind)
}

// attempt normalizes, parses, reformats dates and validates one model output.
func (b *Builder) attempt(raw string, checkRefusal bool) Outcome {
	cleaned := llm.CleanOutput(raw)
	if checkRefusal && llm.IsRefusal(cleaned) {
		return Outcome{Kind: KindRefused}
	}
	parsed, err := decode(cleaned)
	if err != nil {
		return Outcome{Kind: KindParseFailed, Err: err}
	}
	reformatDates(parsed)
	records, err := b.validator.Validate(parsed)
	if err != nil {
		return Outcome{Kind: KindSchemaFailed, Parsed: parsed, Err: err}
	}
	return Outcome{Kind: KindOK, Records: records}
}

// decode parses cleaned output. String elements of a top-level array are
// cleaned and parsed again, and nested arrays (one per stage-two call) are
// spliced into the top level.
func decode(cleaned string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}
	list, ok := v.([]any)
	if !ok {
		return v, nil
	}
	flat := make([]any, 0, len(list))
	for i, item := range list {
		if s, isString := item.(string); isString {
			var inner any
			if err := json.Unmarshal([]byte(llm.CleanOutput(s)), &inner); err != nil {
				return nil, fmt.Errorf("parse element %d: %w", i, err)
			}
			item = inner
		}
		if nested, isList := item.([]any); isList {
			flat = append(flat, nested...)
			continue
		}
		flat = append(flat, item)
	}
	return flat, nil
}

func reformatDates(v any) {
	list, ok := v.([]any)
	if !ok {
		return
	}
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s, ok := obj[string(constants.FieldDate)].(string)
		if !ok {
			continue
		}
		if d, ok := parseISODate(s); ok {
			obj[string(constants.FieldDate)] = d.Format(constants.DateLayout)
		}
	}
}

func parseISODate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func encodeIndent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
