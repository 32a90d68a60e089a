// Package pipeline turns a raw report into validated operation records with
// two inference stages and a bounded repair loop.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LazarevaL/agro-llm-hack/constants"
	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/entity"
	"github.com/LazarevaL/agro-llm-hack/internal/llm"
	"github.com/LazarevaL/agro-llm-hack/internal/schema"
)

// Builder coordinates the initial and final stages for one predictor.
// Each worker owns one Builder and calls it for one job at a time.
type Builder struct {
	predictor  llm.Predictor
	prompts    *llm.Prompts
	validator  *schema.Validator
	maxRepairs int
	log        *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxRepairs bounds repair calls per stage. Negative values mean zero.
func WithMaxRepairs(n int) Option {
	return func(b *Builder) {
		if n < 0 {
			n = 0
		}
		b.maxRepairs = n
	}
}

func NewBuilder(predictor llm.Predictor, prompts *llm.Prompts, validator *schema.Validator, logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		predictor:  predictor,
		prompts:    prompts,
		validator:  validator,
		maxRepairs: 1,
		log:        logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build extracts operation records from text. A refusal, an empty first
// stage or a record missing a numeric field yields the unprocessable
// result; broken output that survives every repair and inference failures
// are returned as errors.
func (b *Builder) Build(ctx context.Context, text string) (entity.ExtractionResult, error) {
	start := time.Now()
	cid := correlationID(ctx)
	b.log.Info("pipeline.build.start", "correlation_id", cid, "text_len", len(text))

	initial, err := b.runInitial(ctx, text)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	if initial.Kind == KindRefused {
		b.log.Warn("pipeline.refused", "correlation_id", cid, "stage", StageInitial)
		return entity.UnprocessableResult(), nil
	}
	if len(initial.Records) == 0 {
		b.log.Warn("pipeline.empty", "correlation_id", cid, "stage", StageInitial)
		return entity.UnprocessableResult(), nil
	}

	final, err := b.runFinal(ctx, initial.Records)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	if final.Kind == KindRefused {
		b.log.Warn("pipeline.refused", "correlation_id", cid, "stage", StageFinal)
		return entity.UnprocessableResult(), nil
	}

	if missing := incomplete(final.Records); missing != "" {
		b.log.Warn("pipeline.rename.missing_field", "correlation_id", cid, "field", missing)
		return entity.UnprocessableResult(), nil
	}

	b.log.Info("pipeline.build.ok",
		"correlation_id", cid,
		"records", len(final.Records),
		"unresolved", entity.ContainsUnresolved(final.Records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return entity.ExtractionResult{Records: final.Records}, nil
}

func (b *Builder) runInitial(ctx context.Context, text string) (Outcome, error) {
	instr, err := b.prompts.Initial()
	if err != nil {
		return Outcome{}, err
	}
	b.log.Info("pipeline.stage.start", "stage", StageInitial, "correlation_id", correlationID(ctx))
	raw, err := b.predictor.Predict(ctx, instr, text)
	if err != nil {
		return Outcome{}, b.inferenceError(StageInitial, err)
	}
	return b.settle(ctx, StageInitial, raw)
}

// runFinal enriches each stage-one record with one call, sequentially, and
// settles the merged outputs as one document.
func (b *Builder) runFinal(ctx context.Context, records []entity.OperationRecord) (Outcome, error) {
	instr, err := b.prompts.Final()
	if err != nil {
		return Outcome{}, err
	}
	b.log.Info("pipeline.stage.start", "stage", StageFinal, "records", len(records), "correlation_id", correlationID(ctx))

	outputs := make([]string, 0, len(records))
	for i := range records {
		raw, err := b.predictor.Predict(ctx, instr, records[i].String())
		if err != nil {
			return Outcome{}, b.inferenceError(StageFinal, err)
		}
		outputs = append(outputs, raw)
	}
	merged, err := encodeIndent(outputs)
	if err != nil {
		return Outcome{}, fmt.Errorf("merge stage outputs: %w", err)
	}
	return b.settle(ctx, StageFinal, merged)
}

func (b *Builder) inferenceError(stage Stage, err error) error {
	return common.NewAppError(common.CodeInference, fmt.Sprintf("inference failed in stage %s", stage), err)
}

// incomplete returns the first numeric field missing from any record, or "".
func incomplete(records []entity.OperationRecord) constants.Field {
	for i := range records {
		for _, f := range constants.NumericFields() {
			if records[i].Measure(f) == nil {
				return f
			}
		}
	}
	return ""
}

func correlationID(ctx context.Context) string {
	return common.CorrelationIDFromContext(ctx)
}
