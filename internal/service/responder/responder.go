// Package responder implements the reply pipeline run for every new chat log
// entry: gate, history read, prompt assembly, generation and write-back.
//
// Steps run strictly in sequence inside one invocation. Invocations share no
// mutable state, so any number may run concurrently.
package responder

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
	"github.com/zhouzirui/z-mentor/backend/internal/service/ai"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
)

// Result is the terminal state of one invocation.
type Result string

const (
	// ResultSkipped means the gate rejected the entry.
	ResultSkipped Result = "skipped"
	// ResultReplied means generated text was written.
	ResultReplied Result = "replied"
	// ResultFallback means the fallback sentence was written.
	ResultFallback Result = "fallback"
	// ResultGeneratorFailed means the provider rejected the call and nothing was written.
	ResultGeneratorFailed Result = "generator_failed"
	// ResultWriteFailed means the reply could not be appended.
	ResultWriteFailed Result = "write_failed"
	// ResultAborted means an unexpected fault stopped the invocation; Handle
	// returns the cause as an error.
	ResultAborted Result = "aborted"
)

// Generator produces reply text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (ai.Reply, error)
}

// Responder wires the pipeline steps together.
type Responder struct {
	history   *HistoryReader
	generator Generator
	writer    *Writer
	logger    *zap.Logger
	metrics   *observe.Metrics
	tracer    trace.Tracer
}

// New builds a Responder reading from and writing to store. logger and
// metrics may be nil.
func New(store chatlogservice.Store, generator Generator, cfg config.ResponderConfig, logger *zap.Logger, metrics *observe.Metrics) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		history:   NewHistoryReader(store, cfg.HistoryLimit),
		generator: generator,
		writer:    NewWriter(store),
		logger:    logger.Named("responder"),
		metrics:   metrics,
		tracer:    otel.Tracer("github.com/zhouzirui/z-mentor/backend/responder"),
	}
}

// Handle runs the pipeline for one triggering entry. It never panics.
//
// Absorbed failures (generator rejection, write failure) are logged and
// reported through the Result with a nil error. History read failures and
// unexpected faults are logged here and return ResultAborted with the cause.
func (r *Responder) Handle(ctx context.Context, entry *chatlog.Entry) (result Result, err error) {
	if !ShouldRespond(entry) {
		r.metrics.RecordInvocation(ctx, string(ResultSkipped))
		return ResultSkipped, nil
	}

	ctx, span := r.tracer.Start(ctx, "responder.Handle", trace.WithAttributes(attribute.String("entry.id", entry.ID)))
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reply pipeline panicked", zap.String("entryID", entry.ID), zap.Any("panic", rec), zap.Stack("stack"))
			result, err = ResultAborted, fmt.Errorf("reply pipeline panicked: %v", rec)
		} else if err != nil {
			r.logger.Error("reply pipeline aborted", zap.String("entryID", entry.ID), zap.Error(err))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("responder.result", string(result)))
		span.End()
		r.metrics.RecordInvocation(ctx, string(result))
	}()

	return r.run(ctx, entry)
}

func (r *Responder) run(ctx context.Context, entry *chatlog.Entry) (Result, error) {
	lines, err := r.history.Read(ctx)
	if err != nil {
		return ResultAborted, err
	}

	prompt := ai.BuildPrompt(lines, entry.Text)

	reply, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return ResultAborted, fmt.Errorf("generate reply: %w", err)
	}
	if reply.Failed() {
		return ResultGeneratorFailed, nil
	}

	stored, err := r.writer.Write(ctx, reply.Text)
	if err != nil {
		r.logger.Error("failed to write reply", zap.String("entryID", entry.ID), zap.Error(err))
		return ResultWriteFailed, nil
	}

	result := ResultReplied
	if reply.Outcome == ai.OutcomeFallback {
		result = ResultFallback
	}
	r.logger.Info("reply written",
		zap.String("entryID", entry.ID),
		zap.String("replyID", stored.ID),
		zap.Int("historyLines", len(lines)),
		zap.Int("length", len(reply.Text)),
		zap.String("outcome", string(reply.Outcome)),
	)
	return result, nil
}
