package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/neuralchat/ragserver/internal/apperr"
	"github.com/neuralchat/ragserver/internal/llm"
	"github.com/neuralchat/ragserver/internal/vectorstore"
	"github.com/neuralchat/ragserver/pkg/tokenizer"
)

type State int

const (
	StateReceived State = iota
	StateEmbedding
	StateRetrieving
	StateGenerating
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "RECEIVED"
	case StateEmbedding:
		return "EMBEDDING"
	case StateRetrieving:
		return "RETRIEVING"
	case StateGenerating:
		return "GENERATING"
	case StateCompleted:
		return "COMPLETED"
	case StateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

type Mode string

const (
	ModeRAG    Mode = "rag"
	ModeDirect Mode = "direct"
)

type Query struct {
	Text     string
	Mode     Mode
	TopK     int
	MinScore *float64
}

type Answer struct {
	Text         string
	SourcesCount int
	Sources      []vectorstore.SearchResult
	Model        string
	LatencyMs    int64
}

// Run is one query's trip through the state machine. It is owned by a
// single request and never shared.
type Run struct {
	State  State
	Query  Query
	Vector []float32
	Prompt Prompt
	Answer *Answer
	Err    error
	// Trace lists every state entered, starting with RECEIVED.
	Trace   []State
	started time.Time
}

func (r *Run) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

func (r *Run) fail(err error) {
	r.Err = err
	r.enter(StateErrored)
}

type OrchestratorOptions struct {
	Model             string
	MaxTokens         int
	BudgetChars       int
	GenerationTimeout time.Duration
}

// Orchestrator drives queries through embed, retrieve, assemble and
// generate. Generation is attempted once; the gateway may fall over to
// another provider but nothing here retries it.
type Orchestrator struct {
	retriever *Retriever
	gateway   llm.Gateway
	opts      OrchestratorOptions
	now       func() time.Time
}

func NewOrchestrator(retriever *Retriever, gw llm.Gateway, opts OrchestratorOptions) *Orchestrator {
	if opts.BudgetChars <= 0 {
		opts.BudgetChars = 8000
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 45 * time.Second
	}
	return &Orchestrator{retriever: retriever, gateway: gw, opts: opts, now: time.Now}
}

// Start validates q and returns a run in RECEIVED. Invalid queries never
// enter the machine.
func (o *Orchestrator) Start(q Query) (*Run, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		if q.Mode == ModeDirect {
			return nil, apperr.Validation("Prompt cannot be empty.")
		}
		return nil, apperr.Validation("Query cannot be empty.")
	}
	switch q.Mode {
	case "":
		q.Mode = ModeRAG
	case ModeRAG, ModeDirect:
	default:
		return nil, apperr.Validation("unknown query mode %q", q.Mode)
	}

	run := &Run{Query: q, started: o.now()}
	run.enter(StateReceived)
	return run, nil
}

// Step performs exactly one transition. Steps on a terminal run do nothing.
func (o *Orchestrator) Step(ctx context.Context, run *Run) {
	switch run.State {
	case StateReceived:
		if run.Query.Mode == ModeDirect {
			run.Prompt = Prompt{Text: run.Query.Text, EstimatedTokens: tokenizer.CountMessages(run.Query.Text)}
			run.enter(StateGenerating)
			return
		}
		run.enter(StateEmbedding)

	case StateEmbedding:
		vec, err := o.retriever.EmbedQuery(ctx, run.Query.Text)
		if err != nil {
			run.fail(err)
			return
		}
		run.Vector = vec
		run.enter(StateRetrieving)

	case StateRetrieving:
		results, err := o.retriever.Search(ctx, run.Vector, RetrieveOptions{
			TopK:     run.Query.TopK,
			MinScore: run.Query.MinScore,
		})
		if err != nil {
			run.fail(err)
			return
		}
		run.Prompt = Assemble(run.Query.Text, results, o.opts.BudgetChars)
		run.enter(StateGenerating)

	case StateGenerating:
		resp, err := o.generate(ctx, run.Prompt.Text)
		if err != nil {
			run.fail(err)
			return
		}
		run.Answer = &Answer{
			Text:         resp.Content,
			SourcesCount: run.Prompt.Included,
			Sources:      run.Prompt.Sources,
			Model:        resp.Model,
			LatencyMs:    o.now().Sub(run.started).Milliseconds(),
		}
		run.enter(StateCompleted)
	}
}

// Execute runs q to a terminal state and returns its answer or error.
func (o *Orchestrator) Execute(ctx context.Context, q Query) (*Answer, error) {
	run, err := o.Start(q)
	if err != nil {
		return nil, err
	}

	for !run.State.Terminal() {
		from := run.State
		o.Step(ctx, run)
		slog.Debug("query transition", "mode", run.Query.Mode, "from", from, "to", run.State)
	}

	if run.Err != nil {
		slog.Warn("query failed",
			"mode", run.Query.Mode,
			"trace", run.Trace,
			"kind", apperr.KindOf(run.Err).String(),
			"error", run.Err,
		)
		return nil, run.Err
	}

	slog.Info("query completed",
		"mode", run.Query.Mode,
		"sources", run.Answer.SourcesCount,
		"prompt_tokens_est", run.Prompt.EstimatedTokens,
		"latency_ms", run.Answer.LatencyMs,
	)
	return run.Answer, nil
}

func (o *Orchestrator) generate(ctx context.Context, text string) (*llm.ChatResponse, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	defer cancel()

	resp, err := o.gateway.Chat(genCtx, llm.ChatRequest{
		Model:     o.opts.Model,
		Messages:  llm.UserPrompt("", text),
		MaxTokens: o.opts.MaxTokens,
	})
	switch {
	case err == nil:
		slog.Debug("generation finished",
			"provider", resp.Provider,
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded):
		return nil, apperr.GenerationTimeout(err)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, apperr.Provider(err, "language model request failed")
	}
}
