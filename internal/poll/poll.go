// Package poll implements the response-readiness engine: it drives
// repeated entry-listing calls against a wall-clock deadline and uses
// the classify package to decide when a qualifying response has
// arrived, producing the role and hand-off metadata the caller acts on.
package poll

import (
	"context"
	"log/slog"
	"time"

	"github.com/parleygate/parley/internal/classify"
	"github.com/parleygate/parley/internal/messaging"
)

// Lister provides one page of a conversation's entry stream. Satisfied
// by messaging.Client; defined here so the engine can be tested
// against scripted batches.
type Lister interface {
	ListEntries(ctx context.Context, token, conversationID, continuationToken string) (messaging.EntryPage, error)
}

// Instruction strings returned in RoleInfo. Each one names the
// caller's deterministic next action.
const (
	// InstructionHandOff: a human agent has responded; show the
	// embedded live-chat surface instead of narrating replies.
	InstructionHandOff = "A live agent has joined the conversation. Open the live chat surface (chat_live_agent_surface) and stop narrating replies."

	// InstructionRecite: a bot response arrived; repeat it verbatim.
	InstructionRecite = "Recite the most recent reply to the user verbatim."

	// InstructionKeepPolling: nothing qualifying yet; list again.
	InstructionKeepPolling = "No reply yet. Call chat_list_entries again to keep waiting."

	// InstructionEnded: the conversation carries a termination signal.
	InstructionEnded = "The conversation has ended. Acknowledge the end of the chat to the user."
)

// RoleInfo is the decision metadata attached to every listing result.
type RoleInfo struct {
	MostRecentSenderRole string `json:"mostRecentSenderRole"`
	MostRecentSenderName string `json:"mostRecentSenderName,omitempty"`
	IsLiveAgent          bool   `json:"isLiveAgent"`
	ConversationEnded    bool   `json:"conversationEnded"`
	Instruction          string `json:"instruction"`
}

// Result is the outcome of one Await call.
type Result struct {
	// Entries is the verbatim-reply view: non-noise bot and agent
	// messages, newest first.
	Entries []messaging.ConversationEntry `json:"entries"`

	// RawEntries is the unfiltered batch, newest first, for callers
	// that need the full stream.
	RawEntries []messaging.ConversationEntry `json:"rawEntries"`

	// ContinuationToken is the pagination cursor from the last page
	// fetched.
	ContinuationToken string `json:"continuationToken,omitempty"`

	RoleInfo RoleInfo `json:"roleInfo"`
}

// Config tunes an Engine.
type Config struct {
	// Deadline is the wall-clock bound on one polling Await call.
	Deadline time.Duration

	// Interval is the fixed delay between listing attempts.
	Interval time.Duration

	// Noise is the classification table shared with every filter site.
	Noise classify.NoiseTable

	Logger *slog.Logger
}

// Engine is the response-readiness engine. Engines are stateless
// between calls; any number of Await calls for different conversations
// may run concurrently.
type Engine struct {
	lister   Lister
	deadline time.Duration
	interval time.Duration
	noise    classify.NoiseTable
	logger   *slog.Logger
}

// Defaults applied when Config fields are zero.
const (
	DefaultDeadline = 25 * time.Second
	DefaultInterval = 500 * time.Millisecond
)

// NewEngine creates a response-readiness engine over the given lister.
func NewEngine(lister Lister, cfg Config) *Engine {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		lister:   lister,
		deadline: cfg.Deadline,
		interval: cfg.Interval,
		noise:    cfg.Noise,
		logger:   cfg.Logger,
	}
}

// Await lists conversation entries until a qualifying response
// appears, the conversation ends, or the deadline elapses.
//
// With pollingEnabled false, exactly one listing call is issued and
// its classification returned regardless of whether a qualifying
// response exists, the snapshot mode used by surfaces that refresh on
// their own cadence.
//
// With pollingEnabled true, listing calls repeat at the configured
// interval. After each call the globally most recent Message entry is
// inspected across all roles: if it is a non-noise bot or agent
// message the loop stops successfully; if it is the end user's own
// turn (no reply yet) or absent, the loop waits and retries. When the
// deadline elapses first, the last batch is returned with RoleInfo
// reflecting that no qualifying response was found.
//
// Transport errors from individual listing calls are never retried
// here; they propagate immediately. Only the "no qualifying message
// yet" condition is retried.
func (e *Engine) Await(ctx context.Context, token, conversationID, continuationToken string, pollingEnabled bool) (Result, error) {
	deadline := time.Now().Add(e.deadline)
	attempts := 0

	for {
		page, err := e.lister.ListEntries(ctx, token, conversationID, continuationToken)
		if err != nil {
			return Result{}, err
		}
		attempts++

		batch := e.noise.Evaluate(page.Entries)
		res := e.buildResult(page, batch)

		switch {
		case batch.Ended:
			e.logger.Debug("conversation ended during listing",
				"conversation_id", conversationID,
				"attempts", attempts,
			)
			return res, nil
		case batch.Qualifying:
			e.logger.Debug("qualifying response found",
				"conversation_id", conversationID,
				"role", batch.Role,
				"live_agent", batch.IsLiveAgent,
				"attempts", attempts,
			)
			return res, nil
		case !pollingEnabled:
			return res, nil
		case !time.Now().Before(deadline):
			e.logger.Debug("poll deadline elapsed without a qualifying response",
				"conversation_id", conversationID,
				"attempts", attempts,
			)
			return res, nil
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(e.interval):
		}
	}
}

// buildResult assembles the caller-facing result from one batch.
func (e *Engine) buildResult(page messaging.EntryPage, batch classify.BatchResult) Result {
	info := RoleInfo{
		MostRecentSenderRole: string(batch.Role),
		MostRecentSenderName: batch.SenderName,
		IsLiveAgent:          batch.IsLiveAgent,
		ConversationEnded:    batch.Ended,
	}

	switch {
	case batch.Ended:
		info.Instruction = InstructionEnded
	case batch.IsLiveAgent:
		info.Instruction = InstructionHandOff
	case batch.Qualifying:
		info.Instruction = InstructionRecite
	default:
		info.Instruction = InstructionKeepPolling
	}

	return Result{
		Entries:           e.noise.FilterVerbatim(page.Entries),
		RawEntries:        classify.SortNewestFirst(page.Entries),
		ContinuationToken: page.ContinuationToken,
		RoleInfo:          info,
	}
}
