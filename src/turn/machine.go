package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaenova/chatd/src/agent"
	"github.com/kaenova/chatd/src/aisdk"
	"github.com/kaenova/chatd/src/checkpoint"
)

var (
	// ErrMaxTurnsExceeded indicates the model/tool loop did not terminate
	// within the configured turn bound.
	ErrMaxTurnsExceeded = errors.New("maximum turns exceeded")

	// ErrNoPendingApproval indicates a resume was requested on a thread
	// that is not suspended.
	ErrNoPendingApproval = errors.New("no pending approval")
)

// State represents the state a run ended in.
type State int

const (
	StateAwaitingModel State = iota
	StateExecutingTools
	StateNeedsApproval
	StateSuspended
	StateTerminal
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateNeedsApproval:
		return "needs_approval"
	case StateSuspended:
		return "suspended"
	case StateTerminal:
		return "terminal"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MessageResolver rewrites indirect content references (chatbot:// image
// parts) into direct links just before a model call. Stored messages keep
// the indirect form.
type MessageResolver interface {
	Resolve(ctx context.Context, msgs []*aisdk.Message) []*aisdk.Message
}

// Config holds the dependencies for a Machine.
type Config struct {
	Store       checkpoint.Store
	Agent       *agent.Agent
	Gate        *Gate
	Resolver    MessageResolver
	MaxTurns    int
	TokenBudget int
	Logger      *slog.Logger
}

// Machine drives one conversational turn: model call, tool dispatch,
// optional approval suspension, looping until a final answer. Every full
// traversal appends exactly one checkpoint.
type Machine struct {
	store       checkpoint.Store
	agent       *agent.Agent
	gate        *Gate
	resolver    MessageResolver
	maxTurns    int
	tokenBudget int
	logger      *slog.Logger
}

// NewMachine creates a turn machine from the given config.
func NewMachine(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.Gate == nil {
		cfg.Gate = NewGate(nil)
	}
	return &Machine{
		store:       cfg.Store,
		agent:       cfg.Agent,
		gate:        cfg.Gate,
		resolver:    cfg.Resolver,
		maxTurns:    cfg.MaxTurns,
		tokenBudget: cfg.TokenBudget,
		logger:      cfg.Logger,
	}
}

// RunInput describes one run request.
type RunInput struct {
	ThreadID string

	// ParentCheckpointID selects where the run attaches; empty means the
	// thread head. A non-head parent forks the thread.
	ParentCheckpointID string

	// Message is the new user message, or nil when regenerating.
	Message *aisdk.Message

	// AttachAfterMessageID names the message this run attaches after.
	// Everything following it in the parent checkpoint is dropped, so
	// the run's output becomes a sibling of the old continuation rather
	// than its successor. With a nil Message this regenerates the answer
	// to the named message.
	AttachAfterMessageID string
}

// RunResult reports how a run ended.
type RunResult struct {
	State        State
	CheckpointID string
	Interrupt    *InterruptPayload
}

// Run executes a turn until it terminates, suspends for approval, or fails.
// Events are emitted to sink in order; a fatal failure emits a single error
// event and returns the error.
func (m *Machine) Run(ctx context.Context, in RunInput, sink EventSink) (*RunResult, error) {
	base, err := m.store.GetState(ctx, in.ThreadID, in.ParentCheckpointID)
	if err != nil {
		return m.fail(sink, err)
	}

	var pending []*aisdk.Message
	if in.AttachAfterMessageID != "" {
		// Re-sending the anchor under its original id makes the
		// checkpoint merge replace it and truncate the rest, forking a
		// sibling branch at that point.
		anchor := messageByID(base.Messages, in.AttachAfterMessageID)
		if anchor == nil {
			return m.fail(sink, fmt.Errorf("attach anchor %q: %w", in.AttachAfterMessageID, checkpoint.ErrNotFound))
		}
		pending = append(pending, anchor.Clone())
	}
	if in.Message != nil {
		pending = append(pending, in.Message)
	}
	return m.loop(ctx, in.ThreadID, base.ID, base.Messages, pending, sink)
}

// Resume applies an approval decision to a suspended thread and continues
// the turn. The decision payload accepts both the {approved_ids,
// rejected_ids} partition and the per-call [{id, decision, arguments}] form.
func (m *Machine) Resume(ctx context.Context, threadID string, decision json.RawMessage, sink EventSink) (*RunResult, error) {
	head, err := m.store.GetState(ctx, threadID, "")
	if err != nil {
		return m.fail(sink, err)
	}
	if _, suspended := Suspension(head.Messages, m.gate); !suspended {
		return m.fail(sink, ErrNoPendingApproval)
	}

	assistant, _ := trailingAssistant(head.Messages)
	kept, rejections := m.gate.ApplyDecision(assistant.ToolCalls, decision)

	filtered := assistant.Clone()
	filtered.ID = uuid.NewString()
	filtered.ToolCalls = kept

	pending := append([]*aisdk.Message{filtered}, rejections...)
	ckptID, err := m.store.Append(ctx, threadID, head.ID, pending)
	if err != nil {
		return m.fail(sink, fmt.Errorf("checkpoint append failed: %w", err))
	}
	sink.Emit(Event{Type: EventSnapshot})
	m.logger.Info("approval applied",
		"thread_id", threadID,
		"approved", len(kept),
		"rejected", len(rejections),
		"checkpoint_id", ckptID)

	history := checkpoint.MergeMessages(head.Messages, pending)
	results := m.executeTools(ctx, filtered.ToolCalls, sink)
	return m.loop(ctx, threadID, ckptID, history, results, sink)
}

// loop runs traversals until the turn terminates or suspends. history is
// the checkpointed message list at currentCkpt; pending holds messages not
// yet persisted, which are appended together with the next assistant
// response as one checkpoint.
func (m *Machine) loop(ctx context.Context, threadID, currentCkpt string, history, pending []*aisdk.Message, sink EventSink) (*RunResult, error) {
	for turn := 0; turn < m.maxTurns; turn++ {
		// Mirrors the store's append semantics so the model sees the same
		// state the next checkpoint will hold.
		working := checkpoint.MergeMessages(history, pending)

		prepared := Sanitize(Trim(working, m.tokenBudget), m.logger)
		if m.resolver != nil {
			prepared = m.resolver.Resolve(ctx, prepared)
		}

		assistant, err := m.callModel(ctx, prepared, sink)
		if err != nil {
			return m.fail(sink, fmt.Errorf("model call failed: %w", err))
		}

		pending = append(pending, assistant)
		ckptID, err := m.store.Append(ctx, threadID, currentCkpt, pending)
		if err != nil {
			return m.fail(sink, fmt.Errorf("checkpoint append failed: %w", err))
		}
		currentCkpt = ckptID
		history = append(working, assistant)
		pending = nil
		sink.Emit(Event{Type: EventSnapshot})

		if !assistant.HasToolCalls() {
			m.logger.Debug("turn terminal", "thread_id", threadID, "checkpoint_id", ckptID)
			return &RunResult{State: StateTerminal, CheckpointID: ckptID}, nil
		}

		if blocked, gated := m.gate.Evaluate(assistant); gated {
			payload := &InterruptPayload{Type: InterruptType, ToolCalls: blocked}
			sink.Emit(Event{Type: EventInterrupt, Payload: payload})
			m.logger.Info("turn suspended for approval",
				"thread_id", threadID,
				"checkpoint_id", ckptID,
				"pending_calls", len(blocked))
			return &RunResult{State: StateSuspended, CheckpointID: ckptID, Interrupt: payload}, nil
		}

		pending = m.executeTools(ctx, assistant.ToolCalls, sink)
	}

	return m.fail(sink, ErrMaxTurnsExceeded)
}

// callModel streams one completion, forwarding text deltas to the sink and
// returning the aggregated assistant message.
func (m *Machine) callModel(ctx context.Context, msgs []*aisdk.Message, sink EventSink) (*aisdk.Message, error) {
	stream, err := m.agent.SendMessagesStream(ctx, msgs)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	aggregator := aisdk.NewStreamAggregator()
	for {
		chunk, err := stream.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		aggregator.AddChunk(chunk)
		if delta := aisdk.TextDelta(chunk); delta != "" {
			sink.Emit(Event{Type: EventToken, MessageID: aggregator.ID, Text: delta})
		}
	}

	msg := aggregator.Message()
	if aggregator.ID != "" {
		msg.ID = aggregator.ID
	}
	return msg, nil
}

// executeTools invokes each call in request order. A failing tool becomes
// an error tool-result message so the model can react; it never aborts the
// turn.
func (m *Machine) executeTools(ctx context.Context, calls []aisdk.ToolCall, sink EventSink) []*aisdk.Message {
	var results []*aisdk.Message
	for _, call := range calls {
		results = append(results, m.executeTool(ctx, call))
	}
	return results
}

func (m *Machine) executeTool(ctx context.Context, call aisdk.ToolCall) *aisdk.Message {
	name := call.Function.Name
	m.logger.Debug("executing tool", "name", name, "id", call.ID)

	toolbox := m.agent.Toolbox
	if toolbox == nil {
		return aisdk.NewToolResultMessage(call.ID, name, "Tool execution not available: no toolbox configured")
	}
	if !toolbox.HasTool(name) {
		return aisdk.NewToolResultMessage(call.ID, name, fmt.Sprintf("Tool not found: %s", name))
	}

	start := time.Now()
	result, err := toolbox.ExecuteTool(ctx, &call)
	duration := time.Since(start)

	if err != nil {
		m.logger.Warn("tool execution failed", "name", name, "id", call.ID, "duration", duration, "error", err)
		return aisdk.NewToolResultMessage(call.ID, name, fmt.Sprintf("Error: %s", err.Error()))
	}

	content := ""
	if result != nil {
		content = string(result.Content)
	}
	// Tools report handler failures through IsError rather than a Go
	// error; mark them the same way so history serialization sees them.
	if result != nil && result.IsError {
		m.logger.Warn("tool returned error", "name", name, "id", call.ID, "duration", duration, "content", content)
		if !strings.HasPrefix(content, "Error:") {
			content = fmt.Sprintf("Error: %s", content)
		}
		return aisdk.NewToolResultMessage(call.ID, name, content)
	}

	m.logger.Debug("tool executed", "name", name, "id", call.ID, "duration", duration)
	return aisdk.NewToolResultMessage(call.ID, name, content)
}

func messageByID(msgs []*aisdk.Message, id string) *aisdk.Message {
	for _, m := range msgs {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// fail emits a terminal error event and returns the error.
func (m *Machine) fail(sink EventSink, err error) (*RunResult, error) {
	sink.Emit(Event{Type: EventError, Error: err.Error()})
	return &RunResult{State: StateFailed}, err
}
