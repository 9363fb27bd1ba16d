package turn

import (
	"bytes"
	"encoding/json"

	"github.com/kaenova/chatd/src/aisdk"
)

// RejectionContent is the tool-result text recorded for a rejected call.
const RejectionContent = "Tool call rejected by user."

// InterruptType identifies the approval interrupt payload on the wire.
const InterruptType = "tool_approval_required"

// PendingToolCall is one tool call awaiting a human decision.
type PendingToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// InterruptPayload is sent to the client when a turn suspends for approval.
type InterruptPayload struct {
	Type      string            `json:"type"`
	ToolCalls []PendingToolCall `json:"tool_calls"`
}

// Gate decides which tool calls need human approval before execution.
type Gate struct {
	sensitive map[string]struct{}
}

// NewGate creates a gate over the given sensitive tool names.
func NewGate(names []string) *Gate {
	g := &Gate{sensitive: make(map[string]struct{}, len(names))}
	for _, n := range names {
		g.sensitive[n] = struct{}{}
	}
	return g
}

// IsSensitive reports whether the named tool requires approval.
func (g *Gate) IsSensitive(name string) bool {
	_, ok := g.sensitive[name]
	return ok
}

// Evaluate returns the calls in the assistant message that require approval.
// The second return is true when at least one call is sensitive, which gates
// the whole batch.
func (g *Gate) Evaluate(msg *aisdk.Message) ([]PendingToolCall, bool) {
	if msg == nil || msg.Role != aisdk.RoleAssistant {
		return nil, false
	}
	var blocked []PendingToolCall
	for _, tc := range msg.ToolCalls {
		if g.IsSensitive(tc.Function.Name) {
			blocked = append(blocked, PendingToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return blocked, len(blocked) > 0
}

// decisionEntry is one element of the rich per-call decision schema.
type decisionEntry struct {
	ID        string          `json:"id"`
	Decision  string          `json:"decision"`
	Arguments json.RawMessage `json:"arguments"`
}

// legacyDecision is the simple id-partition decision schema.
type legacyDecision struct {
	ApprovedIDs []string `json:"approved_ids"`
	RejectedIDs []string `json:"rejected_ids"`
}

// parseDecision normalizes either decision schema into an id → argument
// override map for approved calls. A nil override means the original
// arguments stand. Malformed entries are skipped, which leaves their calls
// rejected by omission.
func parseDecision(raw json.RawMessage) map[string]json.RawMessage {
	approved := make(map[string]json.RawMessage)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return approved
	}

	if trimmed[0] == '[' {
		var entries []decisionEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return approved
		}
		for _, e := range entries {
			if e.ID == "" || e.Decision != "approved" {
				continue
			}
			if isJSONObject(e.Arguments) {
				approved[e.ID] = e.Arguments
			} else {
				approved[e.ID] = nil
			}
		}
		return approved
	}

	var legacy legacyDecision
	if err := json.Unmarshal(trimmed, &legacy); err != nil {
		return approved
	}
	for _, id := range legacy.ApprovedIDs {
		if id != "" {
			approved[id] = nil
		}
	}
	return approved
}

// ApplyDecision filters an assistant message's tool calls against a decision
// payload. Non-sensitive calls are always kept unchanged. Sensitive calls
// are kept only when approved, with a valid argument override replacing the
// originals; every other sensitive call is dropped and answered by a
// synthetic rejection tool-result message.
func (g *Gate) ApplyDecision(calls []aisdk.ToolCall, decision json.RawMessage) ([]aisdk.ToolCall, []*aisdk.Message) {
	approved := parseDecision(decision)

	var kept []aisdk.ToolCall
	var rejections []*aisdk.Message
	for _, tc := range calls {
		if !g.IsSensitive(tc.Function.Name) {
			kept = append(kept, tc)
			continue
		}
		override, ok := approved[tc.ID]
		if !ok {
			rejections = append(rejections, aisdk.NewToolResultMessage(tc.ID, tc.Function.Name, RejectionContent))
			continue
		}
		if override != nil {
			tc.Function.Arguments = override
		}
		kept = append(kept, tc)
	}
	return kept, rejections
}

// isJSONObject reports whether raw is a well-formed JSON object.
func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

// Suspension inspects a checkpoint's trailing messages for sensitive tool
// calls that have no recorded result. It returns the interrupt payload for
// the unresolved calls, or false when the state is not suspended. Suspension
// is always derived from message state, never stored.
func Suspension(msgs []*aisdk.Message, gate *Gate) (*InterruptPayload, bool) {
	assistant, resolved := trailingAssistant(msgs)
	if assistant == nil {
		return nil, false
	}

	var pending []PendingToolCall
	for _, tc := range assistant.ToolCalls {
		if _, done := resolved[tc.ID]; done {
			continue
		}
		if gate.IsSensitive(tc.Function.Name) {
			pending = append(pending, PendingToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	if len(pending) == 0 {
		return nil, false
	}
	return &InterruptPayload{Type: InterruptType, ToolCalls: pending}, true
}

// trailingAssistant walks back over trailing tool messages and returns the
// assistant message they answer, along with the set of answered call ids.
func trailingAssistant(msgs []*aisdk.Message) (*aisdk.Message, map[string]struct{}) {
	resolved := make(map[string]struct{})
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role == aisdk.RoleTool {
			resolved[m.ToolCallID] = struct{}{}
			continue
		}
		if m.Role == aisdk.RoleAssistant && m.HasToolCalls() {
			return m, resolved
		}
		return nil, nil
	}
	return nil, nil
}
