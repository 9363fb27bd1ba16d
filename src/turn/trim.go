package turn

import (
	"github.com/kaenova/chatd/src/aisdk"
)

// DefaultTokenBudget bounds the approximate token count of the message list
// sent to the model.
const DefaultTokenBudget = 120_000

// perMessageOverhead approximates the framing cost of a chat message.
const perMessageOverhead = 4

// Trim keeps the newest messages that fit within maxTokens, using an
// approximate character-based token count. The kept window always starts on
// a user message and ends on a user or tool message so tool pairing
// survives trimming.
func Trim(msgs []*aisdk.Message, maxTokens int) []*aisdk.Message {
	if maxTokens <= 0 {
		maxTokens = DefaultTokenBudget
	}
	if len(msgs) == 0 {
		return msgs
	}

	start := len(msgs)
	total := 0
	for start > 0 {
		cost := estimateTokens(msgs[start-1])
		if total+cost > maxTokens {
			break
		}
		total += cost
		start--
	}

	for start < len(msgs) && msgs[start].Role != aisdk.RoleUser {
		start++
	}

	end := len(msgs)
	for end > start {
		role := msgs[end-1].Role
		if role == aisdk.RoleUser || role == aisdk.RoleTool {
			break
		}
		end--
	}

	return msgs[start:end]
}

// estimateTokens approximates a message's token cost at four characters per
// token, matching the rough heuristic used by chat completion providers.
func estimateTokens(m *aisdk.Message) int {
	n := perMessageOverhead
	for _, p := range m.Parts {
		switch p.Type {
		case aisdk.PartTypeText:
			n += len(p.Text) / 4
		case aisdk.PartTypeImage:
			n += len(p.Image) / 4
		}
	}
	for _, tc := range m.ToolCalls {
		n += len(tc.Function.Name)/4 + len(tc.Function.Arguments)/4
	}
	return n
}
