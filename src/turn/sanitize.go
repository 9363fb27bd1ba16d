package turn

import (
	"log/slog"

	"github.com/kaenova/chatd/src/aisdk"
)

// Sanitize repairs a message list so that every assistant tool call is
// answered by a contiguous run of tool results before the list is sent to a
// model. Assistant messages with unanswered calls are dropped along with
// their partial answers, and orphaned tool messages are dropped. Sanitizing
// an already-clean list returns it unchanged, so the pass is idempotent.
func Sanitize(msgs []*aisdk.Message, logger *slog.Logger) []*aisdk.Message {
	if logger == nil {
		logger = slog.Default()
	}
	if len(msgs) == 0 {
		return msgs
	}

	out := make([]*aisdk.Message, 0, len(msgs))
	i := 0
	for i < len(msgs) {
		m := msgs[i]

		switch {
		case m.Role == aisdk.RoleAssistant && m.HasToolCalls():
			wanted := m.ToolCallIDs()
			answered := make(map[string]struct{}, len(wanted))
			var results []*aisdk.Message

			// Consume the contiguous run of tool messages that follows.
			// Results for ids this assistant never requested are dropped.
			j := i + 1
			for j < len(msgs) && msgs[j].Role == aisdk.RoleTool {
				tm := msgs[j]
				if _, ok := wanted[tm.ToolCallID]; ok {
					if _, dup := answered[tm.ToolCallID]; !dup {
						answered[tm.ToolCallID] = struct{}{}
						results = append(results, tm)
					}
				}
				j++
			}

			if len(answered) == len(wanted) {
				out = append(out, m)
				out = append(out, results...)
			} else {
				logger.Warn("dropping incomplete tool call sequence",
					"message_id", m.ID,
					"requested", len(wanted),
					"answered", len(answered))
			}
			i = j

		case m.Role == aisdk.RoleTool:
			logger.Warn("dropping orphaned tool message", "tool_call_id", m.ToolCallID)
			i++

		default:
			out = append(out, m)
			i++
		}
	}
	return out
}
