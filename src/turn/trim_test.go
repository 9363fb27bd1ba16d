package turn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaenova/chatd/src/aisdk"
)

func TestTrimKeepsEverythingUnderBudget(t *testing.T) {
	msgs := []*aisdk.Message{
		aisdk.NewUserMessage("u1", "hi"),
		aisdk.NewAssistantMessage("a1", "hello", nil),
		aisdk.NewUserMessage("u2", "how are you"),
	}

	out := Trim(msgs, 0)
	assert.Equal(t, msgs, out)
}

func TestTrimDropsOldestFirst(t *testing.T) {
	long := strings.Repeat("x", 400) // ~100 tokens
	msgs := []*aisdk.Message{
		aisdk.NewUserMessage("u1", long),
		aisdk.NewAssistantMessage("a1", long, nil),
		aisdk.NewUserMessage("u2", long),
		aisdk.NewAssistantMessage("a2", long, nil),
		aisdk.NewUserMessage("u3", long),
	}

	out := Trim(msgs, 250)
	require.NotEmpty(t, out)
	assert.Equal(t, aisdk.RoleUser, out[0].Role)
	assert.Equal(t, "u3", out[len(out)-1].ID)
	assert.Less(t, len(out), len(msgs))
}

func TestTrimStartsOnUserMessage(t *testing.T) {
	long := strings.Repeat("x", 400)
	msgs := []*aisdk.Message{
		aisdk.NewUserMessage("u1", long),
		aisdk.NewAssistantMessage("a1", long, nil),
		aisdk.NewUserMessage("u2", "short"),
	}

	// Budget fits a1+u2 but the window must not start on an assistant
	// message, so a1 is dropped too.
	out := Trim(msgs, 150)
	require.Len(t, out, 1)
	assert.Equal(t, "u2", out[0].ID)
}

func TestTrimEndsOnUserOrTool(t *testing.T) {
	msgs := []*aisdk.Message{
		aisdk.NewUserMessage("u1", "hi"),
		aisdk.NewAssistantMessage("a1", "hello", nil),
	}

	out := Trim(msgs, 0)
	require.Len(t, out, 1)
	assert.Equal(t, "u1", out[0].ID)

	withTool := []*aisdk.Message{
		aisdk.NewUserMessage("u1", "hi"),
		aisdk.NewAssistantMessage("a1", "", []aisdk.ToolCall{toolCall("t1", "get_current_time")}),
		aisdk.NewToolResultMessage("t1", "get_current_time", "noon"),
	}
	out = Trim(withTool, 0)
	require.Len(t, out, 3)
	assert.Equal(t, aisdk.RoleTool, out[2].Role)
}
