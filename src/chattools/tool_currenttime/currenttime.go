package tool_currenttime

import (
	"context"
	"time"

	"github.com/kaenova/chatd/src/agent"
)

// Tool name constant
const Name = "get_current_time"

const currentTimePrompt = `Gets the current date and time.

WHEN TO USE THIS TOOL:
- Use when the user asks for the current time or date
- Useful for anchoring relative expressions like "tomorrow" or "in two hours"

HOW TO USE:
- Takes no arguments
- Returns the current date and time in RFC 3339 format with the server's timezone`

// CurrentTimeInput represents the parameters for get_current_time.
type CurrentTimeInput struct{}

// CurrentTimeOutput represents the response from get_current_time.
type CurrentTimeOutput struct {
	Time string `json:"time" description:"Current date and time in RFC 3339 format"`
}

// Tool returns the get_current_time tool definition using GenericTool
func Tool() (agent.Tool, error) {
	return agent.NewGenericTool(Name, currentTimePrompt, currentTimeHandler)
}

func currentTimeHandler(ctx context.Context, input CurrentTimeInput) (CurrentTimeOutput, error) {
	return CurrentTimeOutput{Time: time.Now().Format(time.RFC3339)}, nil
}
