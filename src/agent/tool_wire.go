package agent

import (
	"github.com/kaenova/chatd/src/aisdk"
)

// ChatTools renders toolbox entries in the chat completion wire shape.
func ChatTools(tools []Tool) []*aisdk.ChatTool {
	out := make([]*aisdk.ChatTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, &aisdk.ChatTool{
			Type: tool.GetType(),
			Function: aisdk.ChatToolFunction{
				Name:        tool.GetName(),
				Description: tool.GetDescription(),
				Parameters:  tool.GetParameters(),
			},
		})
	}
	return out
}
