package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kaenova/chatd/src/aisdk"
)

// Agent binds a model client, a system prompt, and a toolbox into a single
// send surface. It is stateless: callers own the message list.
type Agent struct {
	SystemPrompt string
	Model        aisdk.ModelClient
	Toolbox      *DefaultToolbox
	Logger       *slog.Logger
}

// buildRequest assembles the chat completion request: system prompt first,
// then the caller's messages, with the toolbox exposed as chat tools.
func (a *Agent) buildRequest(messages []*aisdk.Message) *aisdk.ChatCompletionRequest {
	all := messages
	if a.SystemPrompt != "" {
		all = append([]*aisdk.Message{aisdk.NewSystemMessage(a.SystemPrompt)}, messages...)
	}

	var chatTools []*aisdk.ChatTool
	if a.Toolbox != nil {
		chatTools = ChatTools(a.Toolbox.Tools())
	}

	return &aisdk.ChatCompletionRequest{
		Messages: all,
		Tools:    chatTools,
	}
}

// SendMessages performs a blocking completion over the given message list.
func (a *Agent) SendMessages(ctx context.Context, messages []*aisdk.Message) (*aisdk.Message, error) {
	response, err := a.Model.CreateChatCompletion(ctx, a.buildRequest(messages))
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	msg := response.Choices[0].Message
	if msg.ID == "" {
		msg.ID = response.ID
	}
	msg.Role = aisdk.RoleAssistant
	return &msg, nil
}

// SendMessagesStream performs a streaming completion over the given message list.
func (a *Agent) SendMessagesStream(ctx context.Context, messages []*aisdk.Message) (aisdk.StreamInterface, error) {
	req := a.buildRequest(messages)
	req.Stream = true
	return a.Model.CreateChatCompletionStream(ctx, req)
}
