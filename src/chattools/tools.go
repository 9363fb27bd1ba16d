package chattools

// Barrel-style re-exports for the chat tools, mirroring the per-tool package
// layout. The server composes its toolbox from these.

import (
	"context"

	"github.com/kaenova/chatd/src/agent"
	"github.com/kaenova/chatd/src/chattools/tool_currenttime"
	"github.com/kaenova/chatd/src/chattools/tool_generateimage"
	"github.com/kaenova/chatd/src/chattools/tool_weather"
	"github.com/kaenova/chatd/src/chattools/tool_websearch"
	"github.com/kaenova/chatd/src/modelclient"
)

// Tool name constants - re-exported from individual packages
const (
	CurrentTimeName   = tool_currenttime.Name
	WeatherName       = tool_weather.Name
	WebSearchName     = tool_websearch.Name
	GenerateImageName = tool_generateimage.Name
)

func CurrentTimeTool() (agent.Tool, error) { return tool_currenttime.Tool() }
func WeatherTool() (agent.Tool, error)     { return tool_weather.Tool() }

// WebSearchTool builds the search tool against a SearxNG-compatible instance.
func WebSearchTool(searchURL string) (agent.Tool, error) { return tool_websearch.Tool(searchURL) }

func GenerateImageTool(deps tool_generateimage.Deps) (agent.Tool, error) {
	return tool_generateimage.Tool(deps)
}

// modelGenerator adapts the model client's images endpoint to the
// generate_image tool's Generator interface.
type modelGenerator struct {
	client *modelclient.Client
	model  string
}

func (g modelGenerator) GenerateImage(ctx context.Context, prompt, size, style string) ([]byte, error) {
	return g.client.GenerateImage(ctx, &modelclient.ImageRequest{
		Model:  g.model,
		Prompt: prompt,
		Size:   size,
		Style:  style,
	})
}

// NewModelGenerator wires image generation to the provider behind the model
// client. An empty model falls back to the provider's default.
func NewModelGenerator(client *modelclient.Client, model string) tool_generateimage.Generator {
	return modelGenerator{client: client, model: model}
}
