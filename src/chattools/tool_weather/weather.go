package tool_weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/kaenova/chatd/src/agent"
)

// Tool name constant. Weather lookups are treated as sensitive and gated
// behind user approval by default.
const Name = "current_weather"

const weatherPrompt = `Checks the current weather for a city.

WHEN TO USE THIS TOOL:
- Use when the user asks about the weather in a specific place

HOW TO USE:
- Provide the city name to check

LIMITATIONS:
- Reports current conditions only, no forecasts`

// WeatherInput represents the parameters for current_weather.
type WeatherInput struct {
	City string `json:"city" required:"true" validate:"required" description:"The city to check for the weather"`
}

// WeatherOutput represents the response from current_weather.
type WeatherOutput struct {
	Report string `json:"report" description:"Current weather conditions for the city"`
}

// Tool returns the current_weather tool definition using GenericTool
func Tool() (agent.Tool, error) {
	return agent.NewGenericTool(Name, weatherPrompt, weatherHandler)
}

func weatherHandler(ctx context.Context, input WeatherInput) (WeatherOutput, error) {
	city := strings.TrimSpace(input.City)
	if city == "" {
		return WeatherOutput{}, fmt.Errorf("city is required")
	}
	return WeatherOutput{Report: fmt.Sprintf("%s is sunny right now!", city)}, nil
}
