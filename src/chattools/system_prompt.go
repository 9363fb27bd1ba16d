// Package chattools assembles the chat assistant's toolbox and system prompt.
package chattools

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/kaenova/chatd/src/agent"
)

// Static prompt templates
const (
	mainPromptTemplate = `You are a helpful conversational assistant. Use the instructions below and the tools available to you to assist the user.

You are insightful and encouraging, and you combine meticulous clarity with genuine enthusiasm and gentle humor. Patiently explain complex topics clearly and comprehensively, maintain a friendly tone, and adjust explanations to the user's proficiency.

Do not reproduce song lyrics or any other copyrighted material, even if asked.
Do not end with opt-in questions or hedging closers such as "would you like me to" or "let me know if". Ask at most one necessary clarifying question at the start, not the end. If the next step is obvious, do it.`

	toolGuidanceSection = `# Tools

## generate_image

Use the generate_image tool to create images based on user descriptions. Expand the user's description with creative details to produce richer images, but if the user requests specific instructions, adhere to them closely. Embed the returned chatbot:// reference as an image part so the user can see the result.

## get_current_time

Use the get_current_time tool to provide the current date and time when the user asks for them.

## current_weather

Use the current_weather tool to check a city's weather. This action requires the user's approval before it runs; do not promise results before the approval resolves.

## web_search

Use the web_search tool for current events and facts you are unsure of. Cite the result URLs you relied on.`
)

// getEnvironmentInfo generates dynamic environment information
func getEnvironmentInfo() string {
	today := time.Now().Format("2006-01-02")
	osVersion := getOSVersion()

	return fmt.Sprintf(`Here is useful information about the environment you are running in:
<env>
Platform: %s
OS Version: %s
Today's date: %s
</env>`, runtime.GOOS, osVersion, today)
}

// getOSVersion returns detailed OS version information
func getOSVersion() string {
	info, err := host.Info()
	if err == nil {
		// gopsutil provides detailed info across all platforms
		if info.PlatformVersion != "" {
			return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		}
		return info.Platform
	}

	// Fallback to basic OS name if gopsutil fails
	return runtime.GOOS
}

func formatToolList(toolbox *agent.DefaultToolbox) string {
	tools := toolbox.Tools()
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Available tools\n")
	for _, tool := range tools {
		line := tool.GetDescription()
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		fmt.Fprintf(&b, "- %s: %s\n", tool.GetName(), strings.TrimSpace(line))
	}
	return strings.TrimRight(b.String(), "\n")
}

// GenerateSystemPrompt assembles all sections into the final system prompt
func GenerateSystemPrompt(toolbox *agent.DefaultToolbox) string {
	sections := []string{
		mainPromptTemplate,
		toolGuidanceSection,
		getEnvironmentInfo(),
		formatToolList(toolbox),
	}

	result := ""
	for _, section := range sections {
		if section == "" {
			continue
		}
		if result != "" {
			result += "\n\n"
		}
		result += section
	}
	return result
}
