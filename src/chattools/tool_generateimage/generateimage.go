package tool_generateimage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kaenova/chatd/src/agent"
	"github.com/kaenova/chatd/src/attachment"
	"github.com/kaenova/chatd/src/blobstore"
)

// Tool name constant
const Name = "generate_image"

const generateImagePrompt = `Generates an image from a text prompt.

WHEN TO USE THIS TOOL:
- Use when the user asks for an illustration, design, or other visual content

HOW TO USE:
- Provide the image prompt; expand the user's description with creative
  details unless they ask you to follow it exactly
- Pick a size from: 1024x1024, 1792x1024, 1024x1792
- Pick a style from: vivid, natural

RESULT:
- Returns a chatbot:// reference to the stored image; embed it as an image
  part to show it to the user`

var (
	validSizes  = []string{"1024x1024", "1792x1024", "1024x1792"}
	validStyles = []string{"vivid", "natural"}
)

// Generator produces image bytes from a prompt.
type Generator interface {
	GenerateImage(ctx context.Context, prompt, size, style string) ([]byte, error)
}

// GenerateImageInput represents the parameters for generate_image.
type GenerateImageInput struct {
	Prompt string `json:"prompt" required:"true" validate:"required" description:"Prompt for image generation"`
	Size   string `json:"size,omitempty" description:"Size of the generated image. Pick one: ['1024x1024', '1792x1024', '1024x1792']"`
	Style  string `json:"style,omitempty" description:"Style of the generated image. Pick one: ['vivid', 'natural']"`
}

// GenerateImageOutput represents the response from generate_image.
type GenerateImageOutput struct {
	URL      string `json:"url" description:"chatbot:// reference to the stored image"`
	Filename string `json:"filename" description:"Stored image filename"`
}

// Deps carries the stores the tool writes the generated image into.
type Deps struct {
	Generator Generator
	Blobs     *blobstore.Store
	DB        *attachment.DB
	Owner     string
}

// Tool returns the generate_image tool definition using GenericTool
func Tool(deps Deps) (agent.Tool, error) {
	return agent.NewGenericTool(Name, generateImagePrompt, makeGenerateImageHandler(deps))
}

func makeGenerateImageHandler(deps Deps) func(ctx context.Context, input GenerateImageInput) (GenerateImageOutput, error) {
	return func(ctx context.Context, input GenerateImageInput) (GenerateImageOutput, error) {
		prompt := strings.TrimSpace(input.Prompt)
		if prompt == "" {
			return GenerateImageOutput{}, fmt.Errorf("prompt is required")
		}
		size := input.Size
		if size == "" {
			size = validSizes[0]
		}
		if !slices.Contains(validSizes, size) {
			return GenerateImageOutput{}, fmt.Errorf("size must be one of %v", validSizes)
		}
		style := input.Style
		if style == "" {
			style = validStyles[0]
		}
		if !slices.Contains(validStyles, style) {
			return GenerateImageOutput{}, fmt.Errorf("style must be one of %v", validStyles)
		}

		data, err := deps.Generator.GenerateImage(ctx, prompt, size, style)
		if err != nil {
			return GenerateImageOutput{}, fmt.Errorf("image generation failed: %v", err)
		}

		blobName := uuid.New().String() + ".png"
		if err := deps.Blobs.Put(blobName, data); err != nil {
			return GenerateImageOutput{}, fmt.Errorf("failed to store image: %v", err)
		}

		att := &attachment.Attachment{
			Owner:       deps.Owner,
			Filename:    blobName,
			BlobName:    blobName,
			ContentType: "image/png",
			Metadata:    attachment.JSONMap{"prompt": prompt, "size": size, "style": style},
		}
		if err := attachment.Create(ctx, deps.DB.DB(), att); err != nil {
			return GenerateImageOutput{}, fmt.Errorf("failed to record image attachment: %v", err)
		}

		return GenerateImageOutput{URL: att.Ref(), Filename: blobName}, nil
	}
}
