// Package llm wraps the two black-box model calls job handlers depend on:
// plain text completion and multimodal (image+text) completion, plus the
// tolerant JSON-extraction helper segment generation uses to parse replies.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// TextChat calls a text-only model and returns its reply. Handlers treat an
// empty reply as an error.
type TextChat interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// ImageChat calls a multimodal model with a system prompt, a user message,
// and an image read from disk.
type ImageChat interface {
	ChatWithImage(ctx context.Context, system, user, imagePath string) (string, error)
}

// OpenAIText implements TextChat against an OpenAI-compatible chat
// completions endpoint.
type OpenAIText struct {
	client *openai.Client
	model  string
}

func NewOpenAIText(apiKey, model string) *OpenAIText {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIText{client: openai.NewClient(apiKey), model: model}
}

func (t *OpenAIText) Chat(ctx context.Context, system, user string) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiImage implements ImageChat via the Google Gen AI SDK's multimodal
// GenerateContent call, mirroring the client-construction shape the teacher
// uses for its Veo video-generation client.
type GeminiImage struct {
	apiKey string
	model  string
}

func NewGeminiImage(apiKey, model string) *GeminiImage {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiImage{apiKey: apiKey, model: model}
}

func (g *GeminiImage) ChatWithImage(ctx context.Context, system, user, imagePath string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("llm: create genai client: %w", err)
	}

	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("llm: read image %s: %w", imagePath, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(imagePath))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(user),
			genai.NewPartFromBytes(imageBytes, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("llm: genai generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("llm: genai returned no text")
	}
	return text, nil
}

var fencedJSONRE = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*?)```")
var braceObjectRE = regexp.MustCompile(`(?s)\{[\s\S]*\}`)

// SegmentReply is the shape segment_generate expects from the text model.
type SegmentReply struct {
	Script      string `json:"script"`
	VideoPrompt string `json:"video_prompt"`
}

// ExtractJSON tolerantly parses a model reply into a SegmentReply: direct
// parse, then a fenced ```json``` block, then the first brace-delimited
// object, and finally a fallback that treats the whole reply as the script.
func ExtractJSON(text string) SegmentReply {
	if reply, ok := unmarshalSegmentObject(text); ok {
		return reply
	}

	if m := fencedJSONRE.FindStringSubmatch(text); m != nil {
		if reply, ok := unmarshalSegmentObject(m[1]); ok {
			return reply
		}
	}

	if m := braceObjectRE.FindString(text); m != "" {
		if reply, ok := unmarshalSegmentObject(m); ok {
			return reply
		}
	}

	return SegmentReply{Script: text, VideoPrompt: truncate(text, 200)}
}

// unmarshalSegmentObject accepts raw only when it decodes to a JSON object,
// so a bare JSON string/number/null doesn't masquerade as a parsed reply.
func unmarshalSegmentObject(raw string) (SegmentReply, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return SegmentReply{}, false
	}
	var reply SegmentReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return SegmentReply{}, false
	}
	return reply, true
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
