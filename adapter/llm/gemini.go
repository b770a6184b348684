package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// GeminiLLM is an adapter for Google's Gemini models.
//
// System messages are sent as the model's system instruction; the remaining
// messages become the chat history plus the final turn.
type GeminiLLM struct {
	client *genai.Client
	model  string
}

// NewGeminiLLM creates a new Gemini LLM adapter.
func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key required: set GEMINI_API_KEY or GOOGLE_API_KEY")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiLLM{
		client: client,
		model:  model,
	}, nil
}

// Model returns the model identifier.
func (g *GeminiLLM) Model() string {
	return g.model
}

func (g *GeminiLLM) session(messages []*agenkit.Message, options *CallOptions) (*genai.ChatSession, []genai.Part) {
	model := g.client.GenerativeModel(g.model)
	configureGeminiModel(model, options)

	system, rest := splitSystem(messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	history, last := convertGeminiMessages(rest)
	session := model.StartChat()
	session.History = history
	return session, last
}

// Complete generates a completion.
func (g *GeminiLLM) Complete(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (*agenkit.Message, error) {
	session, last := g.session(messages, BuildCallOptions(opts...))
	if len(last) == 0 {
		return nil, errors.New("gemini: no user message to send")
	}

	resp, err := session.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	response := agenkit.NewMessage(agenkit.RoleAgent, extractGeminiContent(resp))
	response.Metadata["model"] = g.model
	if resp.UsageMetadata != nil {
		response.Metadata["usage"] = map[string]interface{}{
			"prompt_tokens":     resp.UsageMetadata.PromptTokenCount,
			"completion_tokens": resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens":      resp.UsageMetadata.TotalTokenCount,
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != 0 {
		response.Metadata["finish_reason"] = resp.Candidates[0].FinishReason.String()
	}

	return response, nil
}

// Stream generates completion chunks.
func (g *GeminiLLM) Stream(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (<-chan *agenkit.Message, error) {
	session, last := g.session(messages, BuildCallOptions(opts...))
	if len(last) == 0 {
		return nil, errors.New("gemini: no user message to send")
	}
	iter := session.SendMessageStream(ctx, last...)

	messageChan := make(chan *agenkit.Message)
	go func() {
		defer close(messageChan)

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				errorMsg := agenkit.NewMessage(agenkit.RoleAgent, "")
				errorMsg.Metadata["error"] = err.Error()
				errorMsg.Metadata["streaming"] = true
				select {
				case messageChan <- errorMsg:
				case <-ctx.Done():
				}
				return
			}

			if content := extractGeminiContent(resp); content != "" {
				chunk := agenkit.NewMessage(agenkit.RoleAgent, content)
				chunk.Metadata["streaming"] = true
				chunk.Metadata["model"] = g.model
				select {
				case messageChan <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return messageChan, nil
}

func convertGeminiMessages(messages []*agenkit.Message) ([]*genai.Content, []genai.Part) {
	if len(messages) == 0 {
		return nil, nil
	}

	history := make([]*genai.Content, 0, len(messages)-1)
	for _, msg := range messages[:len(messages)-1] {
		history = append(history, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	return history, []genai.Part{genai.Text(messages[len(messages)-1].Content)}
}

func geminiRole(role string) string {
	switch role {
	case agenkit.RoleUser, agenkit.RoleTool:
		return "user"
	default:
		return "model"
	}
}

func configureGeminiModel(model *genai.GenerativeModel, options *CallOptions) {
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		model.Temperature = &temp
	}
	if options.MaxTokens != nil {
		maxTokens := int32(*options.MaxTokens)
		model.MaxOutputTokens = &maxTokens
	}
	if options.TopP != nil {
		topP := float32(*options.TopP)
		model.TopP = &topP
	}
	if topK, ok := options.Extra["top_k"].(int); ok {
		k := int32(topK)
		model.TopK = &k
	}
	if stopSequences, ok := options.Extra["stop_sequences"].([]string); ok {
		model.StopSequences = stopSequences
	}
}

func extractGeminiContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var content string
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content += string(txt)
		}
	}
	return content
}

// Close closes the underlying client.
func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Unwrap returns the underlying *genai.Client.
func (g *GeminiLLM) Unwrap() interface{} {
	return g.client
}
