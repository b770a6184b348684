package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// OpenAILLM is an adapter for OpenAI chat models, including Azure OpenAI
// deployments.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM creates a new OpenAI LLM adapter.
func NewOpenAILLM(apiKey, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// AzureConfig configures an Azure OpenAI deployment.
type AzureConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	// Deployment is the chat model deployment name.
	Deployment string
}

// NewAzureOpenAILLM creates an adapter for an Azure OpenAI deployment.
func NewAzureOpenAILLM(cfg AzureConfig) (*OpenAILLM, error) {
	if cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, errors.New("azure openai: endpoint and deployment are required")
	}
	config := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		config.APIVersion = cfg.APIVersion
	}
	deployment := cfg.Deployment
	config.AzureModelMapperFunc = func(string) string { return deployment }

	return &OpenAILLM{
		client: openai.NewClientWithConfig(config),
		model:  deployment,
	}, nil
}

// Model returns the model identifier.
func (o *OpenAILLM) Model() string {
	return o.model
}

func (o *OpenAILLM) buildRequest(messages []*agenkit.Message, options *CallOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: convertOpenAIMessages(messages),
	}
	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.TopP != nil {
		req.TopP = float32(*options.TopP)
	}
	if fp, ok := options.Extra["frequency_penalty"].(float64); ok {
		req.FrequencyPenalty = float32(fp)
	}
	if pp, ok := options.Extra["presence_penalty"].(float64); ok {
		req.PresencePenalty = float32(pp)
	}
	if stop, ok := options.Extra["stop"].([]string); ok {
		req.Stop = stop
	}
	return req
}

// Complete generates a completion.
func (o *OpenAILLM) Complete(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (*agenkit.Message, error) {
	req := o.buildRequest(messages, BuildCallOptions(opts...))

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	response := agenkit.NewMessage(agenkit.RoleAgent, resp.Choices[0].Message.Content)
	response.Metadata["model"] = resp.Model
	response.Metadata["usage"] = map[string]interface{}{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	}
	response.Metadata["finish_reason"] = string(resp.Choices[0].FinishReason)
	response.Metadata["id"] = resp.ID

	return response, nil
}

// Stream generates completion chunks.
func (o *OpenAILLM) Stream(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (<-chan *agenkit.Message, error) {
	req := o.buildRequest(messages, BuildCallOptions(opts...))
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai stream error: %w", err)
	}

	messageChan := make(chan *agenkit.Message)
	go func() {
		defer close(messageChan)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
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

			if len(response.Choices) > 0 && response.Choices[0].Delta.Content != "" {
				chunk := agenkit.NewMessage(agenkit.RoleAgent, response.Choices[0].Delta.Content)
				chunk.Metadata["streaming"] = true
				chunk.Metadata["model"] = o.model
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

// convertOpenAIMessages maps agent roles onto OpenAI chat roles.
func convertOpenAIMessages(messages []*agenkit.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case agenkit.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case agenkit.RoleUser, agenkit.RoleTool:
			// Tool observations are plain text in the ReAct transcript.
			role = openai.ChatMessageRoleUser
		default:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}

// Unwrap returns the underlying *openai.Client.
func (o *OpenAILLM) Unwrap() interface{} {
	return o.client
}
