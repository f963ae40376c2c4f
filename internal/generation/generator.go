// Package generation drafts contract content with an LLM using structured output.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/pactline/backend/internal/content"
)

const schemaName = "contract_draft"

const systemPrompt = `You draft legal contracts as structured blocks.
Return a title and an ordered list of blocks. Each block has a short unique id ("1", "2", ...),
a type (header, clause, list or footer) and plain-text content.
Start with a header, end with a footer that leaves room for signatures.
Write in the requested locale. Do not include placeholders for signatures or dates in clauses.`

// ErrEmptyCompletion is returned when the model produced no choices.
var ErrEmptyCompletion = errors.New("model returned no draft")

// draft is the schema the model must follow. It mirrors content.Wire without
// metadata, which strict structured output cannot express as a free-form map.
type draft struct {
	Title  string       `json:"title" jsonschema:"description=Contract title"`
	Blocks []draftBlock `json:"blocks" jsonschema:"minItems=1"`
}

type draftBlock struct {
	ID      string `json:"id"`
	Type    string `json:"type" jsonschema:"enum=header,enum=clause,enum=list,enum=footer"`
	Content string `json:"content"`
}

// Schema returns the JSON schema sent with every request.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&draft{})
}

// Completer runs one structured completion and returns the raw JSON answer.
type Completer interface {
	Complete(ctx context.Context, system, user string, schema any) (string, error)
}

// Generator turns prompts into validated content.
type Generator struct {
	completer Completer
	schema    *jsonschema.Schema
	logger    *zap.Logger
}

// NewGenerator creates a generator over completer.
func NewGenerator(completer Completer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: completer, schema: Schema(), logger: logger}
}

// Generate drafts content for prompt. The answer goes through the same
// decoding and validation as user-submitted content.
func (g *Generator) Generate(ctx context.Context, prompt, locale string) (content.Content, error) {
	user := fmt.Sprintf("Locale: %s\n\n%s", locale, prompt)
	raw, err := g.completer.Complete(ctx, systemPrompt, user, g.schema)
	if err != nil {
		return content.Content{}, fmt.Errorf("generate draft: %w", err)
	}
	return Decode(raw)
}

// Decode parses a model answer into validated content.
func Decode(raw string) (content.Content, error) {
	var c content.Content
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return content.Content{}, fmt.Errorf("decode generated draft: %w", err)
	}
	if err := content.Validate(c); err != nil {
		return content.Content{}, fmt.Errorf("generated draft: %w", err)
	}
	return c, nil
}

// OpenAI is a Completer backed by the chat completions API.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// NewOpenAI creates an OpenAI completer. An empty model means gpt-4o-mini.
func NewOpenAI(apiKey, model string, logger *zap.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 4000,
		logger:    logger,
	}, nil
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, system, user string, schema any) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(o.maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName,
					Description: openai.String("Structured contract draft"),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	o.logger.Debug("draft generated",
		zap.String("model", o.model),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
