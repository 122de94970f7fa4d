package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/gadgetcare/repairbot/internal/models"
)

// historyLimit bounds how many logged messages are replayed into the
// freeform-answer context.
const historyLimit = 10

// noAnswerToken is the sentinel the model is instructed to reply with when it
// cannot help; it maps to the empty "absent" result.
const noAnswerToken = "NONE"

const shopSystemPrompt = "You are the WhatsApp assistant of GadgetCare, an electronics repair shop. " +
	"Answer customer questions about phone, laptop and tablet repairs briefly and politely. " +
	"If the question is unrelated to the shop or you cannot help, reply with exactly NONE."

// Client implements Assistant using the OpenAI chat completions API.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

// Opts holds configuration options for the OpenAI-backed assistant.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the assistant client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// NewClient initializes the assistant, falling back to the OPENAI_API_KEY
// environment variable when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("Assistant client created", "model", cfg.Model)
	return &Client{client: openai.NewClient(option.WithAPIKey(cfg.APIKey)), model: cfg.Model}, nil
}

// complete runs one chat completion and returns the trimmed reply, mapping
// the model's NONE sentinel to the empty result.
func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("Assistant completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("Assistant completion returned no choices")
		return "", nil
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == noAnswerToken {
		return "", nil
	}
	return out, nil
}

// AnswerFreeform answers an open-ended customer message with recent history as context.
func (c *Client) AnswerFreeform(ctx context.Context, message string, history []models.Message) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(shopSystemPrompt)}
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, m := range history {
		if m.Direction == models.DirectionInbound {
			msgs = append(msgs, openai.UserMessage(m.Body))
		} else {
			msgs = append(msgs, openai.AssistantMessage(m.Body))
		}
	}
	msgs = append(msgs, openai.UserMessage(message))

	out, err := c.complete(ctx, msgs)
	if err != nil {
		return "", err
	}
	slog.Debug("Assistant freeform answer", "answered", out != "")
	return out, nil
}

// ParseNaturalDate extracts a calendar date from free text like "next Friday".
func (c *Client) ParseNaturalDate(ctx context.Context, text string) (string, error) {
	system := "Extract the calendar date the user means from their message. " +
		"Reply with only the date in YYYY-MM-DD format. If no date can be determined, reply with exactly NONE."
	out, err := c.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(text),
	})
	if err != nil || out == "" {
		return "", err
	}
	if !models.IsValidDateString(out) {
		slog.Debug("Assistant date parse produced invalid format", "raw", out)
		return "", nil
	}
	return out, nil
}

// ParseNaturalTime extracts a clock time from free text like "half past three".
func (c *Client) ParseNaturalTime(ctx context.Context, text string) (string, error) {
	system := "Extract the clock time the user means from their message. " +
		"Reply with only the time in HH:MM 24-hour format. If no time can be determined, reply with exactly NONE."
	out, err := c.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(text),
	})
	if err != nil || out == "" {
		return "", err
	}
	if !models.IsValidTimeString(out) {
		slog.Debug("Assistant time parse produced invalid format", "raw", out)
		return "", nil
	}
	return out, nil
}

// EstimateRange asks for a rough repair price range in rupees for a device
// the catalog does not cover.
func (c *Client) EstimateRange(ctx context.Context, brand, model, issue string) (string, error) {
	system := "You estimate repair prices for an Indian electronics repair shop. " +
		"Given a device and issue, reply with a single realistic price range in rupees, " +
		"for example: ₹2,000–₹4,500. Reply with only the range. If you cannot estimate, reply with exactly NONE."
	user := fmt.Sprintf("Device: %s %s\nIssue: %s", brand, model, issue)
	return c.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(user),
	})
}

// Diagnose produces a short structured diagnostic for a software problem.
func (c *Client) Diagnose(ctx context.Context, issue, deviceType, errorDetails string) (string, error) {
	system := "You are a repair technician. Diagnose the described software problem and reply with: " +
		"a one-line likely cause, then up to three numbered steps the customer can try themselves. " +
		"Keep it under 80 words. If you cannot help, reply with exactly NONE."
	user := fmt.Sprintf("Device type: %s\nProblem: %s\nError details: %s", deviceType, issue, errorDetails)
	return c.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(user),
	})
}

// AnalyzeImage diagnoses a problem from a photo using the vision-capable chat API.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, mimeType, caption string) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	system := "You are a repair technician looking at a photo a customer sent " +
		"(an error screen or physical damage). Describe what the problem likely is and " +
		"up to three numbered steps to try. Keep it under 80 words. If the image is unusable, reply with exactly NONE."
	if caption == "" {
		caption = "What is wrong with my device?"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	userParts := openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(caption),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	})
	return c.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		userParts,
	})
}
