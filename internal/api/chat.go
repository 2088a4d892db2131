package api

import (
	"bytes"
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/yuin/goldmark"

	"github.com/sprite-ai/blinky/internal/safety"
)

// Responder produces the chat companion's reply to a child's message. Replies
// are markdown.
type Responder interface {
	Reply(ctx context.Context, message string) (string, error)
}

const systemPrompt = `You are Blinky, a friendly ghost who helps kids stay safe online.
Answer in two or three short, warm sentences a ten-year-old can understand.
If the child describes bullying, strangers asking for secrets, photos or
personal details, or anything that makes them uncomfortable, tell them to talk
to a trusted adult and that it is not their fault. Never ask for personal
information.`

// OpenAIResponder answers with an OpenAI chat completion.
type OpenAIResponder struct {
	Model string
	Opts  []option.RequestOption
}

// NewOpenAIResponder validates settings the way the rest of the config layer
// does: a key and model are required, the base URL is optional.
func NewOpenAIResponder(apiKey, baseURL, model string, extra ...option.RequestOption) (*OpenAIResponder, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key missing")
	}
	if model == "" {
		return nil, errors.New("chat model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &OpenAIResponder{Model: model, Opts: opts}, nil
}

func (o *OpenAIResponder) Reply(ctx context.Context, message string) (string, error) {
	client := openai.NewClient(o.Opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CannedResponder answers from a fixed set of replies. When an Analyzer is
// set, messages that score as unsafe get safety advice instead.
type CannedResponder struct {
	Analyzer *safety.Analyzer
}

var cannedTopics = []struct {
	keywords []string
	reply    string
}{
	{[]string{"bully", "mean", "made fun", "teasing"}, "I'm sorry that happened. **It's not your fault.** Don't reply to mean messages, take a screenshot, and tell a parent or teacher you trust."},
	{[]string{"stranger", "secret", "meet", "address", "photo", "picture"}, "Good job asking! **Never share secrets, photos, or where you live** with someone you only know online. Tell a trusted adult right away."},
	{[]string{"password", "link", "prize", "free"}, "That sounds like it could be a trick. **Don't click links or share passwords**, and ask an adult before you do anything."},
	{[]string{"sad", "scared", "upset", "lonely"}, "It's okay to feel that way. Talking helps, so please tell someone you trust how you feel. I'm here too! 👻"},
	{[]string{"hello", "hi", "hey"}, "Hi there! I'm Blinky 👻. Ask me anything about staying safe online!"},
}

const cannedFallback = "That's a great question! Remember: be kind online, keep personal information private, and tell a trusted adult if something feels wrong. 👻"

func (c CannedResponder) Reply(ctx context.Context, message string) (string, error) {
	if c.Analyzer != nil {
		res := c.Analyzer.Analyze(ctx, message, "chat")
		if res.Score >= 40 && len(res.Suggestions) > 0 {
			var b strings.Builder
			b.WriteString("That message worries me a little. Here's what I'd do:\n\n")
			for _, s := range res.Suggestions {
				b.WriteString("- " + s + "\n")
			}
			return b.String(), nil
		}
	}

	lower := strings.ToLower(message)
	for _, topic := range cannedTopics {
		for _, kw := range topic.keywords {
			if containsWord(lower, kw) {
				return topic.reply, nil
			}
		}
	}
	return cannedFallback, nil
}

func containsWord(text, word string) bool {
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	}) {
		if f == word || len(word) >= 4 && strings.HasPrefix(f, word) {
			return true
		}
	}
	// Multi-word keywords fall back to substring matching.
	return strings.Contains(word, " ") && strings.Contains(text, word)
}

// renderMarkdown converts a reply to HTML for clients that display it inline.
func renderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
