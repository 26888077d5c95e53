package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"

	"github.com/threatdex/threatdex"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// OpenAI is a Summarizer backed by an OpenAI-compatible chat completion
// endpoint.
type OpenAI struct {
	c     *openai.Client
	model string
}

var _ Summarizer = (*OpenAI)(nil)

// OpenAIOption configures an OpenAI summarizer.
type OpenAIOption func(*openai.ClientConfig, *OpenAI)

// WithModel overrides the completion model.
func WithModel(m string) OpenAIOption {
	return func(_ *openai.ClientConfig, o *OpenAI) {
		if m != "" {
			o.model = m
		}
	}
}

// WithBaseURL points the client at an alternate OpenAI-compatible
// endpoint.
func WithBaseURL(u string) OpenAIOption {
	return func(cfg *openai.ClientConfig, _ *OpenAI) {
		if u != "" {
			cfg.BaseURL = u
		}
	}
}

// NewOpenAI returns a summarizer authenticated with token.
func NewOpenAI(token string, opts ...OpenAIOption) *OpenAI {
	cfg := openai.DefaultConfig(token)
	o := &OpenAI{model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg, o)
	}
	o.c = openai.NewClientWithConfig(cfg)
	return o
}

const summarizerRole = "You are a cybersecurity expert explaining vulnerabilities to non-technical users."

// Summarize implements Summarizer with two completions, one per field.
// The model's output is trimmed of quoting and meta-text and clipped to
// the package budgets.
func (o *OpenAI) Summarize(ctx context.Context, in *Input) (*Summary, error) {
	const op = "enrich/OpenAI.Summarize"

	title, err := o.complete(ctx, titlePrompt(in), 0.3, 50)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "title completion failed", Inner: err}
	}
	desc, err := o.complete(ctx, descPrompt(in), 0.4, 150)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "description completion failed", Inner: err}
	}

	title, desc = cleanOutput(title), cleanOutput(desc)
	if title == "" || desc == "" {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "model returned an empty summary"}
	}
	return &Summary{
		Title:       clip(title, MaxTitle),
		Description: clip(desc, MaxDescription),
	}, nil
}

func (o *OpenAI) complete(ctx context.Context, prompt string, temp float32, maxTokens int) (string, error) {
	resp, err := o.c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: temp,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizerRole},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func titlePrompt(in *Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CVE ID: %s\n", in.CVE)
	fmt.Fprintf(&b, "Affected Vendor: %s\n", joinOr(in.Vendors, "Unknown"))
	fmt.Fprintf(&b, "Affected Product: %s\n", joinOr(in.Products, "Unknown"))
	fmt.Fprintf(&b, "Severity: %s\n", in.Severity)
	if in.CVSSScore != nil {
		fmt.Fprintf(&b, "CVSS Score: %.1f\n", *in.CVSSScore)
	}
	fmt.Fprintf(&b, "\nTechnical Description:\n%s\n\n", head(in.Description, 500))
	b.WriteString("Generate a SHORT, simple title (maximum 10 words) naming what the vulnerability is and where it affects. ")
	b.WriteString(`Example format: "Security Flaw in Microsoft Windows Allows Remote Access". `)
	b.WriteString("Generate ONLY the title, nothing else.")
	return b.String()
}

func descPrompt(in *Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CVE ID: %s\n", in.CVE)
	if in.PublishedAt != nil {
		fmt.Fprintf(&b, "Date: %s\n", in.PublishedAt.Format(time.DateOnly))
	}
	fmt.Fprintf(&b, "Severity: %s\n", in.Severity)
	if in.CVSSScore != nil {
		fmt.Fprintf(&b, "CVSS Score: %.1f/10\n", *in.CVSSScore)
	}
	fmt.Fprintf(&b, "Affected: %s %s\n", joinOr(in.Vendors, "Unknown"), joinOr(in.Products, "Unknown"))
	fmt.Fprintf(&b, "\nTechnical Description:\n%s\n\n", head(in.Description, 800))
	b.WriteString("Write a BRIEF, simple explanation (2-3 sentences, maximum 100 words) of what the vulnerability is and its potential impact, avoiding jargon. ")
	b.WriteString("Start directly with the explanation; do NOT open with phrases like \"Here's a brief explanation\" or \"In simple terms\". ")
	b.WriteString("Generate ONLY the description.")
	return b.String()
}

func joinOr(vals []string, fallback string) string {
	if len(vals) == 0 {
		return fallback
	}
	if len(vals) > 3 {
		vals = vals[:3]
	}
	return strings.Join(vals, ", ")
}

func head(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// metaRE matches lead-ins the model tends to produce despite the prompt.
var metaRE = regexp.MustCompile(`(?i)^(here'?s?\s+(a\s+brief\s+(explanation|summary)[^:]*|what\s+you\s+need\s+to\s+know):?\s*|in\s+simple\s+terms:?\s*|to\s+put\s+it\s+simply:?\s*|(basically|essentially),?\s*|in\s+other\s+words,?\s*)`)

func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = metaRE.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 0 && unicode.IsLower(r[0]) {
		s = string(unicode.ToUpper(r[0])) + string(r[1:])
	}
	return s
}
