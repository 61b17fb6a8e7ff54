package llm

import (
	"context"
	"strings"
)

const (
	templateHeader = "Here is what I found:"
	templateFooter = "If you need deeper guidance, open the related page for full requirements or use the smart checklists below."
	// NoSourcesAnswer is returned when retrieval found nothing to cite.
	NoSourcesAnswer = "I couldn't find a page that covers that yet. Try rephrasing your question, or browse the service directory for more options."
)

// TemplateProvider assembles a bulleted answer from the request sources.
// Output depends only on the sources, so it is safe to replay.
type TemplateProvider struct{}

// NewTemplateProvider creates a TemplateProvider.
func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{}
}

func (p *TemplateProvider) Name() string {
	return "template"
}

func (p *TemplateProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := RenderTemplate(req.Sources)
	return &CompletionResponse{
		Content:      content,
		InputTokens:  EstimateTokens(req.LastUserMessage()),
		OutputTokens: EstimateTokens(content),
		Model:        "template",
		FinishReason: "stop",
	}, nil
}

// RenderTemplate formats sources as "• Title: Summary" bullets between a
// fixed header and footer.
func RenderTemplate(sources []Source) string {
	if len(sources) == 0 {
		return NoSourcesAnswer
	}
	var b strings.Builder
	b.WriteString(templateHeader)
	b.WriteString("\n")
	for _, s := range sources {
		b.WriteString("• ")
		b.WriteString(s.Title)
		if s.Summary != "" {
			b.WriteString(": ")
			b.WriteString(s.Summary)
		}
		b.WriteString("\n")
	}
	b.WriteString(templateFooter)
	return b.String()
}
