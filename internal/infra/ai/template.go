package ai

import (
	"context"
	"math/rand/v2"
	"strings"
)

const callToAction = "Would you like to schedule a quick call?"

var replyTemplates = []string{
	"Thanks for reaching out! I'd love to discuss this further with you.",
	"Great to hear from you! Let me share some information that might be helpful.",
	"Thanks for your message! I think we could be a great fit. Here's why...",
	"I appreciate your interest! Based on what you've shared, I have some ideas.",
}

// TemplateGenerator picks a canned opener and appends the caller's context,
// or a call to action when there is none.
type TemplateGenerator struct {
	pick func(n int) int
}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{pick: rand.IntN}
}

func (g *TemplateGenerator) Backend() string { return "template" }

func (g *TemplateGenerator) Generate(_ context.Context, req Request) (string, error) {
	return g.reply(req.Context), nil
}

func (g *TemplateGenerator) reply(extra string) string {
	opener := replyTemplates[g.pick(len(replyTemplates))]
	if extra = strings.TrimSpace(extra); extra != "" {
		return opener + " " + extra
	}
	return opener + " " + callToAction
}
