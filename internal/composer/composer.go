// Package composer turns a transcript into the ordered message list sent to
// the completion service.
package composer

import (
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/internal/markup"
)

// PromptSource resolves the system prompt for a selection.
type PromptSource interface {
	SystemPrompt(sel entities.Selection) (string, error)
}

// Composer builds completion requests from transcripts
type Composer struct {
	prompts PromptSource
}

// New creates a composer backed by a prompt source, usually a *persona.Catalog
func New(prompts PromptSource) *Composer {
	return &Composer{prompts: prompts}
}

// Compose returns exactly one system message followed by each turn's user
// message and, when non-empty, its assistant message, all in transcript
// order with audio players removed. The result depends only on its inputs.
func (c *Composer) Compose(turns []entities.Turn, sel entities.Selection) ([]repositories.ChatMessage, error) {
	system, err := c.prompts.SystemPrompt(sel)
	if err != nil {
		return nil, err
	}

	messages := make([]repositories.ChatMessage, 0, 1+2*len(turns))
	messages = append(messages, repositories.ChatMessage{Role: repositories.SystemRole, Content: system})

	for _, turn := range turns {
		messages = append(messages, repositories.ChatMessage{
			Role:    repositories.UserRole,
			Content: markup.StripAudio(turn.User),
		})
		if reply := turn.Reply(); reply != "" {
			messages = append(messages, repositories.ChatMessage{
				Role:    repositories.AssistantRole,
				Content: markup.StripAudio(reply),
			})
		}
	}
	return messages, nil
}
