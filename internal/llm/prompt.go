package llm

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/memobot-ai/memobot/internal/memory"
	"github.com/memobot-ai/memobot/internal/models"
)

// buildPrompt assembles the message list sent to the model:
//
//  1. the system instruction,
//  2. an optional system block of semantically relevant past Q&A,
//  3. the token-trimmed recent history,
//  4. the current question.
func buildPrompt(recent []models.Message, qa []memory.QA, question string) []llms.MessageContent {
	prompt := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction),
	}

	if len(qa) > 0 {
		var b strings.Builder
		b.WriteString("Here are some relevant previous Q&A you have given:\n")
		for i, p := range qa {
			fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n\n", i+1, p.Question, i+1, p.Answer)
		}
		prompt = append(prompt, llms.TextParts(llms.ChatMessageTypeSystem, strings.TrimSpace(b.String())))
	}

	for _, m := range recent {
		prompt = append(prompt, llms.TextParts(chatRole(m.Role), m.Content))
	}

	prompt = append(prompt, llms.TextParts(llms.ChatMessageTypeHuman, question))
	return prompt
}

func chatRole(r models.Role) llms.ChatMessageType {
	if r == models.RoleAssistant {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}
