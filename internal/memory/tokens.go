// Package memory implements the two memory tiers of the ask pipeline:
// a token-bounded sliding window over recent messages (short-term) and an
// in-memory semantic Q&A index (long-term).
package memory

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/memobot-ai/memobot/internal/models"
)

// Default token budgets. Both leave headroom for the system instruction and
// the current question.
const (
	DefaultHistoryTokens = 1200
	DefaultQATokens      = 800
)

// Counter counts tokens for a text segment.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts with the model's own BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter returns a counter for the given model, falling back to
// cl100k_base for models tiktoken does not know about.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("loading tokenizer: %w", err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Window selects the most recent messages that fit a token budget.
type Window struct {
	counter Counter
	budget  int
}

func NewWindow(counter Counter, budget int) *Window {
	if budget <= 0 {
		budget = DefaultHistoryTokens
	}
	return &Window{counter: counter, budget: budget}
}

// Recent walks history newest to oldest, keeping messages until the budget
// is exhausted, and returns the kept messages oldest first. A message that
// would overflow the budget ends the walk; older messages are dropped even
// if they would individually fit.
func (w *Window) Recent(history []models.Message) []models.Message {
	selected := make([]models.Message, 0, len(history))
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := w.counter.Count(messageText(history[i]))
		if total+cost > w.budget {
			break
		}
		selected = append(selected, history[i])
		total += cost
	}
	// Restore chronological order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

func messageText(msg models.Message) string {
	return fmt.Sprintf("%s: %s\n", msg.Role, msg.Content)
}

// QA is one remembered question/answer exchange.
type QA struct {
	Question string
	Answer   string
}

// TrimQA keeps a prefix of pairs whose combined token cost stays within
// budget. Pairs are assumed to arrive in relevance order.
func TrimQA(pairs []QA, counter Counter, budget int) []QA {
	if budget <= 0 {
		budget = DefaultQATokens
	}
	selected := make([]QA, 0, len(pairs))
	total := 0
	for _, p := range pairs {
		cost := counter.Count(fmt.Sprintf("Q: %s\nA: %s\n", p.Question, p.Answer))
		if total+cost > budget {
			break
		}
		selected = append(selected, p)
		total += cost
	}
	return selected
}

var smallTalkPrefixes = []string{
	"hi", "hello", "hey", "good morning", "good evening",
	"thanks", "thank you", "ok", "okay", "bye", "goodbye",
}

// Remember reports whether an exchange is worth indexing in long-term
// memory. Greetings and very short exchanges carry no reusable information.
func Remember(question, answer string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, p := range smallTalkPrefixes {
		if strings.HasPrefix(q, p) {
			return false
		}
	}
	if len(strings.Fields(question)) < 4 || len(strings.Fields(answer)) < 6 {
		return false
	}
	return true
}
