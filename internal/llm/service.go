// Package llm answers questions with memory-augmented prompting: recent
// conversation history within a token budget plus semantically similar past
// exchanges from the vector index.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/memobot-ai/memobot/internal/memory"
	"github.com/memobot-ai/memobot/internal/models"
	"github.com/memobot-ai/memobot/internal/store"
)

const systemInstruction = "You are a concise, helpful QA assistant. " +
	"Answer the user's question clearly and accurately. " +
	"If you are unsure, say that you don't know."

const (
	// retrieveTopK past exchanges are considered before the token trim.
	retrieveTopK = 5

	requestTimeout = 30 * time.Second

	// defaultTitle is replaced by the first user message in the store.
	defaultTitle = "New Chat"
)

// Embedder produces an embedding vector for a query string. Satisfied by
// langchaingo's embeddings.Embedder.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Service struct {
	model    llms.Model
	embedder Embedder
	store    *store.Store
	vectors  *memory.VectorStore
	window   *memory.Window
	counter  memory.Counter
	qaBudget int
	logger   *zap.Logger
}

// Options wires the service's collaborators. Model, Embedder, Store and
// Counter are required; budgets fall back to the memory package defaults.
type Options struct {
	Model         llms.Model
	Embedder      Embedder
	Store         *store.Store
	Counter       memory.Counter
	HistoryTokens int
	QATokens      int
	Logger        *zap.Logger
}

func New(opts Options) (*Service, error) {
	if opts.Model == nil {
		return nil, errors.New("llm: model must not be nil")
	}
	if opts.Embedder == nil {
		return nil, errors.New("llm: embedder must not be nil")
	}
	if opts.Store == nil {
		return nil, errors.New("llm: store must not be nil")
	}
	if opts.Counter == nil {
		return nil, errors.New("llm: token counter must not be nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	qaBudget := opts.QATokens
	if qaBudget <= 0 {
		qaBudget = memory.DefaultQATokens
	}
	return &Service{
		model:    opts.Model,
		embedder: opts.Embedder,
		store:    opts.Store,
		vectors:  memory.NewVectorStore(),
		window:   memory.NewWindow(opts.Counter, opts.HistoryTokens),
		counter:  opts.Counter,
		qaBudget: qaBudget,
		logger:   opts.Logger,
	}, nil
}

// NewOpenAI builds a service backed by an OpenAI-compatible endpoint for
// both completions and embeddings.
func NewOpenAI(baseURL, token, model, embeddingModel string, st *store.Store, historyTokens, qaTokens int, logger *zap.Logger) (*Service, error) {
	clientOpts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
		openai.WithEmbeddingModel(embeddingModel),
	}
	if baseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	counter, err := memory.NewTiktokenCounter(model)
	if err != nil {
		return nil, fmt.Errorf("creating token counter: %w", err)
	}

	return New(Options{
		Model:         client,
		Embedder:      embedder,
		Store:         st,
		Counter:       counter,
		HistoryTokens: historyTokens,
		QATokens:      qaTokens,
		Logger:        logger,
	})
}

// Ask answers the question in the context of the conversation, persists the
// completed turn and conditionally indexes it in long-term memory. The
// conversation is lazily created on first use.
func (s *Service) Ask(ctx context.Context, conversationID, question string) (string, error) {
	history, err := s.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	qa := s.recall(ctx, question)

	prompt := buildPrompt(s.window.Recent(history), qa, question)

	cctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.model.GenerateContent(cctx, prompt, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	answer := strings.TrimSpace(resp.Choices[0].Content)

	if err := s.persistTurn(ctx, conversationID, question, answer); err != nil {
		return "", err
	}

	s.remember(ctx, question, answer)
	return answer, nil
}

// recall retrieves past Q&A similar to the question, trimmed to the token
// budget. Retrieval is best-effort: on failure the answer is produced from
// the conversation history alone.
func (s *Service) recall(ctx context.Context, question string) []memory.QA {
	if s.vectors.Len() == 0 {
		return nil
	}
	emb, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		s.logger.Warn("embedding query failed, skipping vector recall", zap.Error(err))
		return nil
	}
	pairs := s.vectors.Search(emb, retrieveTopK)
	return memory.TrimQA(pairs, s.counter, s.qaBudget)
}

func (s *Service) persistTurn(ctx context.Context, conversationID, question, answer string) error {
	if err := s.store.EnsureConversation(ctx, conversationID, defaultTitle); err != nil {
		return err
	}
	userMsg := models.Message{ConvID: conversationID, Role: models.RoleUser, Content: question}
	if err := s.store.AppendMessage(ctx, &userMsg); err != nil {
		return fmt.Errorf("saving question: %w", err)
	}
	botMsg := models.Message{ConvID: conversationID, Role: models.RoleAssistant, Content: answer}
	if err := s.store.AppendMessage(ctx, &botMsg); err != nil {
		return fmt.Errorf("saving answer: %w", err)
	}
	return nil
}

// remember indexes the exchange in vector memory when it looks reusable.
// Failures are logged only; the turn is already persisted.
func (s *Service) remember(ctx context.Context, question, answer string) {
	if !memory.Remember(question, answer) {
		return
	}
	emb, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		s.logger.Warn("embedding question failed, exchange not indexed", zap.Error(err))
		return
	}
	if err := s.vectors.Add(question, answer, emb); err != nil {
		s.logger.Warn("indexing exchange failed", zap.Error(err))
	}
}
