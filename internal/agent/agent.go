// Package agent implements the core of the biology assistant: retrieve
// context chunks for a question, assemble a schema-constrained prompt, invoke
// the LLM, and parse the output into a validated structured answer. A
// conversational streaming path shares the retrieval plumbing but asks the
// model for markdown instead of JSON.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/biorag-go/internal/budget"
	"github.com/54b3r/biorag-go/internal/citations"
	"github.com/54b3r/biorag-go/internal/logging"
	"github.com/54b3r/biorag-go/internal/rag"
	"github.com/54b3r/biorag-go/internal/store"
)

// ChatModel is the slice of the Eino chat model surface the agent uses.
// Models built by the provider factory satisfy it.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

// Config holds the dependencies required to construct a BiologyAgent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel ChatModel

	// Retriever supplies semantically relevant chunks for each question.
	Retriever rag.Retriever

	// Citations resolves document titles to source URLs in assembled context.
	// May be nil, in which case links degrade to the unknown sentinel.
	Citations citations.Map

	// TopK is how many chunks to retrieve when the caller does not specify.
	// Defaults to 5 if zero.
	TopK int

	// SnippetChars truncates each chunk's text in the assembled context.
	// Zero keeps the full chunk text.
	SnippetChars int

	// History is the optional conversation store used by the chat path to
	// persist and replay prior turns. If nil, each chat turn is stateless.
	History store.ConversationStore

	// HistoryDepth is the number of prior turns (user+assistant pairs) to
	// inject per chat turn. Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context (system prompt + history + retrieved context + user message).
	// Chat history is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int

	// QueryTimeout bounds the model invocation of a structured query — the
	// dominant latency source. Retrieval and parsing run outside it.
	// Defaults to 60s if zero.
	QueryTimeout time.Duration
}

// BiologyAgent answers space-biology questions grounded in retrieved document
// chunks. Query returns a schema-validated structured answer; Chat streams a
// conversational markdown answer with multi-turn context.
type BiologyAgent struct {
	// model is the LLM backend.
	model ChatModel

	// retriever supplies context chunks per question.
	retriever rag.Retriever

	// citations resolves chunk titles to source URLs.
	citations citations.Map

	// topK is the default number of chunks retrieved per question.
	topK int

	// snippetChars truncates context chunk text, 0 = full text.
	snippetChars int

	// history is the optional conversation store for the chat path.
	history store.ConversationStore

	// historyDepth is the number of recent messages to inject per chat turn.
	historyDepth int

	// maxContextTokens is the estimated token budget for the full input context.
	maxContextTokens int

	// queryTimeout bounds the structured query's model call.
	queryTimeout time.Duration
}

// New constructs a BiologyAgent from the provided Config.
func New(cfg *Config) (*BiologyAgent, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("agent: Retriever must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}

	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}

	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &BiologyAgent{
		model:            cfg.ChatModel,
		retriever:        cfg.Retriever,
		citations:        cfg.Citations,
		topK:             topK,
		snippetChars:     cfg.SnippetChars,
		history:          cfg.History,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
		queryTimeout:     timeout,
	}, nil
}

// Query answers a question with a schema-validated structured answer.
//
// The flow is strict: retrieve context, fail with rag.EmptyContextError when
// nothing is found (the model is never prompted on empty context), invoke the
// model under the query timeout, then parse and validate the output. There
// are no partial answers — every failure carries its cause as a typed error:
// rag.ProviderError for an unreachable or timed-out backend,
// rag.SchemaViolationError for output that does not validate.
//
// topK == 0 selects the configured default.
func (a *BiologyAgent) Query(ctx context.Context, question string, topK int) (*StructuredAnswer, error) {
	log := logging.FromContext(ctx)

	if strings.TrimSpace(question) == "" {
		return nil, &rag.ConfigurationError{Field: "question", Reason: "must not be empty"}
	}
	if topK == 0 {
		topK = a.topK
	}

	docs, err := a.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &rag.EmptyContextError{Query: question}
	}

	contextBlock := AssembleContext(docs, a.citations, a.snippetChars)
	messages := []*schema.Message{
		schema.SystemMessage(structuredSystemPrompt),
		schema.UserMessage(buildQuestionMessage(question, contextBlock)),
	}

	// The timeout bounds only the model call — retrieval and parsing have
	// their own failure modes and are fast by comparison.
	mctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	out, err := a.model.Generate(mctx, messages)
	if err != nil {
		return nil, &rag.ProviderError{Provider: "chat model", Err: err}
	}

	answer, err := parseAnswer(out.Content)
	if err != nil {
		log.Warn("model output failed answer validation", slog.Any("error", err))
		return nil, err
	}

	log.Info("structured answer generated",
		slog.Int("context_chunks", len(docs)),
		slog.Int("hallazgos", len(answer.Reporte.Hallazgos)),
		slog.Int("grafo_nodes", len(answer.Grafo)),
	)
	return answer, nil
}

// Chat streams a conversational markdown answer to the provided writer.
// Prior turns of the conversation are injected from the history store, and
// the new turn is persisted after completion. Unlike Query, a retrieval
// failure or empty context is non-fatal here — the model answers from
// conversation context alone. topK == 0 selects the configured default.
func (a *BiologyAgent) Chat(ctx context.Context, conversationID, userMessage string, topK int, w io.Writer) error {
	log := logging.FromContext(ctx)

	if topK == 0 {
		topK = a.topK
	}
	messages := a.buildChatMessages(ctx, conversationID, userMessage, topK)

	sr, err := a.model.Stream(ctx, messages)
	if err != nil {
		return &rag.ProviderError{Provider: "chat model", Err: err}
	}
	defer sr.Close()

	var msgBuf strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &rag.ProviderError{Provider: "chat model", Err: err}
		}
		if msg != nil && msg.Content != "" {
			msgBuf.WriteString(msg.Content)
			if _, err := fmt.Fprint(w, msg.Content); err != nil {
				return fmt.Errorf("agent: write error: %w", err)
			}
		}
	}

	// Persist the turn to the conversation store (non-fatal on error).
	if a.history != nil {
		if err := a.history.Append(ctx, conversationID, store.RoleUser, userMessage); err != nil {
			log.Warn("history: failed to persist user message", slog.Any("error", err))
		}
		if err := a.history.Append(ctx, conversationID, store.RoleAssistant, msgBuf.String()); err != nil {
			log.Warn("history: failed to persist assistant message", slog.Any("error", err))
		}
	}

	return nil
}

// buildChatMessages constructs the message slice for a chat turn: system
// prompt, prior conversation turns, retrieved context, and the new user
// message, with history trimmed to the token budget.
func (a *BiologyAgent) buildChatMessages(ctx context.Context, conversationID, userMessage string, topK int) []*schema.Message {
	log := logging.FromContext(ctx)

	messages := []*schema.Message{
		schema.SystemMessage(chatSystemPrompt),
	}

	// Inject recent conversation history so the LLM has multi-turn context.
	var historyMsgs []*schema.Message
	if a.history != nil {
		prior, err := a.history.Recent(ctx, conversationID, a.historyDepth*2)
		if err != nil {
			log.Warn("history: failed to load prior messages", slog.Any("error", err))
		} else {
			for _, m := range prior {
				switch m.Role {
				case store.RoleUser:
					historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
				case store.RoleAssistant:
					historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
				}
			}
		}
	}

	docs, err := a.retriever.Retrieve(ctx, userMessage, topK)
	if err != nil {
		// Retrieval failure is non-fatal in chat — log and continue without context.
		log.Warn("retrieval failed, continuing without context", slog.Any("error", err))
	} else if len(docs) > 0 {
		contextBlock := AssembleContext(docs, a.citations, a.snippetChars)
		messages = append(messages, schema.SystemMessage("--- CONTEXTO RECUPERADO ---\n"+contextBlock))
	}

	// Add the current user message to the fixed set for budget calculation.
	fixed := append(messages, schema.UserMessage(userMessage)) //nolint:gocritic // intentional copy

	// Trim history oldest-first so the total estimated token count fits within
	// the configured context budget.
	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, a.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		log.Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	// Insert trimmed history between the system prompt and the rest of the
	// fixed messages. messages currently holds: [system, ...context]
	// We want: [system, ...history, ...context, user]
	result := make([]*schema.Message, 0, 1+len(historyMsgs)+len(messages)-1+1)
	result = append(result, messages[0])
	result = append(result, historyMsgs...)
	result = append(result, messages[1:]...)
	result = append(result, schema.UserMessage(userMessage))
	return result
}
