package responder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"chatbridge/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const (
	defaultSystemPrompt = "You are a helpful assistant. Answer the user's latest message concisely."
	maxHistoryMessages  = 20
)

// HistoryTurn is one stored message of a session, oldest first.
type HistoryTurn struct {
	Content string
	IsUser  bool
}

// HistoryLoader returns the stored transcript of a session.
type HistoryLoader func(ctx context.Context, sessionID string) ([]HistoryTurn, error)

// Model answers turns with an LLM instead of the webhook. It keeps a short
// per-session history in memory so follow-up questions have context. With a
// HistoryLoader set, a session seen for the first time is primed from storage.
type Model struct {
	chatModel model.BaseChatModel
	system    string
	loader    HistoryLoader
	histories map[string][]*schema.Message
	mu        sync.RWMutex
}

// NewModel builds the chat model named by cfg.Responder.Provider.
func NewModel(ctx context.Context, cfg *config.Config) (*Model, error) {
	provider := cfg.Responder.Provider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelName := cfg.Responder.Model
	if modelName == "" {
		modelName = provCfg.Model
	}
	token := cfg.Responder.APIKey
	if token == "" {
		token = provCfg.APIKey
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  token,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: token,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    token,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return NewModelWith(chatModel, ""), nil
}

// NewModelWith wraps an already built chat model.
func NewModelWith(chatModel model.BaseChatModel, systemPrompt string) *Model {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Model{
		chatModel: chatModel,
		system:    systemPrompt,
		histories: make(map[string][]*schema.Message),
	}
}

// SetHistoryLoader primes sessions from storage after a restart or when
// another instance served their earlier turns.
func (m *Model) SetHistoryLoader(loader HistoryLoader) {
	m.mu.Lock()
	m.loader = loader
	m.mu.Unlock()
}

// Respond generates an answer and returns it as a string reply.
func (m *Model) Respond(ctx context.Context, req Request) (Reply, error) {
	if m.chatModel == nil {
		return Reply{}, errors.New("chat model not initialized")
	}
	user := schema.UserMessage(req.ChatInput)
	input := m.buildInput(m.history(ctx, req), user)

	resp, err := m.chatModel.Generate(ctx, input)
	if err != nil {
		return Reply{}, fmt.Errorf("generate reply: %w", err)
	}
	debugLog("[responder] session %s model reply: %s", req.SessionID, resp.Content)

	m.appendHistory(req.SessionID, user, schema.AssistantMessage(resp.Content, nil))
	return TextReply(resp.Content), nil
}

// Forget drops the cached history of a deleted session.
func (m *Model) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.histories, sessionID)
	m.mu.Unlock()
}

func (m *Model) history(ctx context.Context, req Request) []*schema.Message {
	m.mu.RLock()
	history, seen := m.histories[req.SessionID]
	loader := m.loader
	m.mu.RUnlock()
	if seen || loader == nil {
		return history
	}

	turns, err := loader(ctx, req.SessionID)
	if err != nil {
		log.Printf("load history for session %s: %v", req.SessionID, err)
		return nil
	}
	// the current message is already stored by the time the model is asked
	if n := len(turns); n > 0 && turns[n-1].IsUser && turns[n-1].Content == req.ChatInput {
		turns = turns[:n-1]
	}
	if len(turns) > maxHistoryMessages {
		turns = turns[len(turns)-maxHistoryMessages:]
	}
	primed := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		if turn.IsUser {
			primed = append(primed, schema.UserMessage(turn.Content))
		} else {
			primed = append(primed, schema.AssistantMessage(turn.Content, nil))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.histories[req.SessionID]; ok {
		return existing
	}
	m.histories[req.SessionID] = primed
	return primed
}

func (m *Model) buildInput(history []*schema.Message, user *schema.Message) []*schema.Message {
	input := make([]*schema.Message, 0, len(history)+2)
	input = append(input, schema.SystemMessage(m.system))
	input = append(input, history...)
	return append(input, user)
}

func (m *Model) appendHistory(sessionID string, msgs ...*schema.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := append(m.histories[sessionID], msgs...)
	if len(history) > maxHistoryMessages {
		history = append([]*schema.Message(nil), history[len(history)-maxHistoryMessages:]...)
	}
	m.histories[sessionID] = history
}
