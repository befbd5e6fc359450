package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"chatbridge/internal/config"
)

type fakeChatModel struct {
	inputs [][]*schema.Message
	answer string
	err    error
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.answer, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func TestModelRespondKeepsSessionHistory(t *testing.T) {
	fake := &fakeChatModel{answer: "hello there"}
	m := NewModelWith(fake, "be brief")

	reply, err := m.Respond(context.Background(), Request{ChatInput: "hi", SessionID: "sess-a"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Shape != ShapeString || Normalize(reply, fallback) != "hello there" {
		t.Fatalf("unexpected reply %s", reply)
	}
	if _, err := m.Respond(context.Background(), Request{ChatInput: "again", SessionID: "sess-a"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	second := fake.inputs[1]
	// system, hi, hello there, again
	if len(second) != 4 || second[0].Role != schema.System || second[0].Content != "be brief" || second[3].Content != "again" {
		t.Fatalf("unexpected model input %+v", second)
	}

	if _, err := m.Respond(context.Background(), Request{ChatInput: "other", SessionID: "sess-b"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(fake.inputs[2]) != 2 {
		t.Fatalf("history leaked across sessions: %d messages", len(fake.inputs[2]))
	}

	m.Forget("sess-a")
	if _, err := m.Respond(context.Background(), Request{ChatInput: "fresh", SessionID: "sess-a"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(fake.inputs[3]) != 2 {
		t.Fatalf("history not forgotten: %d messages", len(fake.inputs[3]))
	}
}

func TestModelHistoryIsBounded(t *testing.T) {
	fake := &fakeChatModel{answer: "ok"}
	m := NewModelWith(fake, "")
	for i := 0; i < maxHistoryMessages; i++ {
		if _, err := m.Respond(context.Background(), Request{ChatInput: "q", SessionID: "s"}); err != nil {
			t.Fatalf("respond: %v", err)
		}
	}
	last := fake.inputs[len(fake.inputs)-1]
	if len(last) != maxHistoryMessages+2 {
		t.Fatalf("expected %d input messages, got %d", maxHistoryMessages+2, len(last))
	}
}

func TestModelPrimesHistoryFromStorage(t *testing.T) {
	fake := &fakeChatModel{answer: "ok"}
	m := NewModelWith(fake, "")
	loads := 0
	m.SetHistoryLoader(func(ctx context.Context, sessionID string) ([]HistoryTurn, error) {
		loads++
		if sessionID != "sess-old" {
			return nil, nil
		}
		return []HistoryTurn{
			{Content: "earlier question", IsUser: true},
			{Content: "earlier answer"},
			{Content: "follow up", IsUser: true},
		}, nil
	})

	if _, err := m.Respond(context.Background(), Request{ChatInput: "follow up", SessionID: "sess-old"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	first := fake.inputs[0]
	// system, earlier question, earlier answer, follow up
	if len(first) != 4 || first[1].Content != "earlier question" || first[2].Role != schema.Assistant || first[3].Content != "follow up" {
		t.Fatalf("unexpected primed input %+v", first)
	}

	if _, err := m.Respond(context.Background(), Request{ChatInput: "next", SessionID: "sess-old"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if loads != 1 || len(fake.inputs[1]) != 6 {
		t.Fatalf("expected one load and in-memory history, loads=%d input=%d", loads, len(fake.inputs[1]))
	}
}

func TestModelHistoryLoadFailureStillAnswers(t *testing.T) {
	fake := &fakeChatModel{answer: "ok"}
	m := NewModelWith(fake, "")
	m.SetHistoryLoader(func(ctx context.Context, sessionID string) ([]HistoryTurn, error) {
		return nil, errors.New("db down")
	})
	if _, err := m.Respond(context.Background(), Request{ChatInput: "hi", SessionID: "s"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(fake.inputs[0]) != 2 {
		t.Fatalf("expected system and user only, got %d", len(fake.inputs[0]))
	}
}

func TestModelRespondError(t *testing.T) {
	m := NewModelWith(&fakeChatModel{err: errors.New("quota")}, "")
	if _, err := m.Respond(context.Background(), Request{ChatInput: "hi", SessionID: "s"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewModelUnknownProvider(t *testing.T) {
	cfg := &config.Config{
		Responder: config.ResponderConfig{Mode: config.ResponderModel, Provider: "llama"},
		Providers: map[string]config.ProviderConfig{"llama": {Model: "x"}},
	}
	if _, err := NewModel(context.Background(), cfg); err == nil {
		t.Fatalf("expected invalid provider error")
	}
	cfg.Responder.Provider = "missing"
	if _, err := NewModel(context.Background(), cfg); err == nil {
		t.Fatalf("expected missing provider error")
	}
}
