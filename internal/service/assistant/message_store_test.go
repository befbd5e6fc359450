package assistant

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"chatbridge/internal/models"
)

func TestListMessagesKeepsInsertionOrderOnTimestampTies(t *testing.T) {
	svc, _ := newTestService(t, nil)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var ids []string
	for i := 0; i < 6; i++ {
		msg, err := svc.AppendMessage(ctx, models.Message{SessionID: session.ID, Content: fmt.Sprintf("m%d", i), IsUser: i%2 == 0})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	messages, err := svc.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != len(ids) {
		t.Fatalf("expected %d messages, got %d", len(ids), len(messages))
	}
	for i, m := range messages {
		if m.ID != ids[i] {
			t.Fatalf("position %d: want %s got %s", i, ids[i], m.ID)
		}
		if i > 0 && m.CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("created_at decreased at %d", i)
		}
	}
}

func TestAppendMessageRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)
	html := "<b>x</b>"

	user, err := svc.AppendMessage(ctx, models.Message{SessionID: session.ID, Content: "q", IsUser: true, HTMLContent: &html})
	if err != nil {
		t.Fatalf("append user: %v", err)
	}
	if !strings.HasPrefix(user.ID, "msg-") || user.HTMLContent != nil {
		t.Fatalf("user message should get an id and no html: %+v", user)
	}
	if _, err := svc.AppendMessage(ctx, models.Message{SessionID: session.ID, Content: "a", HTMLContent: &html}); err != nil {
		t.Fatalf("append bot: %v", err)
	}

	messages, err := svc.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if !messages[0].IsUser || messages[0].HTMLContent != nil {
		t.Fatalf("unexpected user row %+v", messages[0])
	}
	if messages[1].IsUser || messages[1].HTMLContent == nil || *messages[1].HTMLContent != html {
		t.Fatalf("unexpected bot row %+v", messages[1])
	}
}

func TestListMessagesUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, nil)
	messages, err := svc.ListMessages(context.Background(), "sess-nope")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if messages == nil || len(messages) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", messages)
	}
}

func TestAppendMessageRequiresSession(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.AppendMessage(context.Background(), models.Message{SessionID: "sess-ghost", Content: "x", IsUser: true}); err == nil {
		t.Fatalf("expected foreign key error")
	}
}
