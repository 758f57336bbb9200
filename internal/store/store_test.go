package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memobot-ai/memobot/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memobot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func appendText(t *testing.T, s *Store, convID string, role models.Role, content string) models.Message {
	t.Helper()
	msg := models.Message{ConvID: convID, Role: role, Content: content}
	require.NoError(t, s.AppendMessage(context.Background(), &msg))
	return msg
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-1", "First chat")
	require.NoError(t, err)
	require.Equal(t, "conv-1", conv.ID)
	require.False(t, conv.CreatedAt.IsZero())

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, "First chat", got.Title)
}

func TestCreateConversation_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "conv-1", "a")
	require.NoError(t, err)

	_, err = s.CreateConversation(ctx, "conv-1", "b")
	require.ErrorIs(t, err, ErrConversationExists)
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetConversation(context.Background(), "missing")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestNewConversation_GeneratesUUID(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.NewConversation(context.Background(), "New Chat")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	other, err := s.NewConversation(context.Background(), "New Chat")
	require.NoError(t, err)
	require.NotEqual(t, conv.ID, other.ID)
}

func TestEnsureConversation_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "conv-1", "New Chat"))
	require.NoError(t, s.EnsureConversation(ctx, "conv-1", "Other title"))

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, "New Chat", conv.Title, "ensure must not overwrite an existing row")
}

func TestAppendMessage_Retrievable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "conv-1", "chat")
	require.NoError(t, err)

	sent := appendText(t, s, "conv-1", models.RoleUser, "hello there")
	require.NotZero(t, sent.ID)
	require.False(t, sent.Timestamp.IsZero())

	msgs, err := s.ListMessages(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello there", msgs[0].Content)
	require.Equal(t, models.RoleUser, msgs[0].Role)
}

func TestAppendMessage_OrphanFails(t *testing.T) {
	s := newTestStore(t)
	msg := models.Message{ConvID: "nope", Role: models.RoleUser, Content: "hi"}
	err := s.AppendMessage(context.Background(), &msg)
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAppendMessage_InvalidRoleFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "conv-1", "chat")
	require.NoError(t, err)

	msg := models.Message{ConvID: "conv-1", Role: "system", Content: "hi"}
	err = s.AppendMessage(ctx, &msg)
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestDeleteConversation_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "conv-1", "chat")
	require.NoError(t, err)
	appendText(t, s, "conv-1", models.RoleUser, "q1")
	appendText(t, s, "conv-1", models.RoleAssistant, "a1")

	require.NoError(t, s.DeleteConversation(ctx, "conv-1"))

	_, err = s.GetConversation(ctx, "conv-1")
	require.ErrorIs(t, err, ErrConversationNotFound)

	msgs, err := s.ListMessages(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestDeleteConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteConversation(context.Background(), "missing")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestTouch_RefreshesUpdatedAtOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-1", "chat")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Touch(ctx, "conv-1"))

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, got.UpdatedAt.After(conv.UpdatedAt))
	require.Equal(t, conv.CreatedAt, got.CreatedAt)
}

func TestUpdateTitle_TriggersTouch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-1", "chat")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.UpdateConversationTitle(ctx, "conv-1", "renamed"))

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Title)
	require.True(t, got.UpdatedAt.After(conv.UpdatedAt), "plain UPDATE must refresh updated_at")
	require.Equal(t, conv.CreatedAt, got.CreatedAt)
}

func TestAppendMessage_TouchesConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-1", "chat")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	appendText(t, s, "conv-1", models.RoleAssistant, "hello")

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, got.UpdatedAt.After(conv.UpdatedAt))
}

func TestAppendMessage_FirstUserMessageSetsTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "conv-1", "New Chat"))
	appendText(t, s, "conv-1", models.RoleUser, "what is the capital of France?")

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, "what is the capital of France?", conv.Title)

	// Later user messages must not rename the conversation.
	appendText(t, s, "conv-1", models.RoleAssistant, "Paris")
	appendText(t, s, "conv-1", models.RoleUser, "and of Germany?")

	conv, err = s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, "what is the capital of France?", conv.Title)
}

func TestAppendMessage_LongTitleTruncated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureConversation(ctx, "conv-1", "New Chat"))
	long := strings.Repeat("x", 80)
	appendText(t, s, "conv-1", models.RoleUser, long)

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("x", 50)+"...", conv.Title)
}

func TestListMessages_OrderAndSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "conv-1", "chat")
	require.NoError(t, err)

	var ids []int64
	for _, content := range []string{"one", "two", "three"} {
		msg := appendText(t, s, "conv-1", models.RoleUser, content)
		ids = append(ids, msg.ID)
	}

	msgs, err := s.ListMessages(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		require.Greater(t, msgs[i].ID, msgs[i-1].ID)
		require.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}

	// Re-querying reproduces the same result set.
	again, err := s.ListMessages(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Equal(t, msgs, again)

	// A since bound resumes after the given id.
	tail, err := s.ListMessages(ctx, "conv-1", ids[0])
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Equal(t, "two", tail[0].Content)
}

func TestListMessages_ScopedToConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "conv-1", "a")
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "conv-2", "b")
	require.NoError(t, err)
	appendText(t, s, "conv-1", models.RoleUser, "for one")
	appendText(t, s, "conv-2", models.RoleUser, "for two")

	msgs, err := s.ListMessages(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "for one", msgs[0].Content)
}

func TestListConversations_OnlyWithMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "empty", "never used")
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "older", "older")
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "newer", "newer")
	require.NoError(t, err)

	appendText(t, s, "older", models.RoleUser, "hi")
	time.Sleep(5 * time.Millisecond)
	appendText(t, s, "newer", models.RoleUser, "hi")

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, "newer", convs[0].ID, "most recently updated first")
	require.Equal(t, "older", convs[1].ID)
}
