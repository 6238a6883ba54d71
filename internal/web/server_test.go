package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/internal/artifact"
	"github.com/strandhq/strand/internal/auth"
	"github.com/strandhq/strand/internal/cache"
	"github.com/strandhq/strand/internal/chat"
	"github.com/strandhq/strand/internal/history"
	"github.com/strandhq/strand/internal/log"
	"github.com/strandhq/strand/internal/vote"
	"github.com/strandhq/strand/internal/web"
	"github.com/strandhq/strand/internal/web/handlers"
)

// memChatStore keeps chats in memory and answers ownership lookups.
type memChatStore struct {
	mu    sync.Mutex
	chats map[uuid.UUID]*chat.Chat
}

func newMemChatStore() *memChatStore {
	return &memChatStore{chats: make(map[uuid.UUID]*chat.Chat)}
}

func (s *memChatStore) CreateChat(_ context.Context, c *chat.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[c.ID] = c
	return nil
}

func (s *memChatStore) IsOwnedBy(_ context.Context, chatID uuid.UUID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	return ok && c.OwnerID == userID, nil
}

func (s *memChatStore) ListChats(_ context.Context, workspaceID string, limit, offset int) ([]*chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*chat.Chat
	for _, c := range s.chats {
		if c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

// memVoteStore is an in-memory authoritative vote store.
type memVoteStore struct {
	mu    sync.Mutex
	votes map[uuid.UUID]map[uuid.UUID]vote.Vote
}

func newMemVoteStore() *memVoteStore {
	return &memVoteStore{votes: make(map[uuid.UUID]map[uuid.UUID]vote.Vote)}
}

func (s *memVoteStore) UpsertVote(_ context.Context, v vote.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.votes[v.ChatID] == nil {
		s.votes[v.ChatID] = make(map[uuid.UUID]vote.Vote)
	}
	s.votes[v.ChatID][v.MessageID] = v
	return nil
}

func (s *memVoteStore) ListVotes(_ context.Context, chatID uuid.UUID) ([]vote.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vote.Vote, 0, len(s.votes[chatID]))
	for _, v := range s.votes[chatID] {
		out = append(out, v)
	}
	return out, nil
}

func (s *memVoteStore) records(chatID uuid.UUID) []vote.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vote.Vote, 0, len(s.votes[chatID]))
	for _, v := range s.votes[chatID] {
		out = append(out, v)
	}
	return out
}

type testServer struct {
	srv       *web.Server
	chats     *memChatStore
	votes     *memVoteStore
	voteCache *vote.Cache
	artifacts *artifact.MemStore
	transport *chat.FakeTransport
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := log.NewNop()
	chats := newMemChatStore()
	voteStore := newMemVoteStore()
	voteCache := vote.NewCache(voteStore, voteStore, nil, logger)
	artifacts := artifact.NewMemStore()
	transport := chat.NewFakeTransport(
		chat.Event{Type: chat.EventTextDelta, Text: "hello"},
		chat.Event{Type: chat.EventFinish},
	)

	pager, err := history.New(chats, cache.NewMemory(), 20, logger)
	require.NoError(t, err)

	sessions := handlers.NewSessions(handlers.SessionsConfig{
		Transport: transport,
		Artifacts: artifacts,
		History:   pager,
		Logger:    logger,
	})

	srv, err := web.NewServer(web.ServerConfig{
		Logger:    logger,
		Sessions:  sessions,
		ChatStore: chats,
		Votes: handlers.NewVotes(handlers.VoteConfig{
			Logger:    logger,
			Cache:     voteCache,
			Resolver:  auth.HeaderResolver{},
			Ownership: chats,
		}),
		Pager:     pager,
		Artifacts: artifacts,
		Resolver:  auth.HeaderResolver{},
	})
	require.NoError(t, err)

	return &testServer{
		srv:       srv,
		chats:     chats,
		votes:     voteStore,
		voteCache: voteCache,
		artifacts: artifacts,
		transport: transport,
	}
}

func (ts *testServer) ownedChat(t *testing.T, userID string) uuid.UUID {
	t.Helper()
	c := &chat.Chat{ID: uuid.New(), OwnerID: userID, WorkspaceID: "ws1", Title: "t"}
	require.NoError(t, ts.chats.CreateChat(context.Background(), c))
	return c.ID
}

func (ts *testServer) do(method, target, body, userID string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		r.Header.Set(auth.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, r)
	return rec
}

func TestVoteQuery_MissingChatID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.do("GET", "/vote", "", "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoteQuery_UnknownChat(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.do("GET", "/vote?chatId="+uuid.NewString(), "", "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoteQuery_NotOwned(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	chatID := ts.ownedChat(t, "someone-else")
	rec := ts.do("GET", "/vote?chatId="+chatID.String(), "", "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoteQuery_Unauthorized(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	chatID := ts.ownedChat(t, "u1")
	rec := ts.do("GET", "/vote?chatId="+chatID.String(), "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVoteQuery_OwnedChatNoVotes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	chatID := ts.ownedChat(t, "u1")
	rec := ts.do("GET", "/vote?chatId="+chatID.String(), "", "u1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestVoteMutation_UpsertReplacesNotAppends(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	chatID := ts.ownedChat(t, "u1")
	messageID := uuid.New()

	body := `{"chatId":"` + chatID.String() + `","messageId":"` + messageID.String() + `","type":"up"}`
	rec := ts.do("PATCH", "/vote", body, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "voted", rec.Body.String())

	records := ts.votes.records(chatID)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsUpvoted)

	body = `{"chatId":"` + chatID.String() + `","messageId":"` + messageID.String() + `","type":"down"}`
	rec = ts.do("PATCH", "/vote", body, "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	records = ts.votes.records(chatID)
	require.Len(t, records, 1)
	assert.False(t, records[0].IsUpvoted)
}

func TestVoteMutation_MissingFields(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	chatID := ts.ownedChat(t, "u1")

	for _, body := range []string{
		`{}`,
		`{"chatId":"` + chatID.String() + `"}`,
		`{"chatId":"` + chatID.String() + `","messageId":"` + uuid.NewString() + `"}`,
		`{"chatId":"` + chatID.String() + `","messageId":"` + uuid.NewString() + `","type":"sideways"}`,
		`not json`,
	} {
		rec := ts.do("PATCH", "/vote", body, "u1")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestVoteMutation_UnknownChat(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	body := `{"chatId":"` + uuid.NewString() + `","messageId":"` + uuid.NewString() + `","type":"up"}`
	rec := ts.do("PATCH", "/vote", body, "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatSend_StreamsAndSeals(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	body := `{"workspaceId":"ws1","model":"gpt-4o","message":"write a haiku"}`
	rec := ts.do("POST", "/api/chat", body, "u1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "event: text-delta")
	assert.Contains(t, out, `{"text":"hello"}`)
	assert.Contains(t, out, "event: finish")
	assert.Contains(t, out, "event: sealed")

	// The submission created an owned chat row.
	require.Len(t, ts.chats.chats, 1)
	for _, c := range ts.chats.chats {
		assert.Equal(t, "u1", c.OwnerID)
		assert.Equal(t, "write a haiku", c.Title)
	}
}

func TestChatSend_Validation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	rec := ts.do("POST", "/api/chat", `{"workspaceId":"ws1","message":"hi"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do("POST", "/api/chat", `{"workspaceId":"ws1","message":"   "}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do("POST", "/api/chat", `{"message":"hi"}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do("POST", "/api/chat", `{"chatId":"nope","workspaceId":"ws1","message":"hi"}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatSend_UnknownChatID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	body := `{"chatId":"` + uuid.NewString() + `","workspaceId":"ws1","message":"hi"}`
	rec := ts.do("POST", "/api/chat", body, "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatStop_NoTurnInFlight(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	chatID := ts.ownedChat(t, "u1")

	rec := ts.do("POST", "/api/chat/"+chatID.String()+"/stop", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["stopped"])
}

func TestHistory_List(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.ownedChat(t, "u1")

	rec := ts.do("GET", "/api/history?workspaceId=ws1", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	var page history.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Chats, 1)
	assert.False(t, page.HasMore)

	rec = ts.do("GET", "/api/history", "", "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do("GET", "/api/history?workspaceId=ws1&page=-1", "", "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArtifact_DescribeAndDiff(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ctx := context.Background()

	id, err := ts.artifacts.Create(ctx, uuid.New(), "code", "main.go")
	require.NoError(t, err)
	_, err = ts.artifacts.Append(ctx, id, "a\n")
	require.NoError(t, err)
	_, err = ts.artifacts.Append(ctx, id, "a\nb\n")
	require.NoError(t, err)

	rec := ts.do("GET", "/api/artifact/"+id.String(), "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Kind     string `json:"kind"`
		Sequence *int   `json:"sequence"`
		Content  string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "code", resp.Kind)
	require.NotNil(t, resp.Sequence)
	assert.Equal(t, 1, *resp.Sequence)
	assert.Equal(t, "a\nb\n", resp.Content)

	rec = ts.do("GET", "/api/artifact/"+id.String()+"/diff?from=0&to=1", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var ops []artifact.DiffOp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ops))
	assert.Equal(t, []artifact.DiffOp{
		{Kind: artifact.DiffEqual, Line: "a"},
		{Kind: artifact.DiffInsert, Line: "b"},
	}, ops)

	rec = ts.do("GET", "/api/artifact/"+id.String()+"/diff?from=1&to=0", "", "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do("GET", "/api/artifact/"+uuid.NewString(), "", "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do("GET", "/api/artifact/"+id.String()+"/version/9", "", "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArtifact_ZeroVersions(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	id, err := ts.artifacts.Create(context.Background(), uuid.New(), "text", "Notes")
	require.NoError(t, err)

	rec := ts.do("GET", "/api/artifact/"+id.String(), "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"content"`)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.do("GET", "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
