// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/logging"
	"github.com/jeranaias/flai-tui/internal/model"
)

// =============================================================================
// HELPERS
// =============================================================================

type fixture struct {
	srv    *Server
	ts     *httptest.Server
	client *api.Client
	token  string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.Secret == nil {
		opts.Secret = []byte("test-secret")
	}
	srv, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	f := &fixture{srv: srv, ts: ts}
	f.client = api.NewClient(ts.URL).
		WithRateLimit(0).
		WithTokenSource(api.TokenFunc(func() string { return f.token }))
	return f
}

// login signs in with the default account.
func (f *fixture) login(t *testing.T) *model.LoginResult {
	t.Helper()
	res, err := f.client.Login(context.Background(), DefaultEmail, DefaultPassword)
	require.NoError(t, err)
	f.token = res.Token.AccessToken
	return res
}

// send streams one message and returns the events it produced.
func (f *fixture) send(t *testing.T, req api.SendRequest) ([]api.StreamEvent, bool) {
	t.Helper()
	if req.ProviderID == "" {
		req.ProviderID = "gemini"
		req.ModelName = "gemini-2.5-flash"
	}
	reader, err := f.client.StreamMessage(context.Background(), req)
	require.NoError(t, err)
	defer reader.Close()

	var events []api.StreamEvent
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events, reader.SawDone()
}

func contentOf(t *testing.T, events []api.StreamEvent, typ model.SegmentType) string {
	t.Helper()
	var sb strings.Builder
	for _, ev := range events {
		if ev.Type != typ {
			continue
		}
		text, err := ev.Content()
		require.NoError(t, err)
		sb.WriteString(text)
	}
	return sb.String()
}

func byID(msgs []model.Message) map[string]model.Message {
	out := make(map[string]model.Message, len(msgs))
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out
}

// =============================================================================
// AUTH TESTS
// =============================================================================

func TestLogin(t *testing.T) {
	f := newFixture(t, Options{})

	res := f.login(t)
	require.NotNil(t, res.User)
	assert.Equal(t, DefaultEmail, res.User.Email)
	assert.Equal(t, "dev", res.User.Username)
	assert.Equal(t, "Bearer", res.Token.TokenType)
	assert.Equal(t, int64(AccessTokenTTL/time.Second), res.Token.ExpiresIn)

	claims, err := f.srv.Tokens().Parse(res.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, DefaultEmail, claims.Email)
}

func TestLogin_EmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.client.Login(context.Background(), " DEV@flai.local ", DefaultPassword)
	assert.NoError(t, err)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t, Options{Email: "ana@example.com", Password: "s3cret"})

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "ana@example.com", "nope"},
		{"unknown email", "bob@example.com", "s3cret"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.client.Login(context.Background(), tt.email, tt.password)
			require.Error(t, err)
			assert.True(t, api.IsAPI(err))
			assert.Equal(t, "Invalid email or password", api.UserMessage(err))
		})
	}
}

func TestLogin_TOTP(t *testing.T) {
	secret, err := GenerateTOTPSecret(DefaultEmail)
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, Options{TOTPSecret: secret, Now: func() time.Time { return now }})

	login := func(code string) error {
		_, err := f.client.LoginWithCode(context.Background(), api.LoginRequest{
			Email: DefaultEmail, Password: DefaultPassword, Code: code,
		})
		return err
	}

	err = login("")
	require.Error(t, err)
	assert.Equal(t, "Verification code required", api.UserMessage(err))

	err = login("000000x")
	require.Error(t, err)
	assert.Equal(t, "Invalid verification code", api.UserMessage(err))

	stale, err := totp.GenerateCode(secret, now.Add(-5*time.Minute))
	require.NoError(t, err)
	err = login(stale)
	require.Error(t, err)
	assert.Equal(t, "Invalid verification code", api.UserMessage(err))

	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.NoError(t, login(code))

	// the password is checked before the code
	_, err = f.client.LoginWithCode(context.Background(), api.LoginRequest{
		Email: DefaultEmail, Password: "nope", Code: code,
	})
	assert.Equal(t, "Invalid email or password", api.UserMessage(err))
}

func TestAuth_RejectsMissingAndInvalidTokens(t *testing.T) {
	f := newFixture(t, Options{})
	var unauthorized atomic.Int32
	f.client.OnUnauthorized(func() { unauthorized.Add(1) })

	_, err := f.client.ListProviders(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))

	f.token = "not-a-jwt"
	_, err = f.client.ListProviders(context.Background())
	assert.True(t, api.IsUnauthorized(err))

	other, err := New(Options{Secret: []byte("another-secret")})
	require.NoError(t, err)
	pair, err := other.Tokens().Issue(model.User{ID: "u1", Email: DefaultEmail})
	require.NoError(t, err)
	f.token = pair.AccessToken
	_, err = f.client.ListProviders(context.Background())
	assert.True(t, api.IsUnauthorized(err))

	assert.Equal(t, int32(3), unauthorized.Load())
}

func TestAuth_ExpiredToken(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var elapsed atomic.Int64
	f := newFixture(t, Options{Now: func() time.Time { return start.Add(time.Duration(elapsed.Load())) }})
	f.login(t)

	_, err := f.client.ListProviders(context.Background())
	require.NoError(t, err)

	elapsed.Store(int64(AccessTokenTTL + time.Minute))
	_, err = f.client.ListProviders(context.Background())
	assert.True(t, api.IsUnauthorized(err))
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	tm := NewTokenManager([]byte("secret"), nil)

	// {"alg":"none"} with user claims and no signature
	token := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJ1c2VyX2lkIjoidTEiLCJleHAiOjQxMDI0NDQ4MDB9."
	_, err := tm.Parse(token)
	assert.Error(t, err)
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversationLifecycle(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	ctx := context.Background()

	first, err := f.client.CreateConversation(ctx)
	require.NoError(t, err)
	second, err := f.client.CreateConversation(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	page, err := f.client.ListConversations(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, second, page.Records[0].ID, "newest first")
	assert.Equal(t, first, page.Records[1].ID)

	msgs, err := f.client.GetConversation(ctx, first)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, f.client.DeleteConversation(ctx, first))
	_, err = f.client.GetConversation(ctx, first)
	require.Error(t, err)
	assert.Equal(t, "Conversation not found", api.UserMessage(err))

	err = f.client.DeleteConversation(ctx, first)
	assert.Error(t, err)
}

func TestListConversations_Pagination(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	ctx := context.Background()

	for range 5 {
		_, err := f.client.CreateConversation(ctx)
		require.NoError(t, err)
	}

	page, err := f.client.ListConversations(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Current)
	assert.Len(t, page.Records, 2)
	assert.True(t, page.HasMore())

	page, err = f.client.ListConversations(ctx, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.NotNil(t, page.Records)
}

func TestListProviders(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)

	providers, err := f.client.ListProviders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultProviders(), providers)

	m, ok := model.FindModel(providers, "gemini/gemini-2.5-flash")
	require.True(t, ok)
	assert.True(t, m.Reasoning)
}

func TestGenerateTitle(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	ctx := context.Background()

	conv, err := f.client.CreateConversation(ctx)
	require.NoError(t, err)

	title, err := f.client.GenerateTitle(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConversationTitle, title.Title)

	f.send(t, api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "how do goroutines talk to each other in practice"})

	title, err = f.client.GenerateTitle(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "How do goroutines talk to each", title.Title)
	assert.NotEmpty(t, title.Icon)

	page, err := f.client.ListConversations(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, title.Title, page.Records[0].Title)
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestSendMessage_StreamsReply(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	conv, err := f.client.CreateConversation(context.Background())
	require.NoError(t, err)

	events, sawDone := f.send(t, api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "  hello there  "})

	assert.True(t, sawDone)
	require.NotEmpty(t, events)
	assistantID := events[0].MessageID
	assert.NotEmpty(t, assistantID)
	for _, ev := range events {
		assert.Equal(t, assistantID, ev.MessageID)
	}

	assert.Equal(t, model.SegmentReasoning, events[0].Type, "reasoning model thinks first")
	assert.NotEmpty(t, contentOf(t, events, model.SegmentReasoning))
	assert.Equal(t, "Echo: hello there", contentOf(t, events, model.SegmentMessage))

	last := events[len(events)-1]
	require.Equal(t, api.EventMetaInfo, last.Type)
	meta, err := last.MetaInfo()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", meta.ModelName)
	assert.Equal(t, "Google", meta.ProviderName)
	assert.Equal(t, 2, meta.PromptTokenCount)
	assert.Equal(t, 3, meta.ResponseTokenCount)

	msgs, err := f.client.GetConversation(context.Background(), conv)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	stored := byID(msgs)
	assert.Equal(t, "hello there", stored["u1"].Text(), "prompt is trimmed")
	assert.True(t, stored["u1"].IsRoot())
	reply := stored[assistantID]
	assert.Equal(t, "u1", reply.ParentID)
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Equal(t, "Echo: hello there", reply.Text())
	require.NotNil(t, reply.MetaInfo)
	assert.Equal(t, meta.TotalTokens(), reply.MetaInfo.TotalTokens())
}

func TestSendMessage_NonReasoningModel(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	conv, err := f.client.CreateConversation(context.Background())
	require.NoError(t, err)

	events, _ := f.send(t, api.SendRequest{
		ID: "u1", ConversationID: conv, Prompt: "hi",
		ProviderID: "openai", ModelName: "gpt-4o-mini",
	})
	assert.Empty(t, contentOf(t, events, model.SegmentReasoning))
	assert.Equal(t, model.SegmentMessage, events[0].Type)
}

func TestSendMessage_FollowsMessagePath(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	conv, err := f.client.CreateConversation(context.Background())
	require.NoError(t, err)

	events, _ := f.send(t, api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "one"})
	a1 := events[0].MessageID
	f.send(t, api.SendRequest{ID: "u2", ConversationID: conv, Prompt: "two", MessagePath: []string{"u1", a1}})

	msgs, err := f.client.GetConversation(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, a1, byID(msgs)["u2"].ParentID)
}

func TestSendMessage_RetryAddsSiblingReply(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	conv, err := f.client.CreateConversation(context.Background())
	require.NoError(t, err)

	first, _ := f.send(t, api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "hello"})
	second, _ := f.send(t, api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "ignored on retry"})

	assert.NotEqual(t, first[0].MessageID, second[0].MessageID)
	assert.Equal(t, "Echo (take 2): ignored on retry", contentOf(t, second, model.SegmentMessage))

	msgs, err := f.client.GetConversation(context.Background(), conv)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	stored := byID(msgs)
	assert.Equal(t, "hello", stored["u1"].Text(), "the stored user message is kept")
	assert.Equal(t, "u1", stored[first[0].MessageID].ParentID)
	assert.Equal(t, "u1", stored[second[0].MessageID].ParentID)
}

func TestSendMessage_Grounding(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	conv, err := f.client.CreateConversation(context.Background())
	require.NoError(t, err)

	events, _ := f.send(t, api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "search for the history of Go"})

	var grounding *model.GroundingData
	for _, ev := range events {
		if ev.Type == api.EventGrounding {
			g, err := ev.Grounding()
			require.NoError(t, err)
			grounding = &g
		}
	}
	require.NotNil(t, grounding)
	assert.Len(t, grounding.Sources(), 2)
	require.Len(t, grounding.GroundingSupports, 2)

	text := contentOf(t, events, model.SegmentMessage)
	for _, s := range grounding.GroundingSupports {
		require.NotNil(t, s.Segment.StartIndex)
		assert.Equal(t, s.Segment.Text, text[*s.Segment.StartIndex:s.Segment.EndIndex])
	}

	msgs, err := f.client.GetConversation(context.Background(), conv)
	require.NoError(t, err)
	reply := byID(msgs)[events[0].MessageID]
	require.NotNil(t, reply.MetaInfo)
	assert.NotNil(t, reply.MetaInfo.GoogleGroundingData, "stored reply keeps its grounding")
}

func TestSendMessage_Rejections(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	conv, err := f.client.CreateConversation(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name string
		req  api.SendRequest
		want string
	}{
		{"unknown conversation", api.SendRequest{ID: "u1", ConversationID: "nope", Prompt: "hi"}, "Conversation not found"},
		{"empty prompt", api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "  \n "}, "Prompt cannot be empty"},
		{"unknown path", api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "hi", MessagePath: []string{"ghost"}}, "Invalid message path"},
		{"unknown provider", api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "hi", ProviderID: "acme", ModelName: "x"}, "Invalid provider ID"},
		{"unknown model", api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "hi", ProviderID: "gemini", ModelName: "x"}, "Invalid model name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.req.ProviderID == "" {
				tt.req.ProviderID = "gemini"
				tt.req.ModelName = "gemini-2.5-flash"
			}
			_, err := f.client.StreamMessage(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, api.IsAPI(err))
			assert.Equal(t, tt.want, api.UserMessage(err))
		})
	}

	msgs, err := f.client.GetConversation(context.Background(), conv)
	require.NoError(t, err)
	assert.Empty(t, msgs, "rejected sends store nothing")
}

func TestSendMessage_CancelKeepsPartialReply(t *testing.T) {
	f := newFixture(t, Options{
		ChunkDelay: 20 * time.Millisecond,
		Reply: func(ReplyRequest) Reply {
			return Reply{Text: strings.Repeat("word ", 50)}
		},
	})
	f.login(t)
	conv, err := f.client.CreateConversation(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reader, err := f.client.StreamMessage(ctx, api.SendRequest{
		ID: "u1", ConversationID: conv, Prompt: "talk", ProviderID: "gemini", ModelName: "gemini-2.5-flash",
	})
	require.NoError(t, err)
	ev, err := reader.Next()
	require.NoError(t, err)
	cancel()
	reader.Close()

	require.Eventually(t, func() bool {
		msgs, err := f.client.GetConversation(context.Background(), conv)
		return err == nil && len(msgs) == 2
	}, 2*time.Second, 20*time.Millisecond)

	msgs, err := f.client.GetConversation(context.Background(), conv)
	require.NoError(t, err)
	reply := byID(msgs)[ev.MessageID]
	assert.NotEmpty(t, reply.Text())
	assert.Less(t, len(reply.Text()), 250)
	assert.Nil(t, reply.MetaInfo)
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestDeleteMessages(t *testing.T) {
	f := newFixture(t, Options{})
	f.login(t)
	ctx := context.Background()
	conv, err := f.client.CreateConversation(ctx)
	require.NoError(t, err)

	events, _ := f.send(t, api.SendRequest{ID: "u1", ConversationID: conv, Prompt: "one"})
	a1 := events[0].MessageID
	events, _ = f.send(t, api.SendRequest{ID: "u2", ConversationID: conv, Prompt: "two", MessagePath: []string{"u1", a1}})
	a2 := events[0].MessageID

	// deleting a1 moves u2 under u1
	err = f.client.DeleteMessages(ctx, api.DeleteMessagesRequest{ID: a1, ConversationID: conv, ParentID: "u1"})
	require.NoError(t, err)
	msgs, err := f.client.GetConversation(ctx, conv)
	require.NoError(t, err)
	stored := byID(msgs)
	assert.NotContains(t, stored, a1)
	assert.Equal(t, "u1", stored["u2"].ParentID)

	err = f.client.DeleteMessages(ctx, api.DeleteMessagesRequest{IDs: []string{"u2", a2}, ConversationID: conv})
	require.NoError(t, err)
	msgs, err = f.client.GetConversation(ctx, conv)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	err = f.client.DeleteMessages(ctx, api.DeleteMessagesRequest{ConversationID: conv})
	require.Error(t, err)
	assert.Equal(t, "Ids and id cannot be both empty", api.UserMessage(err))
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})

	resp, err := http.Get(f.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Code int            `json:"code"`
		Data HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "ok", env.Data.Status)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Options{RequestsPerSecond: 1})

	codes := make([]int, 0, 3)
	for range 3 {
		resp, err := http.Get(f.ts.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logging.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, codeInternal, env.Code)
}

func TestScriptedReply(t *testing.T) {
	r := ScriptedReply(ReplyRequest{Prompt: "hi", Attempt: 1})
	assert.Equal(t, "Echo: hi", r.Text)
	assert.Empty(t, r.Reasoning)
	assert.Nil(t, r.Grounding)

	r = ScriptedReply(ReplyRequest{Prompt: "hi", Attempt: 3, Model: model.ModelInfo{Reasoning: true}})
	assert.Equal(t, "Echo (take 3): hi", r.Text)
	assert.NotEmpty(t, r.Reasoning)
	assert.Positive(t, r.Usage.ReasoningTokenCount)

	assert.Equal(t, "Echo: a b", strings.Join(chunks("Echo: a b"), ""))
	assert.Len(t, chunks("Echo: a b"), 3)
	assert.Nil(t, chunks(""))
}
