package sdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func newTestServer(t *testing.T, reply func(r *http.Request) (int, string)) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		calls = append(calls, rec)

		status, body := reply(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL, WithToken("tkn"))
	require.NoError(t, err)
	return c, &calls
}

func TestSendMessage(t *testing.T) {
	c, calls := newTestServer(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"code":0,"msg":"success","data":{"id":"m1","conversation_id":"c1","seq":3,"sender_id":"st__1","content":"hi"}}`
	})

	msg, err := c.SendText(context.Background(), "c1", "cm-1", "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.Seq)
	assert.Equal(t, "hi", msg.Content)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/msg/send", call.path)
	assert.Equal(t, "Bearer tkn", call.auth)
	assert.Equal(t, map[string]any{"conversation_id": "c1", "client_msg_id": "cm-1", "content": "hi"}, call.body)
}

func TestPullMessagesQuery(t *testing.T) {
	c, calls := newTestServer(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"code":0,"msg":"success","data":{"messages":[{"seq":5},{"seq":6}],"max_seq":6}}`
	})

	page, err := c.PullMessages(context.Background(), "c1", 4, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(6), page.MaxSeq)
	assert.Equal(t, "after_seq=4&conversation_id=c1&limit=2", (*calls)[0].query)
}

func TestAPIErrorsMatchByCode(t *testing.T) {
	c, _ := newTestServer(t, func(r *http.Request) (int, string) {
		if r.URL.Path == "/conversation/list" {
			return http.StatusUnauthorized, `{"code":2003,"msg":"token missing"}`
		}
		return http.StatusOK, `{"code":3001,"msg":"not authorized for this conversation"}`
	})
	ctx := context.Background()

	_, err := c.Rename(ctx, "c1", "new name")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.NotErrorIs(t, err, ErrNotAParticipant)
	assert.Equal(t, CodeNotAuthorized, CodeOf(err))

	_, err = c.GetConversationList(ctx)
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestEmptyDataIsAccepted(t *testing.T) {
	c, calls := newTestServer(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"code":0,"msg":"success","data":null}`
	})

	require.NoError(t, c.Leave(context.Background(), "g1"))
	assert.Equal(t, "/conversation/leave", (*calls)[0].path)
	assert.Equal(t, map[string]any{"conversation_id": "g1"}, (*calls)[0].body)
}

func TestOnlineCount(t *testing.T) {
	c, calls := newTestServer(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"code":0,"msg":"success","data":{"scope":"viewing","count":2}}`
	})

	n, err := c.OnlineCount(context.Background(), "g1", ScopeViewing)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "conversation_id=g1&scope=viewing", (*calls)[0].query)
	assert.Equal(t, -1, CodeOf(assert.AnError))
}
