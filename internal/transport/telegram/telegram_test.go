package telegram

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/transport"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	requests []map[string]any
	fail     bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var params map[string]any
	_ = json.Unmarshal(body, &params)

	f.mu.Lock()
	f.requests = append(f.requests, params)
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
}

func newTestTransport(t *testing.T, api *fakeBotAPI) *Transport {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	tr, err := New(Config{Token: "123:abc", ChatID: 42, APIURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return tr
}

func record() model.NotificationRecord {
	return model.NotificationRecord{
		ID:     1,
		Entity: model.EntityKey{Kind: model.KindIssue, Ref: "acme/widget#7"},
		Payload: model.Payload{
			HTML: "🐛 <b>New Issue</b>\n<b>acme/widget#7</b>: Bug X",
			Text: "New Issue\nacme/widget#7: Bug X",
		},
	}
}

func TestSendPostsHTML(t *testing.T) {
	api := &fakeBotAPI{}
	tr := newTestTransport(t, api)

	require.NoError(t, tr.Send(t.Context(), record()))

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	assert.Equal(t, "42", req["chat_id"])
	assert.Equal(t, "HTML", req["parse_mode"])
	assert.Contains(t, req["text"], "<b>acme/widget#7</b>")
}

func TestSendFailureIsDeliveryError(t *testing.T) {
	api := &fakeBotAPI{fail: true}
	tr := newTestTransport(t, api)

	err := tr.Send(t.Context(), record())
	require.Error(t, err)
	assert.True(t, transport.IsDeliveryError(err))
	assert.Contains(t, err.Error(), "chat not found")
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{ChatID: 1})
	require.Error(t, err)
	_, err = New(Config{Token: "x"})
	require.Error(t, err)

	id, err := ParseChatID(" -100123 ")
	require.NoError(t, err)
	assert.Equal(t, int64(-100123), id)
	_, err = ParseChatID("abc")
	require.Error(t, err)
}
