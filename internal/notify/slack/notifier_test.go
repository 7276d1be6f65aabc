package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dorank/internal/stats"
)

type captured struct {
	path    string
	auth    string
	payload postPayload
}

type recorder struct {
	mu    sync.Mutex
	calls []captured
}

func (r *recorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.calls...)
}

func newSlackServer(t *testing.T, reply string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var p postPayload
		assert.NoError(t, json.Unmarshal(body, &p))
		rec.mu.Lock()
		rec.calls = append(rec.calls, captured{path: r.URL.Path, auth: r.Header.Get("Authorization"), payload: p})
		rec.mu.Unlock()
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func sampleReport() *stats.Report {
	return &stats.Report{
		CycleID: "c1",
		Header:  "Drupal.org stats",
		Footer:  "For more info, see https://www.drupal.test/acme.",
		Sections: []stats.Section{{
			Metric:   stats.KeyMarketplaceRankMin,
			Label:    "Marketplace",
			Observed: 55,
			IsRecord: true,
			Previous: stats.Float(60),
			Link:     "https://www.drupal.test/drupal-services?page=2",
		}},
	}
}

func TestNotifyBroadcastPostsMessage(t *testing.T) {
	t.Parallel()

	server, calls := newSlackServer(t, `{"ok":true}`)
	n, err := New(Config{BotToken: "xoxb-test", APIURL: server.URL}, nil)
	require.NoError(t, err)

	err = n.Notify(context.Background(), stats.Message{
		Channel:    "C03FBG24G",
		Visibility: stats.VisibilityBroadcast,
		Report:     sampleReport(),
	})
	require.NoError(t, err)
	require.Len(t, calls.all(), 1)
	call := calls.all()[0]
	require.Equal(t, "/chat.postMessage", call.path)
	require.Equal(t, "Bearer xoxb-test", call.auth)
	require.Equal(t, "C03FBG24G", call.payload.Channel)
	require.Equal(t, "Drupal.org stats", call.payload.Text)
	require.Len(t, call.payload.Blocks, 5)
}

func TestNotifyPrivateUsesEphemeral(t *testing.T) {
	t.Parallel()

	server, calls := newSlackServer(t, `{"ok":true}`)
	n, err := New(Config{BotToken: "xoxb-test", APIURL: server.URL}, nil)
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), stats.Message{
		Channel:    "C1",
		User:       "U1",
		Visibility: stats.VisibilityPrivate,
		ErrorText:  "boom",
	}))
	call := calls.all()[0]
	require.Equal(t, "/chat.postEphemeral", call.path)
	require.Equal(t, "U1", call.payload.User)
}

func TestNotifyResponseURL(t *testing.T) {
	t.Parallel()

	hook, calls := newSlackServer(t, "ok")
	n, err := New(Config{BotToken: "xoxb-test", APIURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), stats.Message{
		Channel:     "C1",
		User:        "U1",
		ResponseURL: hook.URL + "/commands/T1/123",
		Visibility:  stats.VisibilityPrivate,
		Report:      sampleReport(),
	}))
	require.Len(t, calls.all(), 1)
	call := calls.all()[0]
	require.Equal(t, "/commands/T1/123", call.path)
	require.Equal(t, "ephemeral", call.payload.ResponseType)
	require.Empty(t, call.auth, "bot token is not sent to response urls")
}

func TestNotifySlackErrorResponse(t *testing.T) {
	t.Parallel()

	server, _ := newSlackServer(t, `{"ok":false,"error":"channel_not_found"}`)
	n, err := New(Config{BotToken: "xoxb-test", APIURL: server.URL}, nil)
	require.NoError(t, err)

	err = n.Notify(context.Background(), stats.Message{Channel: "C404", Report: sampleReport()})
	require.ErrorContains(t, err, "channel_not_found")

	require.Error(t, n.Notify(context.Background(), stats.Message{Report: sampleReport()}))
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)
}
