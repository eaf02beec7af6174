package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"tamper_detected"}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventTamperDetected, "tamper", "chain broken"))
	require.NoError(t, n.Notify(ctx, EventMarketResolved, "market", "settled"))

	assert.Equal(t, []string{"tamper"}, sender.titles)
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventPeerRegistered, "peer", "joined"))
	require.NoError(t, n.Notify(ctx, EventChainReplaced, "chain", "replaced"))

	assert.Len(t, sender.titles, 2)
}

func TestDispatchReachesAllSendersDespiteFailure(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("webhook down")}
	healthy := &recordingSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "alert", "something happened")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	// The failing sender did not block the healthy one.
	assert.Len(t, healthy.titles, 1)
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	require.NoError(t, sender.Send(context.Background(), "Tampering", "block #3 failed checks"))

	assert.Contains(t, got["content"], "**Tampering**")
	assert.Contains(t, got["content"], "block #3")
}

func TestDiscordSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "Tampering", "block #3 failed checks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
