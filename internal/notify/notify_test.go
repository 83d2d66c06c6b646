// SPDX-License-Identifier: AGPL-3.0-only
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jolks/mcp-pingr/internal/clock"
	"github.com/jolks/mcp-pingr/internal/config"
	"github.com/jolks/mcp-pingr/internal/logging"
)

// MockNotifier is a mock implementation of model.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Deliver(ctx context.Context, title, body string) error {
	args := m.Called(title, body)
	return args.Error(0)
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Options{Level: logging.Error, Output: io.Discard})
}

func TestWebhookStampsPayloadWithClock(t *testing.T) {
	var payload webhookPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, NewWebhook(ts.URL, time.Second, clock.NewManual(at)).Deliver(context.Background(), "Pingr", "appeler Marc"))
	assert.Equal(t, at.UnixMilli(), payload.SentAt)
}

func TestWebhookPostsReminder(t *testing.T) {
	received := make(chan *http.Request, 1)
	var payload webhookPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	require.NoError(t, NewWebhook(ts.URL+"/hook", time.Second, nil).Deliver(context.Background(), "Pingr", "appeler Marc"))

	select {
	case req := <-received:
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/hook", req.URL.Path)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Equal(t, defaultSender, payload.Sender)
		assert.Equal(t, "Pingr", payload.Title)
		assert.Equal(t, "appeler Marc", payload.Content)
	case <-time.After(time.Second):
		t.Fatal("no request received")
	}
}

func TestWebhookCustomSender(t *testing.T) {
	var payload webhookPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}))
	defer ts.Close()
	t.Setenv("MCP_PINGR_SENDER", "custom_sender")

	require.NoError(t, NewWebhook(ts.URL, time.Second, nil).Deliver(context.Background(), "t", "b"))
	assert.Equal(t, "custom_sender", payload.Sender)
}

func TestWebhookErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewWebhook(ts.URL, time.Second, nil).Deliver(context.Background(), "t", "b")
	assert.ErrorContains(t, err, "502")
}

func TestWebhookHonoursCancelledContext(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewWebhook(ts.URL, time.Second, nil).Deliver(ctx, "t", "b"))
	assert.Equal(t, 0, calls)
}

func TestDesktopUsesTitleBodyAndIcon(t *testing.T) {
	d := NewDesktop("", "/tmp/icon.png")
	var got []interface{}
	d.notify = func(title, message string, icon any) error {
		got = []interface{}{title, message, icon}
		return nil
	}
	require.NoError(t, d.Deliver(context.Background(), "Pingr", "thé"))
	assert.Equal(t, []interface{}{"Pingr", "thé", "/tmp/icon.png"}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, d.Deliver(ctx, "Pingr", "thé"))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: logging.New(logging.Options{Level: logging.Info, Output: &buf})}
	require.NoError(t, l.Deliver(context.Background(), "Pingr", "appeler Marc"))
	assert.Contains(t, buf.String(), "[Pingr] appeler Marc")
}

func TestMultiSucceedsWhenOneDelivers(t *testing.T) {
	ok := new(MockNotifier)
	ok.On("Deliver", "Pingr", "x").Return(nil)
	broken := new(MockNotifier)
	broken.On("Deliver", "Pingr", "x").Return(errors.New("down"))

	m := NewMulti(quietLogger(), broken, ok)
	assert.NoError(t, m.Deliver(context.Background(), "Pingr", "x"))
	ok.AssertNumberOfCalls(t, "Deliver", 1)
	broken.AssertNumberOfCalls(t, "Deliver", 1)
}

func TestMultiFailsWhenAllFail(t *testing.T) {
	a := new(MockNotifier)
	a.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("a down"))
	b := new(MockNotifier)
	b.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("b down"))

	err := NewMulti(quietLogger(), a, b).Deliver(context.Background(), "Pingr", "x")
	assert.ErrorContains(t, err, "a down")
	assert.ErrorContains(t, err, "b down")
}

func TestFromConfig(t *testing.T) {
	n, err := FromConfig(config.NotifierConfig{Kind: "log"}, "Pingr", nil, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, Log{}, n)

	n, err = FromConfig(config.NotifierConfig{Kind: "desktop"}, "Pingr", nil, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &Desktop{}, n)

	n, err = FromConfig(config.NotifierConfig{Kind: "desktop, webhook", WebhookURL: "http://localhost:1"}, "Pingr", nil, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &Multi{}, n)

	n, err = FromConfig(config.NotifierConfig{}, "Pingr", nil, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, Log{}, n)

	_, err = FromConfig(config.NotifierConfig{Kind: "pager"}, "Pingr", nil, quietLogger())
	assert.Error(t, err)
}
