// ABOUTME: Tests for the messaging client adapter against a fake provider.
// ABOUTME: Validates send semantics, retry bounds, chunked delivery, and ambiguity handling.

package messaging

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/faults"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) Config {
	return Config{
		AccountSID:  "AC000",
		AuthToken:   "secret",
		From:        "whatsapp:+14155238886",
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	}
}

func TestSend_Success(t *testing.T) {
	var gotForm struct {
		to, from, body string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC000", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/2010-04-01/Accounts/AC000/Messages.json", r.URL.Path)

		require.NoError(t, r.ParseForm())
		gotForm.to = r.PostForm.Get("To")
		gotForm.from = r.PostForm.Get("From")
		gotForm.body = r.PostForm.Get("Body")

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), testLogger())
	id, err := client.Send(context.Background(), "whatsapp:+15550001111", "hello!")
	require.NoError(t, err)
	assert.Equal(t, "SM123", id)
	assert.Equal(t, "whatsapp:+15550001111", gotForm.to)
	assert.Equal(t, "whatsapp:+14155238886", gotForm.from)
	assert.Equal(t, "hello!", gotForm.body)
}

func TestSend_StripsFormattingBeforeDispatch(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		body = r.PostForm.Get("Body")
		w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), testLogger())
	_, err := client.Send(context.Background(), "u1", "**important** update")
	require.NoError(t, err)
	assert.Equal(t, "important update", body)
}

func TestSend_LongReplyChunked(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		bodies = append(bodies, r.PostForm.Get("Body"))
		n := len(bodies)
		mu.Unlock()
		w.Write([]byte(`{"sid":"SM` + strings.Repeat("0", n) + `"}`))
	}))
	defer server.Close()

	long := strings.Repeat("A reasonably sized sentence for the relay. ", 80) // ~3400 chars
	client := NewClient(testConfig(server.URL), testLogger())

	id, err := client.Send(context.Background(), "u1", long)
	require.NoError(t, err)
	assert.Equal(t, "SM0", id, "returns the first chunk's message ID")

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, len(bodies), 1)
	for _, b := range bodies {
		assert.LessOrEqual(t, len(b), MaxChunkLength)
	}
}

func TestSend_EmptyText(t *testing.T) {
	client := NewClient(testConfig("http://unused.invalid"), testLogger())
	_, err := client.Send(context.Background(), "u1", "")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindInvalidArgument))
}

func TestSend_PermanentRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"invalid 'To' phone number"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), testLogger())
	_, err := client.Send(context.Background(), "not-a-number", "hi")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindPermanent))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_TransientRetriedThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"sid":"SM777"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), testLogger())
	id, err := client.Send(context.Background(), "u1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "SM777", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_RetryBound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 3
	client := NewClient(cfg, testLogger())

	_, err := client.Send(context.Background(), "u1", "hi")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindTransientExhausted))
	assert.Equal(t, int32(4), calls.Load())
}

func TestSend_TimeoutIsAmbiguousAndNotRetried(t *testing.T) {
	// The provider receives the request but never answers within the deadline.
	// That's ambiguous: the message may be on its way, so no retry.
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 30 * time.Millisecond
	client := NewClient(cfg, testLogger())

	_, err := client.Send(context.Background(), "u1", "hi")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindAmbiguous))
	assert.Equal(t, int32(1), calls.Load(), "ambiguous outcomes must not be retried")
}

func TestSend_ConnectionRefusedIsTransient(t *testing.T) {
	// A server that was shut down before the call: dial fails, nothing was
	// dispatched, so the failure classifies as retryable and exhausts.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	cfg := testConfig(addr)
	cfg.MaxRetries = 1
	client := NewClient(cfg, testLogger())

	_, err := client.Send(context.Background(), "u1", "hi")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindTransientExhausted))
}
