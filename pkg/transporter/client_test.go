package transporter

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacanetworks/telemon/pkg/config"
	"github.com/alpacanetworks/telemon/pkg/metrics"
	"github.com/alpacanetworks/telemon/pkg/ping"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	method      string
	path        string
	contentType string
	userAgent   string
	body        string
}

func newTestClient(t *testing.T, serverURL string, m *metrics.Uploads) *Client {
	settings := config.Settings{
		ServerURL: serverURL,
		UserAgent: "telemon-test/1.0",
		Timeout:   5 * time.Second,
	}
	session, err := NewSession(settings)
	require.NoError(t, err, "Failed to create session.")
	return NewClient(settings, session, m)
}

func uploadAndWait(t *testing.T, c *Client, p ping.Ping) error {
	done := make(chan error, 1)
	c.Upload(p, func(err error) { done <- err })

	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("upload did not complete")
		return nil
	}
}

func TestUploadPostsMeasurements(t *testing.T) {
	requests := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- received{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			userAgent:   r.Header.Get("User-Agent"),
			body:        string(body),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	p := ping.New("core", "/submit/1", map[string]interface{}{"os": "linux"})

	err := uploadAndWait(t, c, p)
	assert.NoError(t, err, "Upload should succeed.")

	req := <-requests
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/submit/1", req.path)
	assert.Equal(t, "application/json; charset=utf-8", req.contentType)
	assert.Equal(t, "telemon-test/1.0", req.userAgent)
	assert.JSONEq(t, `{"os":"linux"}`, req.body)
}

func TestUploadIgnoresStatusCode(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		var hits int
		var mu sync.Mutex
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits++
			mu.Unlock()
			w.WriteHeader(status)
		}))

		c := newTestClient(t, server.URL, nil)
		err := uploadAndWait(t, c, ping.New("core", "/submit/1", nil))
		server.Close()

		assert.NoError(t, err, "Status %d should count as delivered.", status)
		assert.Equal(t, 1, hits, "Status %d should not be retried.", status)
	}
}

func TestUploadTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewUploads(reg)
	c := newTestClient(t, serverURL, m)
	p := ping.New("core", "/submit/1", nil)

	err := uploadAndWait(t, c, p)
	require.Error(t, err, "Closed server should fail.")
	assert.ErrorIs(t, err, ErrTransport)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, p.ID, uploadErr.PingID)
	assert.Equal(t, serverURL+"/submit/1", uploadErr.URL)
	assert.Equal(t, "transport", Outcome(err))

	count, err := testutil.GatherAndCount(reg, "telemon_ping_upload_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUploadInvalidURL(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer server.Close()

	for _, endpoint := range []string{"https://exa mple.com", "://no-scheme", "example.com"} {
		c := newTestClient(t, endpoint, nil)
		err := uploadAndWait(t, c, ping.New("core", "/submit/1", nil))
		assert.ErrorIs(t, err, ErrInvalidURL, "Endpoint %q should be rejected.", endpoint)
	}
	assert.Zero(t, hits, "No request should be issued.")
}

func TestUploadSerializationError(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer server.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewUploads(reg)
	c := newTestClient(t, server.URL, m)

	err := uploadAndWait(t, c, ping.New("core", "/submit/1", map[string]interface{}{"bad": math.NaN()}))
	assert.ErrorIs(t, err, ErrSerialization)
	assert.Zero(t, hits, "No request should be issued.")
	count, err := testutil.GatherAndCount(reg, "telemon_ping_uploads_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "The failed attempt should be counted.")
}

func TestUploadURLConstruction(t *testing.T) {
	for _, target := range []string{
		"https://example.com/submit/1",
		"https://example.com/submit/%41%2F?x=%7e",
		"http://localhost:8000/submit/telemetry/doc/core/telemon/1.0/release",
	} {
		got, err := parseUploadURL(target)
		require.NoError(t, err)
		assert.Equal(t, target, got, "The url should be sent unchanged.")
	}

	for _, target := range []string{
		"https://example.com/a b",
		"https://example.com/a\tb",
		"https://example.com/<ping>",
		"https://example.com/caf\u00e9",
	} {
		_, err := parseUploadURL(target)
		assert.Error(t, err, "%q should be rejected.", target)
	}
}

func TestUploadSendsPathUnchanged(t *testing.T) {
	uris := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uris <- r.RequestURI
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	require.NoError(t, uploadAndWait(t, c, ping.New("core", "/submit/%41%2F?x=%7e", nil)))
	assert.Equal(t, "/submit/%41%2F?x=%7e", <-uris)
}

func TestUploadRejectsUnescapedPath(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	err := uploadAndWait(t, c, ping.New("core", "/submit/a b", nil))
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Zero(t, hits.Load(), "No request should be issued.")
}

func TestUploadCallbackRunsOffCallerGoroutine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	returned := make(chan struct{})
	done := make(chan bool, 1)

	c.Upload(ping.New("core", "/submit/1", nil), func(error) {
		select {
		case <-returned:
			done <- true
		case <-time.After(5 * time.Second):
			done <- false
		}
	})
	close(returned)

	assert.True(t, <-done, "Upload should return before the callback completes.")
}

func collect(chunks <-chan Chunk) (*Response, string, error) {
	var (
		meta *Response
		body strings.Builder
		err  error
	)
	for chunk := range chunks {
		if chunk.Response != nil {
			meta = chunk.Response
		}
		body.Write(chunk.Data)
		if chunk.Err != nil {
			err = chunk.Err
		}
	}
	return meta, body.String(), err
}

func TestSendStreamsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Exchange", "stream")
		w.WriteHeader(http.StatusAccepted)
		flusher := w.(http.Flusher)
		for _, part := range []string{"first,", "second,", "third"} {
			_, _ = io.WriteString(w, part)
			flusher.Flush()
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	req, err := http.NewRequest(http.MethodGet, server.URL+"/stream", nil)
	require.NoError(t, err)

	meta, body, err := collect(c.Send(context.Background(), req))
	assert.NoError(t, err)
	require.NotNil(t, meta, "Response metadata should be delivered.")
	assert.Equal(t, http.StatusAccepted, meta.StatusCode)
	assert.Equal(t, "stream", meta.Header.Get("X-Exchange"))
	assert.Equal(t, "first,second,third", body)
}

func TestSendDeliversMetadataForEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	meta, body, err := collect(c.Send(context.Background(), req))
	assert.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, http.StatusNoContent, meta.StatusCode)
	assert.Empty(t, body)
}

func TestSendTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	c := newTestClient(t, serverURL, nil)
	req, err := http.NewRequest(http.MethodGet, serverURL, nil)
	require.NoError(t, err)

	var chunks []Chunk
	for chunk := range c.Send(context.Background(), req) {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 1, "A transport error is delivered once.")
	assert.Nil(t, chunks[0].Data)
	assert.True(t, errors.Is(chunks[0].Err, ErrTransport))
}

func TestSendConcurrentExchanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "echo:"+r.URL.Query().Get("id"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, server.URL+"/?id="+id, nil)
			if !assert.NoError(t, err) {
				return
			}
			_, body, err := collect(c.Send(context.Background(), req))
			assert.NoError(t, err)
			assert.Equal(t, "echo:"+id, body, "Each exchange should only see its own response.")
		}(id)
	}
	wg.Wait()
}

func TestSendStopsWhenContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "payload")
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	chunks := c.Send(ctx, req)
	cancel()

	select {
	case <-drain(chunks):
	case <-time.After(5 * time.Second):
		t.Fatal("channel should be closed after cancellation")
	}
}

func drain(chunks <-chan Chunk) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range chunks {
		}
		close(done)
	}()
	return done
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "invalid_url", Outcome(&UploadError{Kind: ErrInvalidURL, Err: errors.New("x")}))
	assert.Equal(t, "serialization", Outcome(&UploadError{Kind: ErrSerialization, Err: errors.New("x")}))
	assert.Equal(t, "transport", Outcome(&UploadError{Kind: ErrTransport, Err: errors.New("x")}))
}
