package transporter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alpacanetworks/telemon/pkg/config"
	"github.com/alpacanetworks/telemon/pkg/metrics"
	"github.com/alpacanetworks/telemon/pkg/ping"
	"github.com/alpacanetworks/telemon/pkg/utils"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

const (
	contentType = "application/json; charset=utf-8"
	chunkSize   = 32 * 1024
)

// Client performs one HTTP exchange per call. Outcomes are delivered on
// a goroutine owned by the Client, never on the caller's goroutine.
type Client struct {
	settings config.Settings
	session  *retryablehttp.Client
	metrics  *metrics.Uploads
}

func NewClient(settings config.Settings, session *retryablehttp.Client, m *metrics.Uploads) *Client {
	return &Client{
		settings: settings,
		session:  session,
		metrics:  m,
	}
}

// Upload posts the measurements of p to ServerURL+UploadPath and calls
// onComplete with nil once any response arrives, whatever its status, or
// with an *UploadError.
func (c *Client) Upload(p ping.Ping, onComplete func(error)) {
	c.UploadContext(context.Background(), p, onComplete)
}

func (c *Client) UploadContext(ctx context.Context, p ping.Ping, onComplete func(error)) {
	go func() {
		err := c.upload(ctx, p)
		if onComplete != nil {
			onComplete(err)
		}
	}()
}

func (c *Client) upload(ctx context.Context, p ping.Ping) error {
	target := c.settings.ServerURL + p.UploadPath
	newError := func(kind, err error) error {
		return &UploadError{Kind: kind, PingType: p.Type, PingID: p.ID, URL: target, Err: err}
	}

	uploadURL, err := parseUploadURL(target)
	if err != nil {
		log.Error().Err(err).Msgf("Invalid upload URL: %s", target)
		c.metrics.ObserveUpload(p.Type, Outcome(ErrInvalidURL), 0)
		return newError(ErrInvalidURL, err)
	}

	data, err := p.MeasurementsJSON()
	if err != nil {
		log.Error().Err(err).Msg("Error generating JSON data for ping")
		c.metrics.ObserveUpload(p.Type, Outcome(ErrSerialization), 0)
		return newError(ErrSerialization, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, uploadURL, data)
	if err != nil {
		c.metrics.ObserveUpload(p.Type, Outcome(ErrInvalidURL), 0)
		return newError(ErrInvalidURL, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.settings.UserAgent)

	start := time.Now()
	resp, err := c.session.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveUpload(p.Type, Outcome(ErrTransport), elapsed)
		return newError(ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Any response counts as delivered; the status is only logged.
	if !utils.IsSuccessStatusCode(resp.StatusCode) {
		log.Debug().Msgf("POST %s answered %d", uploadURL, resp.StatusCode)
	}
	c.metrics.ObserveUpload(p.Type, Outcome(nil), elapsed)

	return nil
}

// parseUploadURL validates target and returns it unchanged. Characters
// that are not allowed anywhere in a URL are rejected rather than
// escaped.
func parseUploadURL(target string) (string, error) {
	if i := strings.IndexFunc(target, invalidURLRune); i >= 0 {
		return "", fmt.Errorf("%q contains invalid character %q", target, target[i])
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute http(s) url", target)
	}
	return target, nil
}

func invalidURLRune(r rune) bool {
	return r <= ' ' || r >= 0x7f || strings.ContainsRune("<>\"{}|\\^`", r)
}

// Response is the metadata of a response, captured once its headers
// arrive.
type Response struct {
	StatusCode int
	Header     http.Header
}

// Chunk is one element of a Send exchange: the response metadata with a
// body slice, or a terminal error.
type Chunk struct {
	Response *Response
	Data     []byte
	Err      error
}

// Send performs a generic exchange. The returned channel yields a chunk
// with nil Data as soon as headers arrive, then one chunk per body read,
// then at most one chunk carrying Err, and is closed when the exchange
// is over. Callers must drain the channel or cancel ctx.
func (c *Client) Send(ctx context.Context, req *http.Request) <-chan Chunk {
	chunks := make(chan Chunk)

	go func() {
		defer close(chunks)

		emit := func(chunk Chunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
		if err != nil {
			emit(Chunk{Err: err})
			return
		}

		resp, err := c.session.Do(rreq)
		if err != nil {
			emit(Chunk{Err: fmt.Errorf("%w: %w", ErrTransport, err)})
			return
		}
		defer func() { _ = resp.Body.Close() }()

		meta := &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone()}
		if !emit(Chunk{Response: meta}) {
			return
		}

		buf := make([]byte, chunkSize)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				if !emit(Chunk{Response: meta, Data: data}) {
					return
				}
			}
			if readErr == io.EOF {
				return
			}
			if readErr != nil {
				emit(Chunk{Response: meta, Err: fmt.Errorf("%w: %w", ErrTransport, readErr)})
				return
			}
		}
	}()

	return chunks
}
