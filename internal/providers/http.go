package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/aish/internal/errs"
)

const defaultHTTPTimeout = 120 * time.Second

// httpClient bundles the pieces every remote provider shares: the HTTP
// client, the API key source, and an optional request rate limiter.
type httpClient struct {
	client    *http.Client
	apiKeyEnv string
	limiter   *rate.Limiter
}

func newHTTPClient(apiKeyEnv string, rateLimitRPM int) httpClient {
	var limiter *rate.Limiter
	if rateLimitRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rateLimitRPM)/60.0), 1)
	}
	return httpClient{
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		apiKeyEnv: apiKeyEnv,
		limiter:   limiter,
	}
}

func (h httpClient) apiKey() string {
	if h.apiKeyEnv == "" {
		return ""
	}
	return os.Getenv(h.apiKeyEnv)
}

// post sends a JSON body and returns the response body for streaming
// consumption. Non-2xx responses are drained and turned into an Http error.
func (h httpClient) post(ctx context.Context, url string, headers map[string]string, body []byte) (io.ReadCloser, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, errs.Wrap(errs.KindHttp, "rate limiter", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, errs.Wrap(errs.KindHttp, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindHttp, "http request", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errs.Newf(errs.KindHttp, "http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

// sseData strips the "data: " framing from one SSE line. ok is false for
// non-data lines (comments, blank keep-alives, event names).
func sseData(line string) (string, bool) {
	data, found := strings.CutPrefix(line, "data: ")
	if !found {
		data, found = strings.CutPrefix(line, "data:")
	}
	if !found {
		return "", false
	}
	return strings.TrimSpace(data), true
}

// failEvent forwards a stream failure as the terminal Failed event and
// returns the matching error for the caller.
func failEvent(fn func(Event) error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	_ = fn(Event{Type: EventFailed, Message: msg})
	return errs.New(errs.KindHttp, msg)
}
