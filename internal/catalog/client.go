// Package catalog fetches the popular-movies listing from a TMDB-compatible
// API and maps it into domain movies.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

const opFetchPopular = "fetch popular"

// Client defines the contract for querying the remote movie catalog.
type Client interface {
	// FetchPopular returns one page of popular movies. Pages start at 1.
	FetchPopular(ctx context.Context, page int) ([]domain.Movie, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL      *url.URL
	apiKey       string
	imageBaseURL string
	client       *http.Client
	logger       *slog.Logger
}

// NewHTTPClient constructs a new HTTP-backed catalog client.
func NewHTTPClient(baseURL, apiKey, imageBaseURL string, timeout time.Duration, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("catalog url %q must be http or https", baseURL)
	}
	return &HTTPClient{
		baseURL:      parsed,
		apiKey:       apiKey,
		imageBaseURL: imageBaseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// FetchPopular retrieves and maps one page of popular movies. A page below 1
// is treated as 1.
func (c *HTTPClient) FetchPopular(ctx context.Context, page int) ([]domain.Movie, error) {
	if page < 1 {
		page = 1
	}

	endpoint := c.baseURL.JoinPath("movie", "popular")
	q := endpoint.Query()
	q.Set("api_key", c.apiKey)
	q.Set("page", strconv.Itoa(page))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &domain.UpstreamFault{Op: opFetchPopular, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("catalog: request failed", "page", page, "err", err)
		return nil, &domain.UpstreamFault{Op: opFetchPopular, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("catalog: unexpected status", "status", resp.StatusCode, "page", page)
		return nil, &domain.UpstreamFault{
			Op:         opFetchPopular,
			StatusCode: resp.StatusCode,
			Err:        errors.New(statusMessage(resp.Body, resp.StatusCode)),
		}
	}

	var payload PopularPage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &domain.UpstreamFault{
			Op:         opFetchPopular,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err),
		}
	}

	c.logger.Debug("catalog: fetched popular", "page", page, "results", len(payload.Results))
	return ToMovies(payload.Results, c.imageBaseURL), nil
}

// errorPayload is the body TMDB sends with failed requests.
type errorPayload struct {
	StatusMessage string `json:"status_message"`
}

func statusMessage(body io.Reader, status int) string {
	var payload errorPayload
	if err := json.NewDecoder(io.LimitReader(body, 4<<10)).Decode(&payload); err == nil && payload.StatusMessage != "" {
		return payload.StatusMessage
	}
	return http.StatusText(status)
}
