package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soulrrrrr/karaoke-app/internal/model"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

// Responses larger than this are rejected.
const maxResponseSize = 8 << 20

// DefaultStatusRate is the default number of readiness probes per second.
const DefaultStatusRate = 5.0

// Artist is one performer of a search result.
type Artist struct {
	Name string `json:"name"`
}

// SearchResult is one song returned by /search.
type SearchResult struct {
	VideoID string   `json:"videoId"`
	Name    string   `json:"name"`
	Artists []Artist `json:"artists"`
}

// Artist returns the first listed artist, or "".
func (r SearchResult) Artist() string {
	if len(r.Artists) == 0 {
		return ""
	}
	return r.Artists[0].Name
}

// Status is the readiness probe response.
type Status struct {
	Ready        bool
	Instrumental *model.Instrumental
}

type statusResponse struct {
	Ready      bool   `json:"ready"`
	Source     string `json:"instrumental"`
	ShouldPlay *bool  `json:"should_play_instrumental,omitempty"`
}

// Client talks to the collaborator HTTP endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	probes     *rate.Limiter
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithStatusRate limits readiness probes to perSecond requests per second.
// Zero or less disables the limit.
func WithStatusRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.probes = nil
			return
		}
		c.probes = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the collaborators served at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("backend url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No request timeout: a hung collaborator leaves its caller waiting
		// until the context is cancelled.
		httpClient: &http.Client{},
		probes:     rate.NewLimiter(rate.Limit(DefaultStatusRate), 1),
		logger:     log.Default().WithPrefix("backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the collaborator base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CleanQuery normalises user and catalogue text before it is sent as a
// query parameter: NFC form, trimmed, runs of whitespace collapsed.
func CleanQuery(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Search returns the songs matching query, best match first.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = CleanQuery(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	var results []SearchResult
	if err := c.get(ctx, "/search", url.Values{"q": {query}}, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// First returns the best match for query, or ErrNotFound.
func (c *Client) First(ctx context.Context, query string) (SearchResult, error) {
	results, err := c.Search(ctx, query)
	if err != nil {
		return SearchResult{}, err
	}
	if len(results) == 0 || results[0].VideoID == "" {
		return SearchResult{}, ErrNotFound
	}
	return results[0], nil
}

// Lyrics fetches the timed lyrics for a song.
func (c *Client) Lyrics(ctx context.Context, title, artist string) (*model.Lyrics, error) {
	title = CleanQuery(title)
	params := url.Values{
		"q":      {title},
		"title":  {title},
		"artist": {CleanQuery(artist)},
	}

	var lyrics model.Lyrics
	if err := c.get(ctx, "/lyrics", params, &lyrics); err != nil {
		return nil, err
	}
	return &lyrics, nil
}

// AudioURL resolves the raw playable source of a song.
func (c *Client) AudioURL(ctx context.Context, videoID string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	endpoint := "/audio/" + url.PathEscape(videoID)
	if err := c.get(ctx, endpoint, nil, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", &ReportedError{Endpoint: endpoint, StatusCode: http.StatusOK, Message: "empty audio url"}
	}
	return c.ResolveURL(resp.URL), nil
}

// Process requests the instrumental of a song and returns its location.
// The call blocks until the processor has finished.
func (c *Client) Process(ctx context.Context, videoID string) (*model.Instrumental, error) {
	var inst model.Instrumental
	endpoint := "/process/" + url.PathEscape(videoID)
	if err := c.get(ctx, endpoint, nil, &inst); err != nil {
		return nil, err
	}
	if inst.Source == "" {
		return nil, &ReportedError{Endpoint: endpoint, StatusCode: http.StatusOK, Message: "no instrumental in response"}
	}
	return &inst, nil
}

// Status probes whether the instrumental of a song is ready. The probe is
// idempotent and rate limited.
func (c *Client) Status(ctx context.Context, videoID string) (Status, error) {
	if c.probes != nil {
		if err := c.probes.Wait(ctx); err != nil {
			return Status{}, err
		}
	}

	var resp statusResponse
	if err := c.get(ctx, "/status/"+url.PathEscape(videoID), nil, &resp); err != nil {
		return Status{}, err
	}

	st := Status{Ready: resp.Ready && resp.Source != ""}
	if st.Ready {
		st.Instrumental = &model.Instrumental{Source: resp.Source, ShouldPlay: resp.ShouldPlay}
	}
	return st, nil
}

// ResolveURL turns a source location returned by a collaborator into an
// absolute URL. Absolute URLs are returned unchanged.
func (c *Client) ResolveURL(src string) string {
	u, err := url.Parse(src)
	if err != nil || u.IsAbs() {
		return src
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return src
	}
	return base.ResolveReference(u).String()
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	c.logger.Debug("Collaborator response", "endpoint", endpoint, "status", resp.StatusCode, "latency", time.Since(start))

	// Collaborators report failures in an "error" field, sometimes with a
	// 2xx status.
	var reported struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &reported) == nil && reported.Error != "" {
		return &ReportedError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: reported.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ReportedError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
