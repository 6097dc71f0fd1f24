// Package sales reads sales history from the upstream sales API or from an
// Excel workbook.
package sales

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

// DefaultBaseURL is the local sales API.
const DefaultBaseURL = "http://localhost:3000/api"

// record is one element of the upstream results array.
type record struct {
	Plant struct {
		StoreID string `json:"storeId"`
	} `json:"plant"`
	MaterialCode struct {
		StyleCode string `json:"styleCode"`
	} `json:"materialCode"`
	Date       string   `json:"date"`
	Quantity   int      `json:"quantity"`
	NSV        float64  `json:"nsv"`
	Discount   *float64 `json:"discount"`
	IsFestival bool     `json:"isFestival"`
}

type salesResponse struct {
	Results []record `json:"results"`
}

// HTTPSource reads the full sales listing from GET {base}/sales and filters
// it on the client. Requests are rate limited and never retried.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  log.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default client, which has a 30s timeout.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithRateLimit allows r requests per second with the given burst. r <= 0
// disables limiting.
func WithRateLimit(r float64, burst int) HTTPOption {
	return func(s *HTTPSource) {
		if r <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) HTTPOption {
	return func(s *HTTPSource) { s.logger = l }
}

// NewHTTPSource creates a source for the API at baseURL. apiKey is sent as
// a bearer token when set.
func NewHTTPSource(baseURL, apiKey string, opts ...HTTPOption) *HTTPSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  log.GetLoggerWithName("sales.http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) fetchAll(ctx context.Context) ([]record, error) {
	const op = "sales.HTTPSource.fetch"

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/sales", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build sales request")
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.NewStorageError(op, "http", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.NewStorageError(op, "http",
			errors.Newf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var out salesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.NewStorageError(op, "http", errors.Wrap(err, "malformed sales response"))
	}
	return out.Results, nil
}

// Fetch returns the observations for one store/product whose day lies in
// [start, end].
func (s *HTTPSource) Fetch(ctx context.Context, storeID, productID string, start, end time.Time) ([]features.Observation, error) {
	records, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	from, to := day(start), day(end)
	var out []features.Observation
	skipped := 0
	for _, r := range records {
		if r.Plant.StoreID != storeID || r.MaterialCode.StyleCode != productID {
			continue
		}
		date, err := parseDate(r.Date)
		if err != nil {
			skipped++
			continue
		}
		if date.Before(from) || date.After(to) {
			continue
		}
		o := features.Observation{
			StoreID:    storeID,
			ProductID:  productID,
			Date:       date,
			Quantity:   r.Quantity,
			Revenue:    r.NSV,
			IsFestival: r.IsFestival,
		}
		if r.Discount != nil {
			o.Discount = *r.Discount
		}
		out = append(out, o)
	}

	if skipped > 0 {
		s.logger.Warn("Skipped sales records with unparseable dates",
			log.StoreIDKey, storeID,
			log.ProductIDKey, productID,
			"skipped", skipped)
	}
	s.logger.Info("Fetched sales records",
		log.StoreIDKey, storeID,
		log.ProductIDKey, productID,
		log.ObservationsKey, len(out))
	return out, nil
}

// Stores lists the distinct store ids, sorted.
func (s *HTTPSource) Stores(ctx context.Context) ([]string, error) {
	records, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for _, r := range records {
		if r.Plant.StoreID != "" {
			set[r.Plant.StoreID] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

// Products lists the distinct product ids sold by storeID, sorted.
func (s *HTTPSource) Products(ctx context.Context, storeID string) ([]string, error) {
	records, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for _, r := range records {
		if r.Plant.StoreID == storeID && r.MaterialCode.StyleCode != "" {
			set[r.MaterialCode.StyleCode] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDate reads a timestamp or plain date and truncates it to a UTC day.
func parseDate(s string) (time.Time, error) {
	t, err := features.ParseTime(s)
	if err != nil {
		return time.Time{}, err
	}
	return day(t), nil
}
