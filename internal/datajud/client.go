package datajud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/cnj"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public judiciary search API.
	DefaultBaseURL = "https://api-publica.datajud.cnj.jus.br"

	defaultTimeout       = 30 * time.Second
	maxResponseBodyBytes = 8 << 20
	authorizationScheme  = "APIKey "
	tracerName           = "github.com/MarcoPoloResearchLab/juris/backend/internal/datajud"
)

// LatencyObserver receives the duration of every completed remote request.
type LatencyObserver interface {
	ObserveDatajudRequest(alias string, duration time.Duration)
}

// ClientConfig describes how to reach the judiciary search service.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *zap.Logger
	Latency           LatencyObserver
	Clock             func() time.Time
}

// FetchResult is the normalized outcome of one search. Hit is nil when the
// service answered successfully but matched nothing.
type FetchResult struct {
	Alias           string
	CanonicalNumber string
	Hit             Document
}

// Client queries the judiciary search service for one case at a time.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	latency    LatencyObserver
	clock      func() time.Time
}

// NewClient validates configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
		latency:    cfg.Latency,
		clock:      clock,
	}, nil
}

type searchRequest struct {
	Size  int         `json:"size"`
	Query searchQuery `json:"query"`
}

type searchQuery struct {
	Match map[string]string `json:"match"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// FetchMovements searches the tribunal endpoint derived from id for its
// canonical number and returns the first matching document, if any.
func (c *Client) FetchMovements(ctx context.Context, id cnj.Identifier) (FetchResult, error) {
	alias, ok := cnj.TribunalAlias(id)
	if !ok {
		return FetchResult{}, &RoutingError{Reason: fmt.Sprintf("unsupported jurisdiction segment %q court %q", id.Segment(), id.Court())}
	}
	canonical, ok := id.Digits()
	if !ok {
		return FetchResult{}, &RoutingError{Reason: "incomplete identifier"}
	}
	result := FetchResult{Alias: alias, CanonicalNumber: canonical}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "datajud.fetch_movements", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("datajud.alias", alias),
		attribute.String("datajud.numero_processo", canonical),
	)

	hit, err := c.search(ctx, alias, canonical)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(attribute.Bool("datajud.hit", hit != nil))
	result.Hit = hit
	return result, nil
}

func (c *Client) search(ctx context.Context, alias, canonical string) (Document, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RemoteError{Err: err}
		}
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(searchRequest{
		Size:  1,
		Query: searchQuery{Match: map[string]string{"numeroProcesso": canonical}},
	})
	if err != nil {
		return nil, &RemoteError{Err: err}
	}

	endpoint := c.baseURL + "/api_public_" + alias + "/_search"
	request, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RemoteError{Err: err}
	}
	request.Header.Set("Authorization", authorizationScheme+c.apiKey)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	startedAt := c.clock()
	response, err := c.httpClient.Do(request)
	if c.latency != nil {
		c.latency.ObserveDatajudRequest(alias, c.clock().Sub(startedAt))
	}
	if err != nil {
		c.logger.Debug("datajud request failed", zap.String("alias", alias), zap.Error(err))
		return nil, &RemoteError{Err: err}
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, &RemoteError{StatusCode: response.StatusCode, Err: err}
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		remoteErr := &RemoteError{StatusCode: response.StatusCode}
		if json.Valid(payload) {
			remoteErr.Payload = json.RawMessage(payload)
		}
		c.logger.Debug("datajud responded with error status",
			zap.String("alias", alias),
			zap.Int("status", response.StatusCode))
		return nil, remoteErr
	}

	var decoded searchResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, &RemoteError{StatusCode: response.StatusCode, Err: fmt.Errorf("decode search response: %w", err)}
	}
	if len(decoded.Hits.Hits) == 0 || decoded.Hits.Hits[0].Source == nil {
		return nil, nil
	}
	return decoded.Hits.Hits[0].Source, nil
}
