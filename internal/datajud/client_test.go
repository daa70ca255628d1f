package datajud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/cnj"
)

const testAPIKey = "test-api-key"

func mustIdentifier(t *testing.T, raw string) cnj.Identifier {
	t.Helper()
	id, ok := cnj.Parse(raw)
	if !ok {
		t.Fatalf("failed to parse identifier %q", raw)
	}
	return id
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL: baseURL,
		APIKey:  testAPIKey,
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: DefaultBaseURL, APIKey: "  "})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{APIKey: testAPIKey})
	if !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("expected missing base url error, got %v", err)
	}
}

func TestFetchMovementsReturnsFirstHit(t *testing.T) {
	var capturedPath, capturedAuth string
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		capturedPath = request.URL.Path
		capturedAuth = request.Header.Get("Authorization")
		body, _ := io.ReadAll(request.Body)
		_ = json.Unmarshal(body, &capturedBody)
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"hits":{"total":{"value":1},"hits":[{"_source":{"numeroProcesso":"00000075520204010000","movimentos":[{"dataHora":"2024-03-01T10:00:00.000Z"}]}}]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.FetchMovements(context.Background(), mustIdentifier(t, "0000007-55.2020.4.01.0000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedPath != "/api_public_trf1/_search" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if capturedAuth != "APIKey "+testAPIKey {
		t.Fatalf("unexpected authorization header %q", capturedAuth)
	}
	if capturedBody["size"] != float64(1) {
		t.Fatalf("expected size 1, got %v", capturedBody["size"])
	}
	query, _ := capturedBody["query"].(map[string]any)
	match, _ := query["match"].(map[string]any)
	if match["numeroProcesso"] != "00000075520204010000" {
		t.Fatalf("unexpected match clause %v", capturedBody["query"])
	}

	if result.Alias != "trf1" || result.CanonicalNumber != "00000075520204010000" {
		t.Fatalf("unexpected result routing: %+v", result)
	}
	if result.Hit == nil || result.Hit["numeroProcesso"] != "00000075520204010000" {
		t.Fatalf("unexpected hit %v", result.Hit)
	}
}

func TestFetchMovementsReportsMissAsNilHit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"hits":{"total":{"value":0},"hits":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.FetchMovements(context.Background(), mustIdentifier(t, "1234567-89.2023.8.26.0100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Hit != nil {
		t.Fatalf("expected nil hit, got %v", result.Hit)
	}
	if result.Alias != "tjsp" {
		t.Fatalf("unexpected alias %q", result.Alias)
	}
}

func TestFetchMovementsSurfacesStatusAndPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusTooManyRequests)
		_, _ = writer.Write([]byte(`{"error":{"type":"rate_limited"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchMovements(context.Background(), mustIdentifier(t, "0000007-55.2020.5.02.0000"))

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if remoteErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", remoteErr.StatusCode)
	}
	if string(remoteErr.Payload) != `{"error":{"type":"rate_limited"}}` {
		t.Fatalf("unexpected payload %s", remoteErr.Payload)
	}
}

func TestFetchMovementsWrapsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := newTestClient(t, baseURL)
	_, err := client.FetchMovements(context.Background(), mustIdentifier(t, "0000007-55.2020.4.01.0000"))

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if remoteErr.StatusCode != 0 || remoteErr.Err == nil {
		t.Fatalf("expected transport failure details, got %+v", remoteErr)
	}
}

func TestFetchMovementsTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(ClientConfig{
		BaseURL: server.URL,
		APIKey:  testAPIKey,
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	_, err = client.FetchMovements(context.Background(), mustIdentifier(t, "0000007-55.2020.4.01.0000"))
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected remote error on timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded cause, got %v", err)
	}
}

func TestFetchMovementsRejectsUnroutableIdentifier(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.FetchMovements(context.Background(), mustIdentifier(t, "0000007-55.2020.6.01.0000"))

	var routingErr *RoutingError
	if !errors.As(err, &routingErr) {
		t.Fatalf("expected routing error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no network call, got %d", calls.Load())
	}

	_, err = client.FetchMovements(context.Background(), cnj.Identifier{})
	if !errors.As(err, &routingErr) {
		t.Fatalf("expected routing error for zero identifier, got %v", err)
	}
}

type recordingLatency struct {
	aliases []string
}

func (r *recordingLatency) ObserveDatajudRequest(alias string, _ time.Duration) {
	r.aliases = append(r.aliases, alias)
}

func TestFetchMovementsObservesLatency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"hits":{"hits":[]}}`))
	}))
	defer server.Close()

	observer := &recordingLatency{}
	client, err := NewClient(ClientConfig{
		BaseURL:           server.URL + "/",
		APIKey:            testAPIKey,
		RequestsPerSecond: 100,
		Latency:           observer,
	})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}

	if _, err := client.FetchMovements(context.Background(), mustIdentifier(t, "0000007-55.2020.8.07.0001")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(observer.aliases) != 1 || observer.aliases[0] != "tjdft" {
		t.Fatalf("unexpected latency observations %v", observer.aliases)
	}
}
