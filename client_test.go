package saldo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	testResponseBody       = "test response"
	contentTypeJSON        = "application/json"
	expectedStatus200Msg   = "Expected status 200, got %d"
	failedWriteResponseMsg = "Failed to write response: %v"
)

func newTestRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	return req
}

// fastBackoff keeps retry sleeps out of test runtime.
func fastBackoff() []Option {
	return []Option{
		WithInitialBackoff(time.Millisecond),
		WithMaxBackoff(5 * time.Millisecond),
		WithJitter(0),
	}
}

func serverEndpoint(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://") + "/"
}

func TestNew(t *testing.T) {
	client := New()

	if client == nil {
		t.Fatal("New() returned nil")
	}
	if client.maxRetries != DefaultMaxRetries {
		t.Errorf("maxRetries = %d, want %d", client.maxRetries, DefaultMaxRetries)
	}
	if client.initialBackoff != DefaultInitialBackoff {
		t.Errorf("initialBackoff = %v, want %v", client.initialBackoff, DefaultInitialBackoff)
	}
	if client.overallTimeout != DefaultOverallTimeout {
		t.Errorf("overallTimeout = %v, want %v", client.overallTimeout, DefaultOverallTimeout)
	}
	if client.minRequestTimeout != DefaultMinRequestTimeout {
		t.Errorf("minRequestTimeout = %v, want %v", client.minRequestTimeout, DefaultMinRequestTimeout)
	}
	if !client.idempotencyKeys {
		t.Error("idempotencyKeys disabled by default, want enabled")
	}
	if client.retryPolicy == nil || client.retryPolicy.MaxRetries() != DefaultMaxRetries {
		t.Error("default retry policy not built")
	}
	if client.breakers == nil {
		t.Error("circuit breaker group not built")
	}
	if client.pool == nil {
		t.Error("connection pool not built")
	}
	if !client.IsValid() {
		t.Errorf("IsValid() = false for defaults: %v", client.ValidationError())
	}
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			t.Errorf("Idempotency-Key = %q on a GET, want none", key)
		}
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client := New()
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf(expectedStatus200Msg, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != testResponseBody {
		t.Errorf("body = %q, want %q", body, testResponseBody)
	}
}

func TestPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != contentTypeJSON {
			t.Errorf("Content-Type = %q, want %q", ct, contentTypeJSON)
		}
		if key := r.Header.Get("Idempotency-Key"); key == "" {
			t.Error("Idempotency-Key missing on a POST")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New()
	resp, err := client.Post(context.Background(), server.URL, contentTypeJSON, strings.NewReader(`{"amount":100}`))
	if err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
}

func TestIdempotencyKeyPreserved(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Idempotency-Key")
	}))
	defer server.Close()

	client := New()
	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Idempotency-Key", "caller-chosen-key")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() returned error: %v", err)
	}
	resp.Body.Close()

	if seen != "caller-chosen-key" {
		t.Errorf("Idempotency-Key = %q, want the caller's key preserved", seen)
	}
}

func TestIdempotencyKeysDisabled(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Idempotency-Key")
	}))
	defer server.Close()

	client := New(WithIdempotencyKeys(false))
	resp, err := client.Post(context.Background(), server.URL, contentTypeJSON, strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	resp.Body.Close()

	if seen != "" {
		t.Errorf("Idempotency-Key = %q with generation disabled, want none", seen)
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(append(fastBackoff(), WithMaxRetries(3))...)
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	resp.Body.Close()

	if callCount != 3 {
		t.Errorf("server calls = %d, want 3", callCount)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf(expectedStatus200Msg, resp.StatusCode)
	}
}

func TestDoRetryExhaustionReturnsLastResponse(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var retries, exhaustions int
	var exhaustedErr error
	hooks := RetryHooks{
		OnRetry: func(attempt int, delay time.Duration, err error) {
			retries++
		},
		OnExhausted: func(attempts int, err error) {
			exhaustions++
			exhaustedErr = err
		},
	}

	client := New(append(fastBackoff(), WithMaxRetries(3), WithRetryHooks(hooks))...)
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	resp.Body.Close()

	if callCount != 4 { // initial + 3 retries
		t.Errorf("server calls = %d, want 4", callCount)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want the final 500 handed back", resp.StatusCode)
	}
	if retries != 3 {
		t.Errorf("OnRetry calls = %d, want 3", retries)
	}
	if exhaustions != 1 {
		t.Fatalf("OnExhausted calls = %d, want exactly 1", exhaustions)
	}

	var clientErr *ClientError
	if !errors.As(exhaustedErr, &clientErr) {
		t.Fatalf("OnExhausted error type = %T, want *ClientError", exhaustedErr)
	}
	if !clientErr.Exhausted {
		t.Error("OnExhausted error not marked Exhausted")
	}
	if clientErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("OnExhausted StatusCode = %d, want 500", clientErr.StatusCode)
	}
}

func TestDoTransportErrorExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // all connections refused

	client := New(append(fastBackoff(), WithMaxRetries(1))...)
	_, err := client.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Get() against a closed server returned nil error")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("error type = %T, want *ClientError", err)
	}
	if clientErr.Type != ErrorTypeNetwork {
		t.Errorf("error Type = %s, want %s", clientErr.Type, ErrorTypeNetwork)
	}
	if !clientErr.Exhausted {
		t.Error("error not marked Exhausted after the retry cap")
	}
	if clientErr.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", clientErr.Attempt)
	}
}

func TestDoDoesNotRetryNonIdempotentResponses(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(append(fastBackoff(), WithMaxRetries(3))...)
	resp, err := client.Post(context.Background(), server.URL, contentTypeJSON, strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	resp.Body.Close()

	// The 500 reached us, so the POST may have been applied; never replay it.
	if callCount != 1 {
		t.Errorf("server calls = %d, want 1", callCount)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(append(fastBackoff(), WithMaxRetries(3))...)
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	resp.Body.Close()

	if callCount != 1 {
		t.Errorf("server calls = %d, want 1", callCount)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPostReplaysBodyOnRetry(t *testing.T) {
	const payload = `{"amount":100,"currency":"USD"}`

	var serverBody string
	serverCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverCalls++
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading request body: %v", err)
		}
		serverBody = string(body)
	}))
	defer server.Close()

	attempts := 0
	failFirst := func(req *http.Request, next RoundTripper) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return next.RoundTrip(req)
	}

	client := New(append(fastBackoff(), WithMaxRetries(2), WithMiddleware(failFirst))...)
	resp, err := client.Post(context.Background(), server.URL, contentTypeJSON, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	resp.Body.Close()

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if serverCalls != 1 {
		t.Errorf("server calls = %d, want 1", serverCalls)
	}
	if serverBody != payload {
		t.Errorf("replayed body = %q, want %q", serverBody, payload)
	}
}

// opaqueReader hides the concrete reader type so http.NewRequest cannot
// derive GetBody.
type opaqueReader struct{ io.Reader }

func TestPostNonReplayableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	alwaysFail := func(req *http.Request, next RoundTripper) (*http.Response, error) {
		return nil, errors.New("connection reset by peer")
	}

	client := New(append(fastBackoff(), WithMaxRetries(2), WithMiddleware(alwaysFail))...)
	req, err := http.NewRequest(http.MethodPost, server.URL, opaqueReader{strings.NewReader("{}")})
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	_, err = client.Do(req)
	if err == nil {
		t.Fatal("Do() with a non-replayable body retried without error")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("error type = %T, want *ClientError", err)
	}
	if clientErr.Type != ErrorTypeClient {
		t.Errorf("error Type = %s, want %s", clientErr.Type, ErrorTypeClient)
	}
}

func TestCircuitBreakerShortCircuits(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(
		WithMaxRetries(0),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 2,
			RecoveryTimeout:  time.Minute,
		}),
	)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Get() #%d returned error: %v", i+1, err)
		}
		resp.Body.Close()
	}

	_, err := client.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Get() with an open breaker returned nil error")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("error type = %T, want *ClientError", err)
	}
	if clientErr.Type != ErrorTypeCircuitOpen {
		t.Errorf("error Type = %s, want %s", clientErr.Type, ErrorTypeCircuitOpen)
	}

	if callCount != 2 {
		t.Errorf("server calls = %d, want the third request short-circuited", callCount)
	}

	states := client.CircuitBreakerStates()
	if state := states[serverEndpoint(server)]; state != StateOpen {
		t.Errorf("breaker state = %v, want %v", state, StateOpen)
	}
}

func TestTimeoutBudgetExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(60 * time.Millisecond)
	}))
	defer server.Close()

	exhaustions := 0
	client := New(append(fastBackoff(),
		WithMaxRetries(5),
		WithTimeout(80*time.Millisecond),
		WithMinRequestTimeout(40*time.Millisecond),
		WithRetryHooks(RetryHooks{
			OnExhausted: func(attempts int, err error) { exhaustions++ },
		}),
	)...)

	_, err := client.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Get() returned nil error with the budget exhausted")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("error type = %T, want *ClientError", err)
	}
	if clientErr.Type != ErrorTypeTimeout {
		t.Errorf("error Type = %s, want %s", clientErr.Type, ErrorTypeTimeout)
	}
	if !clientErr.Exhausted {
		t.Error("error not marked Exhausted")
	}
	if exhaustions != 1 {
		t.Errorf("OnExhausted calls = %d, want exactly 1", exhaustions)
	}
}

func TestShortDeadlineStillAttempts(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	// A deadline under the per-attempt floor must still fund the first
	// attempt; the minimum-budget gate applies to retries only.
	client := New(WithMinRequestTimeout(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	resp, err := client.Get(ctx, server.URL)
	if err != nil {
		t.Fatalf("Get() with a sub-minimum deadline returned error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf(expectedStatus200Msg, resp.StatusCode)
	}
	if calls != 1 {
		t.Errorf("server calls = %d, want 1", calls)
	}
}

func TestCustomRetryConditionExhaustion(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	exhaustions := 0
	client := New(append(fastBackoff(),
		WithMaxRetries(2),
		WithRetryCondition(func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode == http.StatusNotFound)
		}),
		WithRetryHooks(RetryHooks{
			OnExhausted: func(attempts int, err error) {
				exhaustions++
				var clientErr *ClientError
				if !errors.As(err, &clientErr) || !clientErr.Exhausted {
					t.Errorf("OnExhausted error = %v, want an Exhausted *ClientError", err)
				}
			},
		}),
	)...)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if calls != 3 {
		t.Errorf("server calls = %d, want 1 + 2 retries", calls)
	}

	// The caller-supplied condition, not the stock one, decides that the
	// loop gave up on a retryable outcome.
	if exhaustions != 1 {
		t.Errorf("OnExhausted calls = %d, want exactly 1", exhaustions)
	}
}

func TestCacheServesRepeatedGets(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client := New(WithCache(time.Minute))

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Get() #%d returned error: %v", i+1, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("reading body #%d: %v", i+1, err)
		}
		if string(body) != testResponseBody {
			t.Errorf("body #%d = %q, want %q", i+1, body, testResponseBody)
		}
	}

	if callCount != 1 {
		t.Errorf("server calls = %d, want the second GET served from cache", callCount)
	}
}

func TestCacheControlDisablesCaching(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
	}))
	defer server.Close()

	client := New(WithCache(time.Minute))
	ctx := WithContextCacheDisabled(context.Background())

	for i := 0; i < 2; i++ {
		resp, err := client.Get(ctx, server.URL)
		if err != nil {
			t.Fatalf("Get() #%d returned error: %v", i+1, err)
		}
		resp.Body.Close()
	}

	if callCount != 2 {
		t.Errorf("server calls = %d, want caching bypassed for both", callCount)
	}
}

func TestCoalescingMergesConcurrentGets(t *testing.T) {
	var callCount int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&callCount, 1)
		time.Sleep(100 * time.Millisecond)
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Errorf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client := New(WithCoalescing(time.Second))

	const callers = 5
	var wg sync.WaitGroup
	bodies := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(context.Background(), server.URL)
			if err != nil {
				t.Errorf("Get() returned error: %v", err)
				return
			}
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				t.Errorf("reading body: %v", err)
				return
			}
			bodies <- string(body)
		}()
	}
	wg.Wait()
	close(bodies)

	if got := atomic.LoadInt64(&callCount); got != 1 {
		t.Errorf("server calls = %d, want all callers coalesced into 1", got)
	}
	for body := range bodies {
		if body != testResponseBody {
			t.Errorf("body = %q, want %q", body, testResponseBody)
		}
	}
	if inFlight := client.coalescer.InFlight(); inFlight != 0 {
		t.Errorf("in-flight entries = %d after completion, want 0", inFlight)
	}
}

func TestAccessManagerStampsToken(t *testing.T) {
	tokenCalls := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Header().Set("Content-Type", contentTypeJSON)
		if _, err := w.Write([]byte(`{"accessToken":"tok-ledger","expiresIn":3600}`)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer tokenSrv.Close()

	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := New(WithAccessManager(AccessManagerConfig{
		TokenURL:     tokenSrv.URL,
		ClientID:     "ledger-client",
		ClientSecret: "secret",
	}))

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Get() #%d returned error: %v", i+1, err)
		}
		resp.Body.Close()
	}

	if authHeader != "Bearer tok-ledger" {
		t.Errorf("Authorization = %q, want %q", authHeader, "Bearer tok-ledger")
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint calls = %d, want the stored token reused", tokenCalls)
	}
}

func TestAuthFailureShortCircuits(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer tokenSrv.Close()

	apiCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls++
	}))
	defer server.Close()

	client := New(WithAccessManager(AccessManagerConfig{
		TokenURL:     tokenSrv.URL,
		ClientID:     "ledger-client",
		ClientSecret: "wrong",
	}))

	_, err := client.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Get() returned nil error with a rejecting token endpoint")
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("error type = %T, want *ClientError", err)
	}
	if clientErr.Type != ErrorTypeAuthentication {
		t.Errorf("error Type = %s, want %s", clientErr.Type, ErrorTypeAuthentication)
	}
	if apiCalls != 0 {
		t.Errorf("API calls = %d, want the request never sent", apiCalls)
	}
}

func TestRateLimiterRejects(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
	}))
	defer server.Close()

	client := New(WithRateLimiter(RateLimiterConfig{
		MaxRequests: 1,
		Window:      time.Second,
		QueueExcess: false,
	}))

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() #1 returned error: %v", err)
	}
	resp.Body.Close()

	_, err = client.Get(context.Background(), server.URL)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Get() #2 error = %v, want ErrRateLimited", err)
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("error type = %T, want *ClientError", err)
	}
	if clientErr.Type != ErrorTypeRateLimit {
		t.Errorf("error Type = %s, want %s", clientErr.Type, ErrorTypeRateLimit)
	}
	if callCount != 1 {
		t.Errorf("server calls = %d, want the second request rejected locally", callCount)
	}
}

func TestExecuteMiddleware(t *testing.T) {
	callOrder := []string{}

	middleware1 := func(req *http.Request, next RoundTripper) (*http.Response, error) {
		callOrder = append(callOrder, "middleware1")
		return next.RoundTrip(req)
	}
	middleware2 := func(req *http.Request, next RoundTripper) (*http.Response, error) {
		callOrder = append(callOrder, "middleware2")
		return next.RoundTrip(req)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callOrder = append(callOrder, "handler")
	}))
	defer server.Close()

	client := New(WithMiddleware(middleware1, middleware2))
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	resp.Body.Close()

	expectedOrder := []string{"middleware1", "middleware2", "handler"}
	if len(callOrder) != len(expectedOrder) {
		t.Fatalf("call order = %v, want %v", callOrder, expectedOrder)
	}
	for i, expected := range expectedOrder {
		if callOrder[i] != expected {
			t.Errorf("call order = %v, want %v", callOrder, expectedOrder)
		}
	}
}

func TestClientWithCustomHTTPClient(t *testing.T) {
	customClient := &http.Client{Timeout: 10 * time.Second}

	client := New(WithHTTPClient(customClient))
	if client.httpClient != customClient {
		t.Error("custom HTTP client not set")
	}
}

func TestClientWithMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	client := New(WithMetricsCollector(collector))
	if client.metrics != collector {
		t.Fatal("metrics collector not set")
	}

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	resp.Body.Close()

	endpoint := serverEndpoint(server)
	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("GET", "200", endpoint)); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
}

func TestValidation(t *testing.T) {
	client := New(WithMaxRetries(-1))
	if client.IsValid() {
		t.Error("IsValid() = true with negative maxRetries")
	}

	err := client.ValidationError()
	if err == nil {
		t.Fatal("ValidationError() = nil with negative maxRetries")
	}
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("error type = %T, want *ClientError", err)
	}
	if clientErr.Type != ErrorTypeValidation {
		t.Errorf("error Type = %s, want %s", clientErr.Type, ErrorTypeValidation)
	}

	defer func() {
		if recover() == nil {
			t.Error("ValidateConfigurationStrict() did not panic for invalid configuration")
		}
	}()
	client.ValidateConfigurationStrict()
}

func TestClose(t *testing.T) {
	client := New(WithCustomCache(NewInMemoryCacheWithJanitor(10, 10*time.Millisecond), time.Minute))
	client.Close()
	client.Close() // idempotent
}

// Benchmark tests for performance measurement

func BenchmarkClientGet(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			b.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client := New()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, err := client.Get(context.Background(), server.URL)
			if err != nil {
				b.Fatal(err)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	})
}

func BenchmarkClientWithCache(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			b.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client := New(WithCache(time.Hour))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		if err != nil {
			b.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func BenchmarkClientFullFeatures(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			b.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	client := New(
		WithMaxRetries(2),
		WithCache(5*time.Minute),
		WithCoalescing(time.Second),
		WithRateLimiter(RateLimiterConfig{MaxRequests: 100000, Window: time.Second}),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 1000,
			RecoveryTimeout:  5 * time.Second,
		}),
		WithMetricsCollector(collector),
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		if err != nil {
			b.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
