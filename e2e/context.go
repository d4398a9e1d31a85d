package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fishtank/internal/app"
	"fishtank/internal/platform/config"
)

// relayMode selects how the fake relay answers.
type relayMode int

const (
	relayAccept relayMode = iota
	relayReject
	relayFail
	relayHold
)

// fakeRelay stands in for the spreadsheet relay endpoint.
type fakeRelay struct {
	server *httptest.Server

	mu       sync.Mutex
	mode     relayMode
	reason   string
	payloads []map[string]any
	calls    atomic.Int32

	// started receives once per held request; release unblocks all of them.
	started chan struct{}
	release chan struct{}
}

func newFakeRelay() *fakeRelay {
	f := &fakeRelay{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

func (f *fakeRelay) serve(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	var payload map[string]any
	if err := r.ParseForm(); err == nil {
		_ = json.Unmarshal([]byte(r.PostForm.Get("json")), &payload)
	}

	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	mode, reason := f.mode, f.reason
	f.mu.Unlock()

	switch mode {
	case relayReject:
		fmt.Fprintf(w, `{"ok":false,"error":%q}`, reason)
	case relayFail:
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	case relayHold:
		f.started <- struct{}{}
		<-f.release
		fmt.Fprint(w, `{"ok":true}`)
	default:
		fmt.Fprint(w, `{"ok":true}`)
	}
}

func (f *fakeRelay) set(mode relayMode, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	f.reason = reason
}

func (f *fakeRelay) lastPayload() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

func (f *fakeRelay) close() {
	f.mu.Lock()
	if f.mode == relayHold {
		f.mode = relayAccept
		close(f.release)
	}
	f.mu.Unlock()
	f.server.Close()
}

// TestContext holds state between test steps. Each scenario gets its own
// in-process server, fake relay and clock.
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	Form   string
	Role   string
	Ticket string

	relay  *fakeRelay
	server *httptest.Server

	clockMu sync.Mutex
	now     time.Time
}

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	return &TestContext{
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		relay: newFakeRelay(),
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Start boots the service against the fake relay. env overrides the
// variables above; an empty value falls back to the config default.
func (tc *TestContext) Start(env map[string]string) error {
	vars := map[string]string{
		"FISHTANK_ENV":       "test",
		"RELAY_URL":          tc.relay.server.URL,
		"RELAY_API_KEY":      "e2e-relay-key",
		"TICKET_SIGNING_KEY": "e2e-ticket-signing-key",
		"RELAY_TIMEOUT":      "2s",
	}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.FromLookup(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(context.Background(), cfg, logger, app.WithClock(tc.Now))
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	tc.server = httptest.NewServer(a.Handler)
	tc.BaseURL = tc.server.URL
	return nil
}

// Close stops the server and the fake relay.
func (tc *TestContext) Close() {
	tc.relay.close()
	if tc.server != nil {
		tc.server.Close()
	}
}

func (tc *TestContext) Now() time.Time {
	tc.clockMu.Lock()
	defer tc.clockMu.Unlock()
	return tc.now
}

// Advance moves the service clock forward.
func (tc *TestContext) Advance(d time.Duration) {
	tc.clockMu.Lock()
	defer tc.clockMu.Unlock()
	tc.now = tc.now.Add(d)
}

// POST makes a JSON POST request and stores the response
func (tc *TestContext) POST(path string, body interface{}) error {
	status, resp, err := tc.Send(path, body)
	if err != nil {
		return err
	}
	tc.LastResponse = status
	tc.LastResponseBody = resp
	return nil
}

// Send makes a JSON POST request without touching the stored response, so
// it can run from several goroutines.
func (tc *TestContext) Send(path string, body interface{}) (*http.Response, []byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, tc.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, raw, nil
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return nil
}

// GetResponseField extracts a field from the JSON response
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}

	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}

	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err == nil {
		if _, ok := data[text]; ok {
			return true
		}
	}

	return false
}

// Getter methods for step package interfaces

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.LastResponse == nil {
		return ""
	}
	return tc.LastResponse.Header.Get(name)
}

func (tc *TestContext) GetForm() string     { return tc.Form }
func (tc *TestContext) GetRole() string     { return tc.Role }
func (tc *TestContext) GetTicket() string   { return tc.Ticket }
func (tc *TestContext) SetForm(form string) { tc.Form = form }
func (tc *TestContext) SetRole(role string) { tc.Role = role }
func (tc *TestContext) SetTicket(t string)  { tc.Ticket = t }

func (tc *TestContext) RelayAccepts()              { tc.relay.set(relayAccept, "") }
func (tc *TestContext) RelayRejects(reason string) { tc.relay.set(relayReject, reason) }
func (tc *TestContext) RelayFails()                { tc.relay.set(relayFail, "") }
func (tc *TestContext) RelayHolds()                { tc.relay.set(relayHold, "") }

// ReleaseRelay answers every held relay request.
func (tc *TestContext) ReleaseRelay() {
	tc.relay.mu.Lock()
	defer tc.relay.mu.Unlock()
	if tc.relay.mode == relayHold {
		tc.relay.mode = relayAccept
		close(tc.relay.release)
	}
}

// AwaitRelay blocks until a held relay request has arrived.
func (tc *TestContext) AwaitRelay(timeout time.Duration) error {
	select {
	case <-tc.relay.started:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("relay received no request within %s", timeout)
	}
}

func (tc *TestContext) RelayCalls() int { return int(tc.relay.calls.Load()) }

func (tc *TestContext) LastRelayPayload() map[string]any { return tc.relay.lastPayload() }
