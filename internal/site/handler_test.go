package site

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fishtank/internal/forms/models"
	"fishtank/internal/forms/schema"
	"fishtank/internal/forms/service"
	"fishtank/internal/forms/store"
	"fishtank/internal/forms/ticket"
)

type recordingRelay struct {
	mu    sync.Mutex
	sent  []models.Dispatch
	reply error

	// started and gate hold a dispatch until the test closes gate.
	started chan struct{}
	gate    chan struct{}
}

func (r *recordingRelay) Dispatch(_ context.Context, d models.Dispatch) error {
	if r.gate != nil {
		r.started <- struct{}{}
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, d)
	return r.reply
}

type pageFixture struct {
	router http.Handler
	relay  *recordingRelay
	now    time.Time
	mu     sync.Mutex
}

func (f *pageFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *pageFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newPageFixture(t *testing.T) *pageFixture {
	t.Helper()
	f := &pageFixture{relay: &recordingRelay{}, now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(schema.Default(), store.NewInMemorySessionStore(),
		ticket.New("page-test-signing-key-0123456789", time.Hour, ticket.WithClock(f.clock)),
		f.relay, &service.Config{}, service.WithClock(f.clock), service.WithLogger(logger))
	require.NoError(t, err)

	renderer, err := NewRenderer()
	require.NoError(t, err)
	r := chi.NewRouter()
	New(svc, renderer, logger).Register(r, nil)
	f.router = r
	return f
}

func (f *pageFixture) get(t *testing.T, target string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec.Code, rec.Body.String()
}

func (f *pageFixture) post(t *testing.T, target string, form url.Values) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

var ticketRe = regexp.MustCompile(`name="ticket" value="([^"]+)"`)

// tickets returns the apply and feedback tickets, in page order.
func tickets(t *testing.T, body string) (string, string) {
	t.Helper()
	m := ticketRe.FindAllStringSubmatch(body, -1)
	require.Len(t, m, 2)
	return m[0][1], m[1][1]
}

func TestPage(t *testing.T) {
	t.Run("renders both forms with the default role", func(t *testing.T) {
		f := newPageFixture(t)
		status, body := f.get(t, "/apply")

		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "Join the Waitlist")
		assert.Contains(t, body, `name="building"`)
		assert.Contains(t, body, `name="message"`)
		assert.Contains(t, body, `value="innovator" formnovalidate aria-pressed="true"`)
		assert.Equal(t, 2, strings.Count(body, `name="company_website"`))
		tickets(t, body)
	})

	t.Run("role from query", func(t *testing.T) {
		f := newPageFixture(t)
		_, body := f.get(t, "/apply?role=creator")
		assert.Contains(t, body, `name="skill"`)
		assert.NotContains(t, body, `name="building"`)
	})

	t.Run("unknown role falls back", func(t *testing.T) {
		f := newPageFixture(t)
		status, body := f.get(t, "/apply?role=pirate")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `name="building"`)
	})
}

func TestRoleSwitchKeepsValues(t *testing.T) {
	f := newPageFixture(t)
	_, body := f.get(t, "/apply")
	applyTk, feedbackTk := tickets(t, body)

	status, body := f.post(t, "/apply", url.Values{
		"ticket":          {applyTk},
		"feedback_ticket": {feedbackTk},
		"role":            {"innovator"},
		"switch_role":     {"investor"},
		"email":           {"a@b.co"},
		"building":        {"rockets"},
	})

	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `name="vcfirm"`)
	assert.Contains(t, body, `value="a@b.co"`)
	assert.Empty(t, f.relay.sent)

	gotApply, gotFeedback := tickets(t, body)
	assert.Equal(t, applyTk, gotApply)
	assert.Equal(t, feedbackTk, gotFeedback, "the other form keeps its instance")

	_, body = f.post(t, "/apply", url.Values{
		"ticket":      {applyTk},
		"role":        {"investor"},
		"switch_role": {"innovator"},
		"email":       {"a@b.co"},
	})
	assert.Contains(t, body, `>rockets</textarea>`, "values typed under another role come back")
}

func TestSubmitApply(t *testing.T) {
	f := newPageFixture(t)
	_, body := f.get(t, "/apply?role=creator")
	applyTk, feedbackTk := tickets(t, body)
	f.advance(5 * time.Second)

	status, body := f.post(t, "/apply", url.Values{
		"ticket":          {applyTk},
		"feedback_ticket": {feedbackTk},
		"role":            {"creator"},
		"email":           {"a@b.co"},
		"name":            {"Ann"},
		"phone":           {"555"},
		"skill":           {"Video"},
		"company_website": {""},
	})

	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Thanks! You joined the waitlist as Creator.")
	assert.NotContains(t, body, `value="Ann"`)
	require.Len(t, f.relay.sent, 1)
	assert.Equal(t, models.RoleCreator, f.relay.sent[0].Role)
}

func TestRoleSwitchWhileSubmitting(t *testing.T) {
	f := newPageFixture(t)
	f.relay.started, f.relay.gate = make(chan struct{}, 1), make(chan struct{})
	_, body := f.get(t, "/apply?role=creator")
	applyTk, feedbackTk := tickets(t, body)
	f.advance(5 * time.Second)

	done := make(chan int, 1)
	go func() {
		status, _ := f.post(t, "/apply", url.Values{
			"ticket": {applyTk}, "role": {"creator"},
			"email": {"a@b.co"}, "name": {"Ann"}, "phone": {"555"}, "skill": {"Video"},
		})
		done <- status
	}()
	select {
	case <-f.relay.started:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never reached the relay")
	}

	status, body := f.post(t, "/apply", url.Values{
		"ticket":          {applyTk},
		"feedback_ticket": {feedbackTk},
		"role":            {"creator"},
		"switch_role":     {"investor"},
		"email":           {"changed@b.co"},
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body, "Your submission is already being processed.")
	assert.Contains(t, body, `value="a@b.co"`)
	assert.NotContains(t, body, `name="vcfirm"`)

	close(f.relay.gate)
	assert.Equal(t, http.StatusOK, <-done)
	require.Len(t, f.relay.sent, 1)
	assert.Equal(t, "a@b.co", f.relay.sent[0].Values["email"])
}

func TestSubmitFeedbackTooFast(t *testing.T) {
	f := newPageFixture(t)
	_, body := f.get(t, "/apply")
	applyTk, feedbackTk := tickets(t, body)
	f.advance(time.Second)

	status, body := f.post(t, "/feedback", url.Values{
		"ticket":       {feedbackTk},
		"apply_ticket": {applyTk},
		"name":         {"Ann"},
		"email":        {"a@b.co"},
		"message":      {"hi"},
	})

	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, body, "Submission blocked.")
	assert.Contains(t, body, `>hi</textarea>`, "values are kept")
	assert.Empty(t, f.relay.sent)
}

func TestSubmitValidationMessage(t *testing.T) {
	f := newPageFixture(t)
	_, body := f.get(t, "/apply")
	applyTk, _ := tickets(t, body)
	f.advance(4 * time.Second)

	status, body := f.post(t, "/apply", url.Values{
		"ticket": {applyTk}, "email": {"a@b.co"}, "name": {"Ann"}, "phone": {"555"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body, "Please fill: What are you building?")
}

func TestStaleTicketRemounts(t *testing.T) {
	f := newPageFixture(t)
	status, body := f.post(t, "/feedback", url.Values{
		"ticket":  {"stale"},
		"name":    {"Ann"},
		"message": {"hello"},
	})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, messageExpired)
	assert.Contains(t, body, `value="Ann"`)
	assert.Contains(t, body, `>hello</textarea>`)
	tickets(t, body)
}
