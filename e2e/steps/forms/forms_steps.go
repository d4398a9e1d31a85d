package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	Send(path string, body interface{}) (*http.Response, []byte, error)
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string

	GetForm() string
	GetRole() string
	GetTicket() string
	SetForm(form string)
	SetRole(role string)
	SetTicket(ticket string)

	Advance(d time.Duration)

	RelayAccepts()
	RelayRejects(reason string)
	RelayFails()
	RelayHolds()
	ReleaseRelay()
	AwaitRelay(timeout time.Duration) error
	RelayCalls() int
	LastRelayPayload() map[string]any
}

// RegisterSteps registers the form flow step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &formSteps{tc: tc}

	// Relay behaviour
	ctx.Step(`^the relay accepts submissions$`, steps.relayAccepts)
	ctx.Step(`^the relay rejects submissions with "([^"]*)"$`, steps.relayRejects)
	ctx.Step(`^the relay is failing$`, steps.relayFails)
	ctx.Step(`^the relay holds submissions until released$`, steps.relayHolds)

	// Form session steps
	ctx.Step(`^I open the "([^"]*)" form$`, steps.openForm)
	ctx.Step(`^I open the "([^"]*)" form as "([^"]*)"$`, steps.openFormAs)
	ctx.Step(`^I switch the role to "([^"]*)" keeping:$`, steps.switchRole)
	ctx.Step(`^(\d+) seconds? pass(?:es)?$`, steps.secondsPass)

	// Submission steps
	ctx.Step(`^I submit the form with:$`, steps.submit)
	ctx.Step(`^I submit the form with the honeypot "([^"]*)" and:$`, steps.submitWithHoneypot)
	ctx.Step(`^I submit the form with a forged ticket$`, steps.submitForgedTicket)
	ctx.Step(`^I submit the form (\d+) times with:$`, steps.submitTimes)
	ctx.Step(`^I submit the form twice at once with:$`, steps.submitTwiceAtOnce)

	// Assertions
	ctx.Step(`^the missing labels should be "([^"]*)"$`, steps.missingLabelsShouldBe)
	ctx.Step(`^the returned values should be empty$`, steps.valuesShouldBeEmpty)
	ctx.Step(`^the returned value "([^"]*)" should equal "([^"]*)"$`, steps.valueShouldEqual)
	ctx.Step(`^the relay should have received (\d+) submissions?$`, steps.relayShouldHaveReceived)
	ctx.Step(`^the relayed "([^"]*)" should equal "([^"]*)"$`, steps.relayedFieldShouldEqual)
	ctx.Step(`^the relayed data should not contain "([^"]*)"$`, steps.relayedDataShouldNotContain)
	ctx.Step(`^one submission should succeed and one should be refused as busy$`, steps.oneSucceededOneBusy)
	ctx.Step(`^the response should carry a Retry-After header$`, steps.responseHasRetryAfter)
}

type formSteps struct {
	tc TestContext

	// statuses and outcomes of the concurrent submissions
	concurrent []int
	outcomes   []string
}

func (s *formSteps) relayAccepts(ctx context.Context) error {
	s.tc.RelayAccepts()
	return nil
}

func (s *formSteps) relayRejects(ctx context.Context, reason string) error {
	s.tc.RelayRejects(reason)
	return nil
}

func (s *formSteps) relayFails(ctx context.Context) error {
	s.tc.RelayFails()
	return nil
}

func (s *formSteps) relayHolds(ctx context.Context) error {
	s.tc.RelayHolds()
	return nil
}

func (s *formSteps) openForm(ctx context.Context, form string) error {
	return s.open(form, "")
}

func (s *formSteps) openFormAs(ctx context.Context, form, role string) error {
	return s.open(form, role)
}

func (s *formSteps) open(form, role string) error {
	path := "/api/forms/" + form + "/sessions"
	if role != "" {
		path += "?role=" + role
	}
	if err := s.tc.POST(path, map[string]any{}); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusCreated {
		return fmt.Errorf("open %s: expected status 201 but got %d\nResponse: %s", form, status, s.tc.GetLastResponseBody())
	}

	var session struct {
		Ticket string `json:"ticket"`
		Role   string `json:"role"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &session); err != nil {
		return fmt.Errorf("failed to parse session: %w", err)
	}
	s.tc.SetForm(form)
	s.tc.SetRole(session.Role)
	s.tc.SetTicket(session.Ticket)
	return nil
}

func (s *formSteps) switchRole(ctx context.Context, role string, table *godog.Table) error {
	values, err := tableValues(table)
	if err != nil {
		return err
	}
	err = s.tc.POST("/api/forms/"+s.tc.GetForm()+"/sessions/state", map[string]any{
		"ticket": s.tc.GetTicket(),
		"role":   role,
		"values": values,
	})
	if err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != http.StatusOK {
		return fmt.Errorf("switch role: expected status 200 but got %d\nResponse: %s", status, s.tc.GetLastResponseBody())
	}
	s.tc.SetRole(role)
	return nil
}

func (s *formSteps) secondsPass(ctx context.Context, n int) error {
	s.tc.Advance(time.Duration(n) * time.Second)
	return nil
}

func (s *formSteps) submit(ctx context.Context, table *godog.Table) error {
	return s.submitWith("", table)
}

func (s *formSteps) submitWithHoneypot(ctx context.Context, honeypot string, table *godog.Table) error {
	return s.submitWith(honeypot, table)
}

func (s *formSteps) submitWith(honeypot string, table *godog.Table) error {
	body, err := s.body(honeypot, table)
	if err != nil {
		return err
	}
	return s.tc.POST(s.submissionPath(), body)
}

func (s *formSteps) submitForgedTicket(ctx context.Context) error {
	return s.tc.POST(s.submissionPath(), map[string]any{
		"ticket": s.tc.GetTicket() + "tampered",
		"values": map[string]string{},
	})
}

func (s *formSteps) submitTimes(ctx context.Context, n int, table *godog.Table) error {
	for range n {
		if err := s.submitWith("", table); err != nil {
			return err
		}
	}
	return nil
}

func (s *formSteps) submitTwiceAtOnce(ctx context.Context, table *godog.Table) error {
	body, err := s.body("", table)
	if err != nil {
		return err
	}

	type result struct {
		status  int
		outcome string
		err     error
	}
	first := make(chan result, 1)
	go func() {
		resp, raw, err := s.tc.Send(s.submissionPath(), body)
		if err != nil {
			first <- result{err: err}
			return
		}
		first <- result{status: resp.StatusCode, outcome: outcomeOf(raw)}
	}()

	if err := s.tc.AwaitRelay(5 * time.Second); err != nil {
		return err
	}
	resp, raw, err := s.tc.Send(s.submissionPath(), body)
	if err != nil {
		return err
	}
	second := result{status: resp.StatusCode, outcome: outcomeOf(raw)}

	s.tc.ReleaseRelay()
	r := <-first
	if r.err != nil {
		return r.err
	}

	s.concurrent = []int{r.status, second.status}
	s.outcomes = []string{r.outcome, second.outcome}
	return nil
}

func (s *formSteps) missingLabelsShouldBe(ctx context.Context, expected string) error {
	v, err := s.tc.GetResponseField("missing_labels")
	if err != nil {
		return err
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("missing_labels: expected a list but got %v", v)
	}
	labels := make([]string, 0, len(items))
	for _, item := range items {
		labels = append(labels, fmt.Sprint(item))
	}
	if got := strings.Join(labels, ", "); got != expected {
		return fmt.Errorf("missing_labels: expected %q but got %q", expected, got)
	}
	return nil
}

func (s *formSteps) valuesShouldBeEmpty(ctx context.Context) error {
	values, err := s.values()
	if err != nil {
		return err
	}
	if len(values) != 0 {
		return fmt.Errorf("expected no values but got %v", values)
	}
	return nil
}

func (s *formSteps) valueShouldEqual(ctx context.Context, key, expected string) error {
	values, err := s.values()
	if err != nil {
		return err
	}
	if got := fmt.Sprint(values[key]); got != expected {
		return fmt.Errorf("value %s: expected %q but got %q", key, expected, got)
	}
	return nil
}

func (s *formSteps) relayShouldHaveReceived(ctx context.Context, n int) error {
	if got := s.tc.RelayCalls(); got != n {
		return fmt.Errorf("expected %d relay calls but got %d", n, got)
	}
	return nil
}

func (s *formSteps) relayedFieldShouldEqual(ctx context.Context, field, expected string) error {
	payload := s.tc.LastRelayPayload()
	if payload == nil {
		return fmt.Errorf("relay received no payload")
	}
	if data, ok := payload["data"].(map[string]any); ok && strings.HasPrefix(field, "data.") {
		key := strings.TrimPrefix(field, "data.")
		if got := fmt.Sprint(data[key]); got != expected {
			return fmt.Errorf("relayed %s: expected %q but got %q", field, expected, got)
		}
		return nil
	}
	if got := fmt.Sprint(payload[field]); got != expected {
		return fmt.Errorf("relayed %s: expected %q but got %q", field, expected, got)
	}
	return nil
}

func (s *formSteps) relayedDataShouldNotContain(ctx context.Context, key string) error {
	payload := s.tc.LastRelayPayload()
	if payload == nil {
		return fmt.Errorf("relay received no payload")
	}
	data, _ := payload["data"].(map[string]any)
	if _, ok := data[key]; ok {
		return fmt.Errorf("relayed data unexpectedly carries %s", key)
	}
	return nil
}

func (s *formSteps) oneSucceededOneBusy(ctx context.Context) error {
	want := map[string]int{"success": http.StatusOK, "busy": http.StatusConflict}
	seen := map[string]bool{}
	for i, outcome := range s.outcomes {
		status, ok := want[outcome]
		if !ok {
			return fmt.Errorf("unexpected outcome %q", outcome)
		}
		if s.concurrent[i] != status {
			return fmt.Errorf("outcome %s: expected status %d but got %d", outcome, status, s.concurrent[i])
		}
		seen[outcome] = true
	}
	if !seen["success"] || !seen["busy"] {
		return fmt.Errorf("expected one success and one busy but got %v", s.outcomes)
	}
	return nil
}

func (s *formSteps) responseHasRetryAfter(ctx context.Context) error {
	if s.tc.GetLastResponseHeader("Retry-After") == "" {
		return fmt.Errorf("response has no Retry-After header")
	}
	return nil
}

func (s *formSteps) body(honeypot string, table *godog.Table) (map[string]any, error) {
	values, err := tableValues(table)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"ticket": s.tc.GetTicket(),
		"values": values,
	}
	if role := s.tc.GetRole(); role != "" {
		body["role"] = role
	}
	if honeypot != "" {
		body["honeypot"] = honeypot
	}
	return body, nil
}

func (s *formSteps) submissionPath() string {
	return "/api/forms/" + s.tc.GetForm() + "/submissions"
}

func (s *formSteps) values() (map[string]any, error) {
	v, err := s.tc.GetResponseField("values")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	values, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("values: expected an object but got %v", v)
	}
	return values, nil
}

// tableValues reads a two-column field | value table.
func tableValues(table *godog.Table) (map[string]string, error) {
	values := make(map[string]string, len(table.Rows))
	for i, row := range table.Rows {
		if len(row.Cells) != 2 {
			return nil, fmt.Errorf("row %d: expected field and value columns", i+1)
		}
		if i == 0 && row.Cells[0].Value == "field" {
			continue
		}
		values[row.Cells[0].Value] = row.Cells[1].Value
	}
	return values, nil
}

func outcomeOf(raw []byte) string {
	var resp struct {
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ""
	}
	return resp.Outcome
}
