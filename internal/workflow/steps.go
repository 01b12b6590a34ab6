package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const maxAPIResponseBytes = 1 << 20

// outcome is what a single step reports back to the engine.
type outcome struct {
	success bool
	pending bool
	output  map[string]any
	err     string
	next    string
	// open runs once the pending execution is stored.
	open func(context.Context) error
}

func succeeded(output map[string]any) outcome {
	if output == nil {
		output = map[string]any{}
	}
	return outcome{success: true, output: output}
}

func failed(format string, args ...any) outcome {
	return outcome{output: map[string]any{}, err: fmt.Sprintf(format, args...)}
}

// stepEnv is the state a step sees while it runs.
type stepEnv struct {
	workflow  *domain.Workflow
	execution *domain.WorkflowExecution
	index     int
	step      domain.WorkflowStep
	data      map[string]any
}

type stepRunner interface {
	run(ctx context.Context, e *Engine, env *stepEnv) outcome
}

// compileStep decodes the raw step config into its typed form.
func compileStep(step domain.WorkflowStep) (stepRunner, error) {
	switch step.Kind {
	case domain.StepKindAPICall:
		var cfg apiCallStep
		if err := decodeConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("api url not configured")
		}
		if len(cfg.Body) > 0 && !json.Valid(cfg.Body) {
			return nil, errors.New("api body is not valid json")
		}
		return &cfg, nil
	case domain.StepKindLDAPQuery:
		var cfg directoryStep
		if err := decodeConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	case domain.StepKindScript:
		var cfg scriptStep
		if err := decodeConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(cfg.Script) == "" {
			return nil, errors.New("script not provided")
		}
		return &cfg, nil
	case domain.StepKindCondition:
		var cfg conditionStep
		if err := decodeConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	case domain.StepKindDelay:
		var cfg delayStep
		if err := decodeConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	case domain.StepKindApproval:
		var cfg approvalStep
		if err := decodeConfig(step.Config, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	default:
		return nil, fmt.Errorf("unknown step type: %s", step.Kind)
	}
}

func decodeConfig(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid step config: %w", err)
	}
	return nil
}

type apiCallStep struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers"`
	Body         json.RawMessage   `json:"body"`
	ResponsePath string            `json:"responsePath"`
	TimeoutMs    int               `json:"timeoutMs"`
}

func (s *apiCallStep) run(ctx context.Context, e *Engine, env *stepEnv) outcome {
	method := strings.ToUpper(strings.TrimSpace(s.Method))
	if method == "" {
		method = http.MethodGet
	}
	target := Substitute(s.URL, env.data, url.QueryEscape)

	var body io.Reader
	if len(s.Body) > 0 && string(s.Body) != "null" {
		payload, err := SubstituteJSON(s.Body, env.data)
		if err != nil {
			return failed("%v", err)
		}
		body = bytes.NewReader(payload)
	}

	timeout := e.apiTimeout
	if s.TimeoutMs > 0 {
		timeout = time.Duration(s.TimeoutMs) * time.Millisecond
	}
	if e.maxAPITimeout > 0 && timeout > e.maxAPITimeout {
		timeout = e.maxAPITimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, target, body)
	if err != nil {
		return failed("build api request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.Headers {
		req.Header.Set(key, value)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return failed("api call failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed("api call failed: %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return failed("read api response: %v", err)
	}
	var decoded any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			decoded = string(raw)
		}
	}

	output := map[string]any{"apiResponse": decoded}
	if s.ResponsePath != "" {
		value, _ := LookupPath(decoded, s.ResponsePath)
		output[env.step.Name] = value
	}
	return succeeded(output)
}

type directoryStep struct {
	Action   string `json:"action"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (s *directoryStep) run(ctx context.Context, e *Engine, env *stepEnv) outcome {
	subject := DirectorySubject{
		Email:    firstNonEmpty(s.Email, stringValue(env.data["requesterEmail"]), firstEntity(env.data, "emails")),
		Username: firstNonEmpty(s.Username, stringValue(env.data["username"]), firstEntity(env.data, "usernames")),
	}

	switch s.Action {
	case "password_reset":
		if err := e.directory.ResetPassword(ctx, subject); err != nil {
			return failed("password reset failed: %v", err)
		}
		return succeeded(map[string]any{
			"passwordReset": true,
			"message":       "Password reset email sent to " + firstNonEmpty(subject.Email, subject.Username, "user"),
		})
	case "account_unlock":
		if err := e.directory.UnlockAccount(ctx, subject); err != nil {
			return failed("account unlock failed: %v", err)
		}
		return succeeded(map[string]any{
			"accountUnlocked": true,
			"message":         "Account unlocked for " + firstNonEmpty(subject.Username, subject.Email, "user"),
		})
	default:
		return failed("unknown directory action: %s", s.Action)
	}
}

type scriptStep struct {
	Script string `json:"script"`
}

// run evaluates the expression in a sandbox holding only the context.
// Context keys are visible both directly and under "context".
func (s *scriptStep) run(_ context.Context, _ *Engine, env *stepEnv) outcome {
	scope := make(map[string]any, len(env.data)+1)
	for key, value := range env.data {
		scope[key] = value
	}
	scope["context"] = env.data

	program, err := expr.Compile(s.Script, expr.Env(scope), expr.AllowUndefinedVariables())
	if err != nil {
		return failed("compile script: %v", err)
	}
	result, err := expr.Run(program, scope)
	if err != nil {
		return failed("run script: %v", err)
	}
	return succeeded(map[string]any{env.step.Name: result})
}

var conditionPattern = regexp.MustCompile(`^\s*(\w+)\s*(==|!=)\s*(.+?)\s*$`)

type conditionStep struct {
	Condition string `json:"condition"`
	ThenStep  string `json:"thenStep"`
	ElseStep  string `json:"elseStep"`
}

func (s *conditionStep) run(_ context.Context, _ *Engine, env *stepEnv) outcome {
	met := EvaluateCondition(s.Condition, env.data)
	result := succeeded(map[string]any{"conditionMet": met})
	if met {
		result.next = s.ThenStep
	} else {
		result.next = s.ElseStep
	}
	return result
}

// EvaluateCondition checks a "key == value" or "key != value" predicate.
// Missing keys compare as the empty string; an unparseable condition is false.
func EvaluateCondition(condition string, data map[string]any) bool {
	match := conditionPattern.FindStringSubmatch(condition)
	if match == nil {
		return false
	}
	key, operator, expected := match[1], match[2], unquote(match[3])

	actual := ""
	if value, ok := data[key]; ok && value != nil {
		actual = fmt.Sprint(value)
	}
	if operator == "==" {
		return actual == expected
	}
	return actual != expected
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return value
}

type delayStep struct {
	DurationMs *int `json:"durationMs"`
}

func (s *delayStep) run(ctx context.Context, e *Engine, _ *stepEnv) outcome {
	duration := time.Second
	if s.DurationMs != nil {
		duration = time.Duration(*s.DurationMs) * time.Millisecond
	}
	if duration < 0 {
		duration = 0
	}
	if e.maxDelay > 0 && duration > e.maxDelay {
		duration = e.maxDelay
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return succeeded(nil)
	case <-ctx.Done():
		return failed("delay interrupted: %v", ctx.Err())
	}
}

type approvalStep struct {
	AutoApprove    bool     `json:"autoApprove"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	ExpiresInHours *float64 `json:"expiresInHours"`
}

func (s *approvalStep) run(ctx context.Context, e *Engine, env *stepEnv) outcome {
	if approved, _ := env.data["approved"].(bool); approved {
		return succeeded(map[string]any{"approved": true, "approvedBy": "employee", "approvalPending": false})
	}
	if s.AutoApprove {
		return succeeded(map[string]any{"approved": true, "approvedBy": "system"})
	}
	if env.execution.TicketID == nil {
		return failed("approval requires a ticket")
	}
	if e.approver == nil {
		return failed("approval gate not configured")
	}

	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Approval required: " + env.step.Name
	}
	body := strings.TrimSpace(s.Body)
	if body == "" {
		body = "This issue can be resolved automatically. Please approve to proceed."
	}
	expiresIn := 24 * time.Hour
	if s.ExpiresInHours != nil {
		expiresIn = time.Duration(*s.ExpiresInHours * float64(time.Hour))
	}

	prepared, err := e.approver.PrepareApproval(ctx, PendingApproval{
		TicketID:    *env.execution.TicketID,
		WorkflowID:  env.workflow.ID,
		ExecutionID: env.execution.ID,
		StepIndex:   env.index,
		Title:       title,
		Body:        body,
		Input:       cloneMap(env.data),
		ExpiresIn:   expiresIn,
	})
	if err != nil {
		return failed("request approval: %v", err)
	}
	return outcome{
		pending: true,
		output:  map[string]any{"approvalPending": true, "approvalId": prepared.ID},
		open:    prepared.Open,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringValue(value any) string {
	s, _ := value.(string)
	return s
}

func firstEntity(data map[string]any, kind string) string {
	entities, ok := data["entities"].(map[string]any)
	if !ok {
		return ""
	}
	switch list := entities[kind].(type) {
	case []any:
		if len(list) > 0 {
			return stringValue(list[0])
		}
	case []string:
		if len(list) > 0 {
			return list[0]
		}
	}
	return ""
}
