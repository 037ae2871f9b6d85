package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashahealth/mediwagon/internal/observability"
)

const maxResponseBytes = 1 << 20

// Config points the client at the three backends.
type Config struct {
	AuthBaseURL  string
	AgentBaseURL string
	VoiceBaseURL string
	// HTTPClient defaults to a client without a timeout; deadlines come from ctx.
	HTTPClient *http.Client
	Metrics    *observability.Metrics
}

// Client issues the outbound backend calls. It holds no per-call state and
// never retries; every method is safe for concurrent use.
type Client struct {
	authURL  string
	agentURL string
	voiceURL string
	client   *http.Client
	metrics  *observability.Metrics
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		authURL:  strings.TrimRight(strings.TrimSpace(cfg.AuthBaseURL), "/"),
		agentURL: strings.TrimRight(strings.TrimSpace(cfg.AgentBaseURL), "/"),
		voiceURL: strings.TrimRight(strings.TrimSpace(cfg.VoiceBaseURL), "/"),
		client:   hc,
		metrics:  cfg.Metrics,
	}
}

// VoiceOrigin is the base URL relative audio files are served from.
func (c *Client) VoiceOrigin() string { return c.voiceURL }

// Register creates an account. Only 201 counts as success.
func (c *Client) Register(ctx context.Context, p Profile) (RegisterResult, error) {
	status, body, err := c.postJSON(ctx, OpRegister, c.authURL+"/api/auth/register", "", p)
	if err != nil {
		return RegisterResult{}, err
	}
	if status == http.StatusCreated {
		var out RegisterResult
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &out); err != nil {
				return RegisterResult{}, decodeError(OpRegister, status, err)
			}
		}
		return out, nil
	}
	msg := messageFromBody(body)
	if msg == "" {
		if status >= 200 && status < 300 {
			msg = "Registration failed"
		} else {
			msg = statusMessage(status)
		}
	}
	return RegisterResult{}, &Error{Op: OpRegister, Kind: KindBackend, Status: status, Message: msg}
}

func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	status, body, err := c.postJSON(ctx, OpLogin, c.authURL+"/api/auth/login", "", creds)
	if err != nil {
		return LoginResponse{}, err
	}
	if !isSuccess(status) {
		return LoginResponse{}, backendError(OpLogin, status, body)
	}
	var out LoginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return LoginResponse{}, decodeError(OpLogin, status, err)
	}
	if strings.TrimSpace(out.Token) == "" || out.User == nil {
		return LoginResponse{}, &Error{Op: OpLogin, Kind: KindBackend, Status: status, Message: "login response missing token or user"}
	}
	return out, nil
}

func (c *Client) AnalyzeSymptoms(ctx context.Context, req AnalyzeRequest) (Analysis, error) {
	var out Analysis
	if err := c.call(ctx, OpAnalyzeSymptoms, c.agentURL+"/api/v1/agents/analyze-symptoms", "", req, &out); err != nil {
		return Analysis{}, err
	}
	return out, nil
}

// ProcessVoice asks the voice backend for a conversational reply and speech.
// A success=false body is returned without error; see VoiceReply.SoftFailure.
func (c *Client) ProcessVoice(ctx context.Context, req VoiceRequest) (VoiceReply, error) {
	var out VoiceReply
	if err := c.call(ctx, OpProcessVoice, c.voiceURL+"/api/voice/process", req.AuthToken, req, &out); err != nil {
		return VoiceReply{}, err
	}
	return out, nil
}

// SummarizeReport turns already-anonymized report text into plain language.
func (c *Client) SummarizeReport(ctx context.Context, scrubbedText string) (ReportSummary, error) {
	payload := struct {
		ScrubbedReportText string `json:"scrubbed_report_text"`
	}{ScrubbedReportText: scrubbedText}
	var out ReportSummary
	if err := c.call(ctx, OpSummarizeReport, c.agentURL+"/api/v1/agents/summarize-report", "", payload, &out); err != nil {
		return ReportSummary{}, err
	}
	return out, nil
}

func (c *Client) ScheduleReminder(ctx context.Context, req ReminderRequest) (Reminder, error) {
	var out Reminder
	if err := c.call(ctx, OpScheduleReminder, c.agentURL+"/api/v1/agents/schedule-reminder", "", req, &out); err != nil {
		return Reminder{}, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, op Op, url, token string, in, out any) error {
	status, body, err := c.postJSON(ctx, op, url, token, in)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return backendError(op, status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return decodeError(op, status, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, op Op, url, token string, in any) (int, []byte, error) {
	started := time.Now()
	status, body, err := c.roundTrip(ctx, op, url, token, in)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
	case !isSuccess(status):
		outcome = fmt.Sprintf("http_%d", status)
	}
	c.metrics.ObserveBackendCall(string(op), outcome, time.Since(started))
	observability.LoggerFromContext(ctx).Debug("backend call",
		"op", string(op),
		"status", status,
		"outcome", outcome,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return status, body, err
}

func (c *Client) roundTrip(ctx context.Context, op Op, url, token string, in any) (int, []byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, nil, &Error{Op: op, Kind: KindTransport, Message: fmt.Sprintf("marshal request: %v", err), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, &Error{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if t := strings.TrimSpace(token); t != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, &Error{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return res.StatusCode, nil, &Error{Op: op, Kind: KindTransport, Status: res.StatusCode, Message: fmt.Sprintf("read response: %v", err), Err: err}
	}
	return res.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func backendError(op Op, status int, body []byte) *Error {
	msg := messageFromBody(body)
	if msg == "" {
		msg = statusMessage(status)
	}
	return &Error{Op: op, Kind: KindBackend, Status: status, Message: msg}
}

func decodeError(op Op, status int, err error) *Error {
	return &Error{Op: op, Kind: KindBackend, Status: status, Message: fmt.Sprintf("decode response: %v", err), Err: err}
}

func statusMessage(status int) string {
	return fmt.Sprintf("request failed with status code %d", status)
}

// messageFromBody extracts a human-readable message from an error body.
// FastAPI answers {"detail": ...}; the auth backend answers {"message": ...}.
func messageFromBody(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	for _, k := range []string{"message", "error", "detail"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}
