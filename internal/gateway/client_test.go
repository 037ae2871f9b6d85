package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(Config{AuthBaseURL: ts.URL, AgentBaseURL: ts.URL, VoiceBaseURL: ts.URL})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestRegisterCreatedReturnsBodyUnchanged(t *testing.T) {
	var got Profile
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, `{"message":"ok","userId":"u1"}`)
	})

	res, err := c.Register(context.Background(), Profile{Name: "Gayathri", Email: "g@example.com", Password: "secret123", Age: 29, Phone: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, RegisterResult{Message: "ok", UserID: "u1"}, res)
	assert.Equal(t, "Gayathri", got.Name)
	assert.Equal(t, 29, got.Age)
}

func TestRegisterFailureMessages(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"body message", http.StatusBadRequest, `{"message":"email taken"}`, "email taken"},
		{"no body message", http.StatusInternalServerError, `{}`, "request failed with status code 500"},
		{"non-201 success", http.StatusOK, `{}`, "Registration failed"},
		{"non-json body", http.StatusBadGateway, `upstream down`, "request failed with status code 502"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			_, err := c.Register(context.Background(), Profile{Email: "g@example.com"})
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
			assert.ErrorIs(t, err, ErrRegistration)
			assert.ErrorIs(t, err, ErrBackend)
		})
	}
}

func TestRegisterTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(Config{AuthBaseURL: url})
	_, err := c.Register(context.Background(), Profile{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistration)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotEmpty(t, err.Error())

	gwErr, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, gwErr.Retryable())
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "correct-horse" {
			writeJSON(w, http.StatusUnauthorized, `{"message":"Invalid credentials"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"token":"tok-1","user":{"id":"u1","name":"Gayathri","email":"g@example.com"}}`)
	})

	res, err := c.Login(context.Background(), Credentials{Email: "g@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	require.NotNil(t, res.User)
	assert.Equal(t, UserInfo{ID: "u1", Name: "Gayathri", Email: "g@example.com"}, *res.User)

	_, err = c.Login(context.Background(), Credentials{Email: "g@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestLoginRejectsIncompleteResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"token":"tok-1"}`)
	})
	_, err := c.Login(context.Background(), Credentials{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestAnalyzeSymptoms(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/agents/analyze-symptoms", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sess-1", req["session_id"])
		assert.Equal(t, "I have fever", req["symptom_text"])
		assert.InDelta(t, 12.97, req["user_lat"], 1e-9)
		assert.InDelta(t, 77.59, req["user_lon"], 1e-9)
		writeJSON(w, http.StatusOK, `{"analysis":"Likely a viral fever.","suggested_specialty":"General Physician"}`)
	})

	got, err := c.AnalyzeSymptoms(context.Background(), AnalyzeRequest{SessionID: "sess-1", SymptomText: "I have fever", UserLat: 12.97, UserLon: 77.59})
	require.NoError(t, err)
	assert.Equal(t, Analysis{Analysis: "Likely a viral fever.", SuggestedSpecialty: "General Physician"}, got)
}

func TestAnalyzeSymptomsCarriesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"detail":"agent offline"}`)
	})

	_, err := c.AnalyzeSymptoms(context.Background(), AnalyzeRequest{SymptomText: "cough"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysis)

	gwErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, gwErr.Status)
	assert.Equal(t, "agent offline", gwErr.Message)
	assert.True(t, gwErr.Retryable())
}

func TestProcessVoiceSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/voice/process", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "I have fever", req["text"])
		assert.Equal(t, "Gayathri", req["userName"])
		_, hasToken := req["AuthToken"]
		assert.False(t, hasToken, "token must not leak into the body")
		writeJSON(w, http.StatusOK, `{"success":true,"message":"Please rest.","audioFile":"reply-1"}`)
	})

	reply, err := c.ProcessVoice(context.Background(), VoiceRequest{Text: "I have fever", UserName: "Gayathri", AuthToken: "tok-1"})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, "reply-1", reply.AudioFile)
	assert.NoError(t, reply.SoftFailure())
}

func TestProcessVoiceSoftAndHardFailures(t *testing.T) {
	soft := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"success":false,"message":"TTS quota exceeded"}`)
	})
	reply, err := soft.ProcessVoice(context.Background(), VoiceRequest{Text: "hi", UserName: "User"})
	require.NoError(t, err)
	softErr := reply.SoftFailure()
	require.Error(t, softErr)
	assert.ErrorIs(t, softErr, ErrSoftFailure)
	assert.ErrorIs(t, softErr, ErrVoiceProcessing)
	assert.Equal(t, "TTS quota exceeded", softErr.Error())

	hard := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, ``)
	})
	_, err = hard.ProcessVoice(context.Background(), VoiceRequest{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVoiceProcessing)
	assert.False(t, errors.Is(err, ErrSoftFailure))
}

func TestSummarizeReportAndScheduleReminder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch r.URL.Path {
		case "/api/v1/agents/summarize-report":
			assert.Equal(t, "HbA1c 7.2%", req["scrubbed_report_text"])
			writeJSON(w, http.StatusOK, `{"simple_summary":"Your blood sugar is a little high."}`)
		case "/api/v1/agents/schedule-reminder":
			assert.Equal(t, "Metformin", req["medication"])
			assert.Equal(t, "after lunch", req["time_text"])
			writeJSON(w, http.StatusOK, `{"status":"scheduled","scheduled_time":"13:00"}`)
		default:
			http.NotFound(w, r)
		}
	})

	sum, err := c.SummarizeReport(context.Background(), "HbA1c 7.2%")
	require.NoError(t, err)
	assert.Equal(t, "Your blood sugar is a little high.", sum.SimpleSummary)

	rem, err := c.ScheduleReminder(context.Background(), ReminderRequest{Medication: "Metformin", TimeText: "after lunch", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, Reminder{Status: "scheduled", ScheduledTime: "13:00"}, rem)
}

func TestCallHonoursCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, `{}`)
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.AnalyzeSymptoms(ctx, AnalyzeRequest{SymptomText: "headache"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)

	gwErr, ok := AsError(err)
	require.True(t, ok)
	assert.False(t, gwErr.Retryable())
}

func TestNormalizeAudioURL(t *testing.T) {
	origin := "http://localhost:5000"
	cases := map[string]string{
		"":                              "",
		"clip":                          "http://localhost:5000/clip",
		"/clip.wav":                     "http://localhost:5000/clip.wav",
		"audio/reply.mp3":               "http://localhost:5000/audio/reply.mp3",
		"https://cdn.example/reply.mp3": "https://cdn.example/reply.mp3",
		"http://localhost:5000/x.ogg":   "http://localhost:5000/x.ogg",
		"data:audio/mpeg;base64,AAAA":   "data:audio/mpeg;base64,AAAA",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAudioURL(origin, in), "input %q", in)
	}
	assert.Equal(t, "http://localhost:5000/clip", NormalizeAudioURL(origin+"/", "clip"))
}
