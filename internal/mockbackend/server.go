package mockbackend

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ashahealth/mediwagon/internal/audio"
	"github.com/ashahealth/mediwagon/internal/gateway"
)

const clipSampleRate = 16000

// Options switch individual endpoints into failure modes.
type Options struct {
	FailAnalysis  bool
	FailVoice     bool
	SoftFailVoice bool
	// Latency is added before every agent and voice response.
	Latency time.Duration
}

type account struct {
	id      string
	profile gateway.Profile
}

// Server stands in for the auth, agent and voice backends on one router.
type Server struct {
	opts Options

	mu       sync.Mutex
	accounts map[string]account
	tokens   map[string]string
	clips    map[string][]byte

	calls sync.Map
}

func New(opts Options) *Server {
	return &Server{
		opts:     opts,
		accounts: make(map[string]account),
		tokens:   make(map[string]string),
		clips:    make(map[string][]byte),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/v1/agents/analyze-symptoms", s.handleAnalyze)
	r.Post("/api/v1/agents/summarize-report", s.handleSummarize)
	r.Post("/api/v1/agents/schedule-reminder", s.handleReminder)
	r.Post("/api/voice/process", s.handleVoice)
	r.Get("/audio/{name}", s.handleAudio)
	return r
}

// Calls reports how many requests reached the route with the given path.
func (s *Server) Calls(routePath string) int {
	v, ok := s.calls.Load(routePath)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.calls.LoadOrStore(r.URL.Path, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var p gateway.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" || p.Password == "" || strings.TrimSpace(p.Name) == "" {
		respond(w, http.StatusBadRequest, map[string]string{"message": "Name, email and password are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[email]; exists {
		respond(w, http.StatusBadRequest, map[string]string{"message": "User already exists"})
		return
	}
	acc := account{id: uuid.NewString(), profile: p}
	s.accounts[email] = acc
	respond(w, http.StatusCreated, gateway.RegisterResult{Message: "User registered successfully", UserID: acc.id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c gateway.Credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(c.Email))]
	if !ok || acc.profile.Password != c.Password {
		s.mu.Unlock()
		respond(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	token := uuid.NewString()
	s.tokens[token] = acc.id
	s.mu.Unlock()

	respond(w, http.StatusOK, gateway.LoginResponse{
		Token: token,
		User:  &gateway.UserInfo{ID: acc.id, Name: acc.profile.Name, Email: acc.profile.Email},
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.delay(r)
	if s.opts.FailAnalysis {
		respond(w, http.StatusServiceUnavailable, map[string]string{"detail": "symptom agent unavailable"})
		return
	}
	var req gateway.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SymptomText) == "" {
		respond(w, http.StatusUnprocessableEntity, map[string]string{"detail": "symptom_text is required"})
		return
	}
	respond(w, http.StatusOK, analyze(req.SymptomText))
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	s.delay(r)
	if s.opts.FailVoice {
		respond(w, http.StatusInternalServerError, map[string]string{"message": "voice service crashed"})
		return
	}
	var req gateway.VoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	if s.opts.SoftFailVoice || strings.TrimSpace(req.Text) == "" {
		respond(w, http.StatusOK, gateway.VoiceReply{Success: false, Message: "Could not generate a voice reply for that request."})
		return
	}

	name := userName(req.UserName, s.tokenUser(r))
	reply := "Thanks " + name + ". " + analyze(req.Text).Analysis
	id := "reply-" + uuid.NewString()[:8]
	clip, err := audio.EncodeWAVPCM16LE(audio.Tone(330, 1500*time.Millisecond, clipSampleRate), clipSampleRate)
	if err != nil {
		respond(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	s.clips[id] = clip
	s.mu.Unlock()

	respond(w, http.StatusOK, gateway.VoiceReply{Success: true, Message: reply, AudioFile: "audio/" + id})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := strings.TrimSuffix(name, path.Ext(name))

	s.mu.Lock()
	clip, ok := s.clips[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(clip)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	s.delay(r)
	var req struct {
		ScrubbedReportText string `json:"scrubbed_report_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ScrubbedReportText) == "" {
		respond(w, http.StatusUnprocessableEntity, map[string]string{"detail": "scrubbed_report_text is required"})
		return
	}
	respond(w, http.StatusOK, gateway.ReportSummary{
		SimpleSummary: "In simple terms: " + firstSentence(req.ScrubbedReportText) + " Please review the full report with your doctor.",
	})
}

func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	s.delay(r)
	var req gateway.ReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Medication) == "" {
		respond(w, http.StatusUnprocessableEntity, map[string]string{"detail": "medication is required"})
		return
	}
	respond(w, http.StatusOK, gateway.Reminder{Status: "scheduled", ScheduledTime: reminderTime(req.TimeText)})
}

func (s *Server) tokenUser(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.tokens[token]
	for _, acc := range s.accounts {
		if acc.id == id {
			return acc.profile.Name
		}
	}
	return ""
}

func (s *Server) delay(r *http.Request) {
	if s.opts.Latency <= 0 {
		return
	}
	select {
	case <-time.After(s.opts.Latency):
	case <-r.Context().Done():
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
