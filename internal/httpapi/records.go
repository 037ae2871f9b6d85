package httpapi

import (
	"net/http"
	"strings"

	"github.com/ashahealth/mediwagon/internal/gateway"
	"github.com/ashahealth/mediwagon/internal/policy"
)

type summarizeRequest struct {
	ReportText string `json:"report_text"`
}

type summarizeResponse struct {
	SimpleSummary string `json:"simple_summary"`
	Redacted      bool   `json:"redacted"`
}

type reminderRequest struct {
	Medication string `json:"medication"`
	TimeText   string `json:"time_text"`
}

// handleSummarize scrubs the report before it leaves the process.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireIdentity(w); !ok {
		return
	}
	var req summarizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.ReportText)
	if text == "" {
		respondValidation(w, &policy.ValidationError{Fields: map[string]string{"report_text": "Report text is required."}})
		return
	}

	scrubbed, changed := policy.RedactPII(text)
	sum, err := s.backend.SummarizeReport(r.Context(), scrubbed)
	if err != nil {
		respondGatewayError(w, r, "summary_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, summarizeResponse{SimpleSummary: sum.SimpleSummary, Redacted: changed})
}

func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	current, ok := s.requireIdentity(w)
	if !ok {
		return
	}
	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	fields := map[string]string{}
	if strings.TrimSpace(req.Medication) == "" {
		fields["medication"] = "Medication is required."
	}
	if strings.TrimSpace(req.TimeText) == "" {
		fields["time_text"] = "Tell us when to remind you."
	}
	if len(fields) > 0 {
		respondValidation(w, &policy.ValidationError{Fields: fields})
		return
	}

	rem, err := s.backend.ScheduleReminder(r.Context(), gateway.ReminderRequest{
		Medication: strings.TrimSpace(req.Medication),
		TimeText:   strings.TrimSpace(req.TimeText),
		UserID:     current.User.ID,
	})
	if err != nil {
		respondGatewayError(w, r, "reminder_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, rem)
}
