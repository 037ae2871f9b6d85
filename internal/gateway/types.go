package gateway

// Profile is the registration payload accepted by the auth backend.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
	Address  string `json:"address"`
	Gender   string `json:"gender"`
	Phone    string `json:"phone"`
}

// RegisterResult is the created-resource acknowledgment returned with 201.
type RegisterResult struct {
	Message string `json:"message,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserInfo is the public part of an account as returned by login.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type LoginResponse struct {
	Token string    `json:"token"`
	User  *UserInfo `json:"user"`
}

type AnalyzeRequest struct {
	SessionID   string  `json:"session_id"`
	SymptomText string  `json:"symptom_text"`
	UserLat     float64 `json:"user_lat"`
	UserLon     float64 `json:"user_lon"`
}

type Analysis struct {
	Analysis           string `json:"analysis"`
	SuggestedSpecialty string `json:"suggested_specialty"`
}

type VoiceRequest struct {
	Text     string `json:"text"`
	UserName string `json:"userName"`
	// AuthToken is sent as a bearer token when present; it is not part of the body.
	AuthToken string `json:"-"`
}

// VoiceReply is the voice backend's answer. Success=false is a soft failure:
// the transport worked but the backend could not produce a reply.
type VoiceReply struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	AudioFile string `json:"audioFile"`
}

// SoftFailure returns a non-nil *Error when the backend reported success=false.
func (r VoiceReply) SoftFailure() error {
	if r.Success {
		return nil
	}
	msg := r.Message
	if msg == "" {
		msg = "voice processing failed"
	}
	return &Error{Op: OpProcessVoice, Kind: KindSoftFailure, Message: msg}
}

type ReportSummary struct {
	SimpleSummary string `json:"simple_summary"`
}

type ReminderRequest struct {
	Medication string `json:"medication"`
	TimeText   string `json:"time_text"`
	UserID     string `json:"user_id"`
}

type Reminder struct {
	Status        string `json:"status"`
	ScheduledTime string `json:"scheduled_time"`
}
