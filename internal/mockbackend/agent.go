package mockbackend

import (
	"strings"

	"github.com/ashahealth/mediwagon/internal/gateway"
)

type rule struct {
	keywords  []string
	analysis  string
	specialty string
}

var rules = []rule{
	{[]string{"fever", "temperature", "chills"}, "A fever is often a sign your body is fighting an infection. Rest, drink fluids and monitor your temperature.", "General Physician"},
	{[]string{"cough", "throat", "breath"}, "A cough can come from a cold or an irritated airway. Warm fluids help; see a doctor if it lasts more than two weeks.", "Pulmonologist"},
	{[]string{"cold", "sneez", "runny"}, "These sound like common cold symptoms. Rest and hydration usually help within a week.", "General Physician"},
	{[]string{"headache", "migraine"}, "Headaches are commonly linked to stress, dehydration or lack of sleep. Rest in a quiet room and drink water.", "Neurologist"},
	{[]string{"fatigue", "tired", "weak"}, "Ongoing tiredness can have many causes, including poor sleep or low iron.", "General Physician"},
	{[]string{"rash", "itch", "skin"}, "Skin irritation can be caused by allergies or contact with irritants.", "Dermatologist"},
	{[]string{"stomach", "nausea", "vomit"}, "Stomach upset is often caused by something you ate. Eat light meals and stay hydrated.", "Gastroenterologist"},
}

func analyze(text string) gateway.Analysis {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, k := range r.keywords {
			if strings.Contains(lower, k) {
				return gateway.Analysis{Analysis: r.analysis, SuggestedSpecialty: r.specialty}
			}
		}
	}
	return gateway.Analysis{
		Analysis:           "I could not match your symptoms to a common condition. Please describe them in more detail.",
		SuggestedSpecialty: "General Physician",
	}
}

func userName(fromBody, fromToken string) string {
	if n := strings.TrimSpace(fromBody); n != "" {
		return n
	}
	if fromToken != "" {
		return fromToken
	}
	return "there"
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".\n"); i > 0 {
		return text[:i+1]
	}
	return text
}

func reminderTime(timeText string) string {
	t := strings.ToLower(timeText)
	switch {
	case strings.Contains(t, "morning") || strings.Contains(t, "breakfast"):
		return "08:00"
	case strings.Contains(t, "lunch") || strings.Contains(t, "afternoon"):
		return "13:00"
	case strings.Contains(t, "dinner") || strings.Contains(t, "evening"):
		return "20:00"
	case strings.Contains(t, "night") || strings.Contains(t, "bed"):
		return "22:00"
	default:
		return "09:00"
	}
}
