package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectRedFlags(t *testing.T) {
	tests := []struct {
		name          string
		symptom       string
		pregnancyWeek string
		expected      []string
	}{
		{
			name:     "chest pain",
			symptom:  "sharp chest pain since this morning",
			expected: []string{"Chest pain (possible PE)"},
		},
		{
			name:     "duplicate phrases collapse",
			symptom:  "heavy bleeding, looks like a hemorrhage",
			expected: []string{"Severe hemorrhage"},
		},
		{
			name:          "preterm labor past week 20",
			symptom:       "contractions every few minutes",
			pregnancyWeek: "24",
			expected:      []string{"Possible preterm labor/complications"},
		},
		{
			name:          "no preterm flag before week 20",
			symptom:       "mild pain",
			pregnancyWeek: "18",
			expected:      nil,
		},
		{
			name:          "not pregnant",
			symptom:       "some bleeding",
			pregnancyWeek: "NA",
			expected:      nil,
		},
		{
			name:     "benign",
			symptom:  "routine checkup request",
			expected: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectRedFlags(tt.symptom, tt.pregnancyWeek))
		})
	}
}

func TestFallbackAssessment(t *testing.T) {
	tests := []struct {
		name          string
		symptom       string
		pregnancyWeek string
		subspecialty  Subspecialty
		urgency       Urgency
	}{
		{name: "pregnancy", symptom: "back pain", pregnancyWeek: "12", subspecialty: SubspecialtyMaternalFetal, urgency: UrgencyUrgent},
		{name: "oncology", symptom: "found a pelvic mass", subspecialty: SubspecialtyGynecologicOncology, urgency: UrgencyUrgent},
		{name: "urogynecology", symptom: "leaking urine when coughing", subspecialty: SubspecialtyUrogynecology, urgency: UrgencyRoutine},
		{name: "reproductive", symptom: "diagnosed with pcos, trying to conceive", subspecialty: SubspecialtyReproductiveEndo, urgency: UrgencyRoutine},
		{name: "surgical", symptom: "known fibroid and heavy periods", subspecialty: SubspecialtyMinimallyInvasive, urgency: UrgencyRoutine},
		{name: "general", symptom: "annual exam", subspecialty: SubspecialtyGeneral, urgency: UrgencyRoutine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := fallbackAssessment(tt.symptom, tt.pregnancyWeek)
			assert.Equal(t, tt.subspecialty, a.Subspecialty)
			assert.Equal(t, tt.urgency, a.Urgency)
			assert.Greater(t, a.Confidence, 0.0)
			assert.NotEmpty(t, a.Reasoning)
		})
	}
}

func TestSubspecialtyDescription(t *testing.T) {
	assert.Equal(t, "Gynecologic Oncology", SubspecialtyGynecologicOncology.Description())
	assert.Equal(t, "General OB/GYN", Subspecialty("made_up").Description())
}

func TestCleanseJSON(t *testing.T) {
	clean := cleanseJSON(`{"urgency":"urgent","confidence":0.9}`)
	assert.Equal(t, "urgent", clean["urgency"])

	wrapped := cleanseJSON("Here is the result:\n```json\n{\"urgency\":\"routine\"}\n```\nHope that helps.")
	assert.Equal(t, "routine", wrapped["urgency"])

	assert.Empty(t, cleanseJSON("no json here at all"))
}

func TestAssessmentFromJSON(t *testing.T) {
	a := assessmentFromJSON(map[string]any{
		"subspecialty_code": "urogynecology",
		"urgency":           "urgent",
		"confidence":        0.9,
		"reasoning":         "pelvic floor involvement",
	})
	assert.Equal(t, SubspecialtyUrogynecology, a.Subspecialty)
	assert.Equal(t, UrgencyUrgent, a.Urgency)
	assert.Equal(t, 0.9, a.Confidence)
	assert.Equal(t, "pelvic floor involvement", a.Reasoning)

	// Junk fields fall back to safe defaults; the model cannot declare an
	// emergency, only the red-flag rules can.
	b := assessmentFromJSON(map[string]any{
		"subspecialty_code": "cardiology",
		"urgency":           "emergency",
	})
	require.Equal(t, SubspecialtyGeneral, b.Subspecialty)
	assert.Equal(t, UrgencyRoutine, b.Urgency)
	assert.Equal(t, 0.7, b.Confidence)
}
