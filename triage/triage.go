package triage

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

type Subspecialty string

const (
	SubspecialtyMaternalFetal       Subspecialty = "maternal_fetal"
	SubspecialtyUrogynecology       Subspecialty = "urogynecology"
	SubspecialtyGynecologicOncology Subspecialty = "gynecologic_oncology"
	SubspecialtyReproductiveEndo    Subspecialty = "reproductive_endo"
	SubspecialtyMinimallyInvasive   Subspecialty = "minimally_invasive"
	SubspecialtyGeneral             Subspecialty = "general_obgyn"
	SubspecialtyEmergency           Subspecialty = "emergency"
)

var subspecialtyNames = map[Subspecialty]string{
	SubspecialtyMaternalFetal:       "Maternal-Fetal Medicine (High-Risk Pregnancy)",
	SubspecialtyUrogynecology:       "Urogynecology & Pelvic Reconstructive Medicine",
	SubspecialtyGynecologicOncology: "Gynecologic Oncology",
	SubspecialtyReproductiveEndo:    "Reproductive Endocrinology & Infertility",
	SubspecialtyMinimallyInvasive:   "Complex/Minimally Invasive Gynecologic Surgery",
	SubspecialtyGeneral:             "General OB/GYN",
	SubspecialtyEmergency:           "Emergency OB/GYN",
}

// Description returns the human-readable subspecialty name. Unknown codes
// map onto general OB/GYN.
func (s Subspecialty) Description() string {
	if name, ok := subspecialtyNames[s]; ok {
		return name
	}
	return subspecialtyNames[SubspecialtyGeneral]
}

func (s Subspecialty) known() bool {
	_, ok := subspecialtyNames[s]
	return ok
}

type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Assessment is the outcome of triaging one intake record.
type Assessment struct {
	Urgency      Urgency
	Subspecialty Subspecialty
	Confidence   float64
	Reasoning    string
	RedFlags     []string
}

// Symptom phrases that force an emergency classification regardless of any
// model opinion.
var redFlagPhrases = []struct {
	phrase string
	flag   string
}{
	{"heavy bleeding", "Severe hemorrhage"},
	{"hemorrhage", "Severe hemorrhage"},
	{"severe pain", "Severe abdominal pain"},
	{"chest pain", "Chest pain (possible PE)"},
	{"shortness of breath", "Respiratory distress"},
	{"can't breathe", "Respiratory distress"},
	{"difficulty breathing", "Respiratory distress"},
	{"fainting", "Syncope/loss of consciousness"},
	{"seizure", "Seizure activity"},
	{"severe headache", "Severe headache (preeclampsia)"},
	{"vision changes", "Visual disturbances (preeclampsia)"},
	{"blurred vision", "Visual disturbances (preeclampsia)"},
}

var pretermSymptoms = []string{"bleeding", "fluid", "contractions", "pain"}

// DetectRedFlags scans a symptom description for emergency indicators.
// Pregnancies past week 20 additionally flag possible preterm labor on
// bleeding, fluid loss, contractions or pain.
func DetectRedFlags(symptom, pregnancyWeek string) []string {
	s := strings.ToLower(symptom)
	var flags []string
	seen := map[string]struct{}{}
	for _, rf := range redFlagPhrases {
		if !strings.Contains(s, rf.phrase) {
			continue
		}
		if _, dup := seen[rf.flag]; dup {
			continue
		}
		seen[rf.flag] = struct{}{}
		flags = append(flags, rf.flag)
	}
	if pregnancyWeek != "" && pregnancyWeek != "NA" {
		if week, err := strconv.Atoi(pregnancyWeek); err == nil && week > 20 && containsAny(s, pretermSymptoms) {
			flags = append(flags, "Possible preterm labor/complications")
		}
	}
	return flags
}

// fallbackAssessment classifies by keyword rules when no model is available
// or the model reply is unusable.
func fallbackAssessment(symptom, pregnancyWeek string) Assessment {
	s := strings.ToLower(symptom)
	switch {
	case pregnancyWeek != "" && pregnancyWeek != "NA":
		return Assessment{
			Urgency: UrgencyUrgent, Subspecialty: SubspecialtyMaternalFetal,
			Confidence: 0.8, Reasoning: "Pregnancy-related complaint",
		}
	case containsAny(s, []string{"mass", "lump", "abnormal pap", "bleeding after menopause", "pelvic mass"}):
		return Assessment{
			Urgency: UrgencyUrgent, Subspecialty: SubspecialtyGynecologicOncology,
			Confidence: 0.75, Reasoning: "Suspicious findings",
		}
	case containsAny(s, []string{"incontinence", "prolapse", "leaking urine", "bladder"}):
		return Assessment{
			Urgency: UrgencyRoutine, Subspecialty: SubspecialtyUrogynecology,
			Confidence: 0.85, Reasoning: "Pelvic floor disorder",
		}
	case containsAny(s, []string{"infertility", "can't get pregnant", "trying to conceive", "pcos"}):
		return Assessment{
			Urgency: UrgencyRoutine, Subspecialty: SubspecialtyReproductiveEndo,
			Confidence: 0.8, Reasoning: "Reproductive endocrine issue",
		}
	case containsAny(s, []string{"fibroid", "endometriosis", "ovarian cyst", "heavy periods"}):
		return Assessment{
			Urgency: UrgencyRoutine, Subspecialty: SubspecialtyMinimallyInvasive,
			Confidence: 0.7, Reasoning: "Likely surgical condition",
		}
	}
	return Assessment{
		Urgency: UrgencyRoutine, Subspecialty: SubspecialtyGeneral,
		Confidence: 0.6, Reasoning: "Routine care",
	}
}

var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// cleanseJSON parses a model reply that should be a JSON object but may come
// wrapped in prose or code fencing.
func cleanseJSON(s string) map[string]any {
	var m map[string]any
	if err := sonic.UnmarshalString(s, &m); err == nil {
		return m
	}
	if frag := jsonObjectRe.FindString(s); frag != "" {
		if err := sonic.UnmarshalString(frag, &m); err == nil {
			return m
		}
	}
	return map[string]any{}
}
