// Package triage implements the clinic-side consumer of call transcripts: a
// slot-filling intake agent, urgency assessment with red-flag detection, and
// capacity-aware appointment selection over a weekly doctor roster.
package triage

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Slots is the patient intake record filled over the course of a call. Empty
// string means not collected yet; "NA" means asked and not applicable.
type Slots struct {
	EmergencyCheck string // "yes" or "no"
	Name           string
	Symptom        string
	DOB            string // YYYY-MM-DD
	Age            int    // derived from DOB, 0 when unknown
	Insurance      string
	MenstrualCycle string // days
	LastPeriod     string // YYYY-MM-DD
	PregnancyWeek  string // week number or "NA"
	Allergies      string
	Contact        string
}

// Slot collection order. The first missing slot drives the next question and
// receives skip tokens.
const (
	slotEmergencyCheck = "emergency_check"
	slotName           = "name"
	slotSymptom        = "symptom"
	slotDOB            = "dob"
	slotInsurance      = "insurance"
	slotMenstrualCycle = "menstrual_cycle"
	slotLastPeriod     = "last_period"
	slotPregnancyWeek  = "pregnancy_week"
	slotAllergies      = "allergies"
	slotContact        = "contact"
)

var slotOrder = []string{
	slotEmergencyCheck,
	slotName,
	slotSymptom,
	slotDOB,
	slotInsurance,
	slotMenstrualCycle,
	slotLastPeriod,
	slotPregnancyWeek,
	slotAllergies,
	slotContact,
}

var questions = map[string]string{
	slotEmergencyCheck: "Is this an emergency requiring immediate care? (Yes/No)",
	slotName:           "Please tell me your full name.",
	slotSymptom:        "Please describe your main symptom or reason for the visit.",
	slotDOB:            "What is your date of birth? (YYYY-MM-DD)",
	slotInsurance:      "What is your insurance provider? (e.g., UnitedHealthcare, Aetna, Blue Cross, or say 'skip')",
	slotMenstrualCycle: "What is your usual menstrual cycle length in days? (e.g., 28; say 'NA' if not applicable)",
	slotLastPeriod:     "When was your last menstrual period? (YYYY-MM-DD, or say 'NA')",
	slotPregnancyWeek:  "If applicable, how many weeks pregnant are you? (e.g., '12 weeks' or say 'NA')",
	slotAllergies:      "Do you have any medication or food allergies? (If none, say 'None')",
	slotContact:        "Please provide your contact information (phone or email).",
}

func (s *Slots) get(key string) string {
	switch key {
	case slotEmergencyCheck:
		return s.EmergencyCheck
	case slotName:
		return s.Name
	case slotSymptom:
		return s.Symptom
	case slotDOB:
		return s.DOB
	case slotInsurance:
		return s.Insurance
	case slotMenstrualCycle:
		return s.MenstrualCycle
	case slotLastPeriod:
		return s.LastPeriod
	case slotPregnancyWeek:
		return s.PregnancyWeek
	case slotAllergies:
		return s.Allergies
	case slotContact:
		return s.Contact
	}
	return ""
}

func (s *Slots) set(key, value string) {
	switch key {
	case slotEmergencyCheck:
		s.EmergencyCheck = value
	case slotName:
		s.Name = value
	case slotSymptom:
		s.Symptom = value
	case slotDOB:
		s.DOB = value
	case slotInsurance:
		s.Insurance = value
	case slotMenstrualCycle:
		s.MenstrualCycle = value
	case slotLastPeriod:
		s.LastPeriod = value
	case slotPregnancyWeek:
		s.PregnancyWeek = value
	case slotAllergies:
		s.Allergies = value
	case slotContact:
		s.Contact = value
	}
}

// FirstMissing reports the first uncollected slot, empty when the record is
// complete.
func (s *Slots) FirstMissing() string {
	for _, key := range slotOrder {
		if s.get(key) == "" {
			return key
		}
	}
	return ""
}

// Complete reports whether every slot has been collected.
func (s *Slots) Complete() bool {
	return s.FirstMissing() == ""
}

// NextQuestion returns the prompt for the first missing slot, empty when the
// intake is done.
func (s *Slots) NextQuestion() string {
	key := s.FirstMissing()
	if key == "" {
		return ""
	}
	return questions[key]
}

// missingExtractable lists the still-empty slots the model-backed extractor
// may fill. The emergency check is rule-only.
func (s *Slots) missingExtractable() []string {
	var out []string
	for _, key := range slotOrder {
		if key == slotEmergencyCheck {
			continue
		}
		if s.get(key) == "" {
			out = append(out, key)
		}
	}
	return out
}

var skipTokens = map[string]struct{}{
	"none":           {},
	"na":             {},
	"n/a":            {},
	"skip":           {},
	"no":             {},
	"not applicable": {},
}

func isSkipToken(s string) bool {
	_, ok := skipTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

var noiseTokens = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "ok": {}, "okay": {},
	"thanks": {}, "thank you": {}, "sure": {},
}

func isNoise(s string) bool {
	_, ok := noiseTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

var dobRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validDOB(dob string) bool {
	if !dobRe.MatchString(dob) {
		return false
	}
	_, err := time.Parse("2006-01-02", dob)
	return err == nil
}

// CalcAge computes full years between dob (YYYY-MM-DD) and now.
func CalcAge(dob string, now time.Time) (int, bool) {
	birth, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return 0, false
	}
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age, true
}

var (
	notPregnantRe   = regexp.MustCompile(`\bnot\s+pregnant\b`)
	pregnancyWeekRe = regexp.MustCompile(`(\d{1,2})\s*(?:weeks?|w)\b`)
)

// parsePregnancy pulls a pregnancy week out of free text: "NA" for an
// explicit negative, the week number when stated, empty otherwise.
func parsePregnancy(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if notPregnantRe.MatchString(t) {
		return "NA"
	}
	if m := pregnancyWeekRe.FindStringSubmatch(t); m != nil {
		week, err := strconv.Atoi(m[1])
		if err != nil {
			return ""
		}
		return strconv.Itoa(week)
	}
	return ""
}

var (
	namePrefixRe = regexp.MustCompile(
		`(?i)(?:my name is|i am|i'm|this is|it'?s)\s+` +
			`([A-Za-z][A-Za-z\-']+(?:\s+(?:[A-Za-z]\.|[A-Za-z][A-Za-z\-']+)){1,3})\b`,
	)
	nameBareRe = regexp.MustCompile(
		`^[A-Za-z][A-Za-z\-']+(?:\s+(?:[A-Za-z]\.|[A-Za-z][A-Za-z\-']+)){1,3}$`,
	)
	nameInitialRe = regexp.MustCompile(`^[A-Za-z]\.$`)
	digitRe       = regexp.MustCompile(`\d`)
)

// ParseFullName recognizes an English full name, either bare ("Jane Doe") or
// behind a spoken prefix ("my name is Jane Doe"), and normalizes its casing.
func ParseFullName(text string) string {
	t := strings.TrimSpace(text)
	if strings.ContainsAny(t, "@") || strings.Contains(t, "http://") || strings.Contains(t, "https://") {
		return ""
	}
	if digitRe.MatchString(t) || len(t) > 60 {
		return ""
	}
	if m := namePrefixRe.FindStringSubmatch(t); m != nil {
		return normalizeName(m[1])
	}
	if nameBareRe.MatchString(t) {
		return normalizeName(t)
	}
	return ""
}

func normalizeName(candidate string) string {
	parts := strings.Fields(candidate)
	for i, p := range parts {
		if nameInitialRe.MatchString(p) {
			parts[i] = strings.ToUpper(p)
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, " ")
}

var (
	contactDigitsRe = regexp.MustCompile(`\d{7,}`)

	emergencyYes = []string{"yes", "y", "urgent", "definitely", "absolutely", "emergency", "critical", "immediate"}
	emergencyNo  = []string{"no", "n", "not", "nope", "fine", "okay", "non-urgent"}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// absorb applies the rule-based extraction pass for one caller utterance.
// It reports whether the utterance was consumed; when false the model-backed
// extractor may still mine it for the remaining slots.
func (s *Slots) absorb(text string, now time.Time) bool {
	raw := strings.TrimSpace(text)
	lower := strings.ToLower(raw)
	if raw == "" || isNoise(raw) {
		return true
	}

	// The emergency gate consumes everything until answered.
	if s.EmergencyCheck == "" {
		if containsAny(lower, emergencyYes) {
			s.EmergencyCheck = "yes"
		} else if containsAny(lower, emergencyNo) {
			s.EmergencyCheck = "no"
		}
		return true
	}

	if s.DOB == "" && validDOB(lower) {
		s.DOB = lower
		if age, ok := CalcAge(lower, now); ok {
			s.Age = age
		}
		return true
	}

	if s.Contact == "" && (contactDigitsRe.MatchString(raw) || strings.Contains(raw, "@")) {
		s.Contact = raw
		return true
	}

	if s.Name == "" {
		if name := ParseFullName(raw); name != "" {
			s.Name = name
			return true
		}
	}

	if s.PregnancyWeek == "" {
		if pg := parsePregnancy(raw); pg != "" {
			s.PregnancyWeek = pg
		}
	}

	if isSkipToken(raw) {
		switch key := s.FirstMissing(); key {
		case slotInsurance, slotMenstrualCycle, slotLastPeriod, slotPregnancyWeek:
			s.set(key, "NA")
		case slotAllergies:
			s.Allergies = "None"
		}
		return true
	}

	return false
}
