package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFullName(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{name: "prefix lowercase", text: "my name is jane doe", expected: "Jane Doe"},
		{name: "contraction prefix", text: "I'm john a. smith", expected: "John A. Smith"},
		{name: "bare full name", text: "Mary Ann Lee", expected: "Mary Ann Lee"},
		{name: "bare uppercase", text: "JANE DOE", expected: "Jane Doe"},
		{name: "single word rejected", text: "Jane", expected: ""},
		{name: "digits rejected", text: "my name is jane doe 42", expected: ""},
		{name: "email rejected", text: "jane@example.com", expected: ""},
		{name: "too long rejected", text: "my name is " + "abcdefgh abcdefgh abcdefgh abcdefgh abcdefgh abcdefghabc", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseFullName(tt.text))
		})
	}
}

func TestCalcAge(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	age, ok := CalcAge("1990-05-17", now)
	assert.True(t, ok)
	assert.Equal(t, 36, age)

	// Birthday later this year.
	age, ok = CalcAge("1990-11-02", now)
	assert.True(t, ok)
	assert.Equal(t, 35, age)

	_, ok = CalcAge("not-a-date", now)
	assert.False(t, ok)
}

func TestParsePregnancy(t *testing.T) {
	assert.Equal(t, "12", parsePregnancy("I am 12 weeks pregnant"))
	assert.Equal(t, "8", parsePregnancy("about 8w along"))
	assert.Equal(t, "NA", parsePregnancy("I am not pregnant"))
	assert.Equal(t, "", parsePregnancy("hello there"))
}

func TestSlotsQuestionOrder(t *testing.T) {
	s := &Slots{}
	assert.Equal(t, slotEmergencyCheck, s.FirstMissing())
	assert.Contains(t, s.NextQuestion(), "emergency")

	s.EmergencyCheck = "no"
	assert.Equal(t, slotName, s.FirstMissing())

	s.Name = "Jane Doe"
	s.Symptom = "pelvic pain"
	s.DOB = "1990-05-17"
	assert.Equal(t, slotInsurance, s.FirstMissing())

	s.Insurance = "NA"
	s.MenstrualCycle = "28"
	s.LastPeriod = "NA"
	s.PregnancyWeek = "NA"
	s.Allergies = "None"
	assert.Equal(t, slotContact, s.FirstMissing())
	assert.False(t, s.Complete())

	s.Contact = "555-123-4567"
	assert.True(t, s.Complete())
	assert.Equal(t, "", s.NextQuestion())
}

func TestSlotsAbsorb(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s := &Slots{}

	// The emergency gate consumes everything until answered.
	assert.True(t, s.absorb("no, nothing like that", now))
	assert.Equal(t, "no", s.EmergencyCheck)

	assert.True(t, s.absorb("my name is jane doe", now))
	assert.Equal(t, "Jane Doe", s.Name)

	// Name known, complaint not: the utterance is not consumed by any rule
	// so the caller treats it as the symptom.
	assert.False(t, s.absorb("I have been having pelvic pain", now))

	assert.True(t, s.absorb("1990-05-17", now))
	assert.Equal(t, "1990-05-17", s.DOB)
	assert.Equal(t, 36, s.Age)

	// Pregnancy week is mined opportunistically without consuming.
	assert.False(t, s.absorb("I think around 12 weeks now", now))
	assert.Equal(t, "12", s.PregnancyWeek)

	assert.True(t, s.absorb("jane.doe@example.com", now))
	assert.Equal(t, "jane.doe@example.com", s.Contact)

	// Noise never mutates anything.
	before := *s
	assert.True(t, s.absorb("okay", now))
	assert.Equal(t, before, *s)
}

func TestSlotsAbsorbEmergencyYes(t *testing.T) {
	now := time.Now()
	s := &Slots{}
	assert.True(t, s.absorb("yes this is an emergency", now))
	assert.Equal(t, "yes", s.EmergencyCheck)
}

func TestSlotsAbsorbSkipToken(t *testing.T) {
	now := time.Now()
	s := &Slots{
		EmergencyCheck: "no",
		Name:           "Jane Doe",
		Symptom:        "pelvic pain",
		DOB:            "1990-05-17",
	}

	assert.True(t, s.absorb("skip", now))
	assert.Equal(t, "NA", s.Insurance)

	assert.True(t, s.absorb("n/a", now))
	assert.Equal(t, "NA", s.MenstrualCycle)

	s.LastPeriod = "2026-08-01"
	s.PregnancyWeek = "NA"
	assert.True(t, s.absorb("none", now))
	assert.Equal(t, "None", s.Allergies)
}

func TestSlotsAbsorbInvalidDOB(t *testing.T) {
	s := &Slots{EmergencyCheck: "no", Name: "Jane Doe", Symptom: "pain"}
	assert.False(t, s.absorb("2026-13-45", now8am()))
	assert.Empty(t, s.DOB)
}

func now8am() time.Time {
	return time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
}
