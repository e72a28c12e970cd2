package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bt-bridge/twilio-realtime/shared"
)

type fakeCompleter struct {
	content string
	err     error
	calls   int
}

func (f *fakeCompleter) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	agent, err := NewAgent(shared.NewNopLogger(), DefaultRoster())
	require.NoError(t, err)
	agent.now = monday
	return agent
}

func TestNewAgentValidation(t *testing.T) {
	_, err := NewAgent(nil, DefaultRoster())
	assert.ErrorIs(t, err, shared.ErrNoLogger)

	agent, err := NewAgent(shared.NewNopLogger(), nil)
	require.NoError(t, err)
	assert.Len(t, agent.roster.Doctors, 11)
}

func TestAgentRuleBasedIntake(t *testing.T) {
	agent := newTestAgent(t)
	ctx := context.Background()

	utterances := []string{
		"no, nothing like that",
		"my name is jane doe",
		"I have heavy bleeding and contractions",
		"1990-05-17",
		"skip",
		"NA",
		"NA",
		"I am 24 weeks pregnant",
		"none",
		"5551234567",
	}
	for _, u := range utterances {
		agent.Update(ctx, u)
	}

	slots := agent.Slots()
	assert.Equal(t, "no", slots.EmergencyCheck)
	assert.Equal(t, "Jane Doe", slots.Name)
	assert.Equal(t, "I have heavy bleeding and contractions", slots.Symptom)
	assert.Equal(t, "1990-05-17", slots.DOB)
	assert.Equal(t, 36, slots.Age)
	assert.Equal(t, "NA", slots.Insurance)
	assert.Equal(t, "NA", slots.MenstrualCycle)
	assert.Equal(t, "NA", slots.LastPeriod)
	assert.Equal(t, "24", slots.PregnancyWeek)
	assert.Equal(t, "None", slots.Allergies)
	assert.Equal(t, "5551234567", slots.Contact)
	assert.True(t, slots.Complete())
}

func TestAgentAssessRedFlagsWinWithoutModel(t *testing.T) {
	agent := newTestAgent(t)
	ctx := context.Background()
	agent.Update(ctx, "yes")
	agent.Update(ctx, "my name is jane doe")
	agent.Update(ctx, "heavy bleeding and I am 24 weeks pregnant")

	a := agent.Assess(ctx)
	assert.Equal(t, UrgencyEmergency, a.Urgency)
	assert.Equal(t, SubspecialtyEmergency, a.Subspecialty)
	assert.Contains(t, a.RedFlags, "Severe hemorrhage")
	assert.Contains(t, a.RedFlags, "Possible preterm labor/complications")
}

func TestAgentAssessUsesModelClassification(t *testing.T) {
	agent := newTestAgent(t)
	fake := &fakeCompleter{content: `{"subspecialty_code":"urogynecology","urgency":"urgent","confidence":0.92,"reasoning":"pelvic floor"}`}
	agent.llm = fake
	ctx := context.Background()
	agent.Update(ctx, "no")
	agent.slots.Name = "Jane Doe"
	agent.slots.Symptom = "bladder trouble"

	a := agent.Assess(ctx)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, SubspecialtyUrogynecology, a.Subspecialty)
	assert.Equal(t, UrgencyUrgent, a.Urgency)
	assert.Equal(t, 0.92, a.Confidence)
}

func TestAgentAssessModelFailureFallsBack(t *testing.T) {
	agent := newTestAgent(t)
	agent.llm = &fakeCompleter{err: errors.New("rate limited")}
	ctx := context.Background()
	agent.Update(ctx, "no")
	agent.slots.Name = "Jane Doe"
	agent.slots.Symptom = "leaking urine"

	a := agent.Assess(ctx)
	assert.Equal(t, SubspecialtyUrogynecology, a.Subspecialty)
	assert.Equal(t, UrgencyRoutine, a.Urgency)
}

func TestAgentConcludeEmergency(t *testing.T) {
	agent := newTestAgent(t)
	ctx := context.Background()
	agent.Update(ctx, "yes")
	agent.slots.Name = "Jane Doe"
	agent.slots.Symptom = "severe pain and heavy bleeding"

	outcome := agent.Conclude(ctx, nil)
	assert.Equal(t, UrgencyEmergency, outcome.Assessment.Urgency)
	assert.Equal(t, "Emergency Department", outcome.Appointment.DoctorName)
	assert.Equal(t, "IMMEDIATE", outcome.Appointment.Date)
	assert.Contains(t, outcome.Summary, "911")
	assert.Contains(t, outcome.Summary, "Jane Doe")
}

func TestAgentConcludeRoutineSchedules(t *testing.T) {
	agent := newTestAgent(t)
	ctx := context.Background()
	agent.Update(ctx, "no")
	agent.slots.Name = "Jane Doe"
	agent.slots.Symptom = "annual exam"
	agent.slots.Insurance = "aetna"

	outcome := agent.Conclude(ctx, nil)
	assert.Equal(t, UrgencyRoutine, outcome.Assessment.Urgency)
	assert.Equal(t, SubspecialtyGeneral, outcome.Assessment.Subspecialty)
	assert.NotEqual(t, "No Doctor Available", outcome.Appointment.DoctorName)
	assert.Contains(t, outcome.Summary, outcome.Appointment.DoctorName)
	assert.Contains(t, outcome.Summary, "insurance card")
}

func TestAgentReset(t *testing.T) {
	agent := newTestAgent(t)
	ctx := context.Background()
	agent.Update(ctx, "no")
	agent.Update(ctx, "my name is jane doe")
	require.NotEmpty(t, agent.Slots().Name)

	agent.Reset()
	assert.Equal(t, Slots{}, agent.Slots())
	assert.Equal(t, slotEmergencyCheck, func() string { s := agent.Slots(); return s.FirstMissing() }())
}

func TestAgentTranscriptHandler(t *testing.T) {
	agent := newTestAgent(t)

	var summaries []string
	handler := agent.TranscriptHandler(func(line string) {
		summaries = append(summaries, line)
	})

	lines := []string{
		"no, nothing like that",
		"my name is jane doe",
		"I need my yearly checkup",
		"1990-05-17",
		"skip",
		"NA",
		"NA",
		"not pregnant",
		"none",
		"jane.doe@example.com",
	}
	for _, line := range lines {
		handler("assistant", "What can I help you with?")
		handler("caller", line)
	}

	require.Len(t, summaries, 1)
	assert.Contains(t, summaries[0], "Jane Doe")

	// More caller speech after conclusion never produces a second summary.
	handler("caller", "thank you")
	assert.Len(t, summaries, 1)
}
