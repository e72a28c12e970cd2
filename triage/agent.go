package triage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/bt-bridge/twilio-realtime/shared"
)

// Models used by the agent. Extraction and confirmation run on the small
// model; classification runs on the large one.
const (
	extractModel  = openai.ChatModelGPT4oMini
	classifyModel = openai.ChatModelGPT4o
	confirmModel  = openai.ChatModelGPT4oMini
)

type completer interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Agent fills the intake record from caller utterances and produces the
// triage outcome. A model connection is optional: without one the agent runs
// entirely on the rule-based paths.
type Agent struct {
	logger shared.LoggerAdapter
	roster *Roster
	llm    completer
	now    func() time.Time

	mu        sync.Mutex
	slots     Slots
	concluded bool
}

func NewAgent(logger shared.LoggerAdapter, roster *Roster) (*Agent, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if roster == nil {
		roster = DefaultRoster()
	}
	return &Agent{
		logger: logger,
		roster: roster,
		now:    time.Now,
	}, nil
}

// AttachModel enables model-backed extraction, classification and summary
// generation.
func (a *Agent) AttachModel(client openai.Client) {
	a.llm = &client.Chat.Completions
}

// Reset clears the intake record for a new call.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots = Slots{}
	a.concluded = false
}

// Slots returns a copy of the current intake record.
func (a *Agent) Slots() Slots {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slots
}

// NextQuestion returns the prompt for the first missing slot.
func (a *Agent) NextQuestion() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slots.NextQuestion()
}

// Update absorbs one caller utterance into the intake record: rule-based
// extraction first, then model-backed extraction of whatever is still
// missing, then the default of treating the utterance as the symptom when the
// name is known but the complaint is not.
func (a *Agent) Update(ctx context.Context, text string) Slots {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw := strings.TrimSpace(text)
	if a.slots.absorb(raw, a.now()) {
		return a.slots
	}
	if missing := a.slots.missingExtractable(); len(missing) > 0 && a.llm != nil {
		a.extractWithModel(ctx, raw, missing)
	}
	if a.slots.Name != "" && a.slots.Symptom == "" {
		a.slots.Symptom = raw
	}
	return a.slots
}

var extractTool = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
	Name:        "extract_patient_info",
	Description: openai.String("Extract patient info from the message; only fill keys that are present."),
	Parameters: openai.FunctionParameters{
		"type": "object",
		"properties": map[string]any{
			"name":            map[string]any{"type": "string", "description": "Patient full name (English)"},
			"symptom":         map[string]any{"type": "string", "description": "Main complaint / symptom"},
			"dob":             map[string]any{"type": "string", "pattern": `\d{4}-\d{2}-\d{2}`, "description": "DOB YYYY-MM-DD"},
			"contact":         map[string]any{"type": "string", "description": "Phone or email"},
			"insurance":       map[string]any{"type": "string", "description": "Insurance provider name"},
			"menstrual_cycle": map[string]any{"type": "string", "description": "Menstrual cycle length in days"},
			"last_period":     map[string]any{"type": "string", "description": "Last menstrual period date YYYY-MM-DD"},
			"pregnancy_week":  map[string]any{"type": "string", "description": "Pregnancy week number or 'NA'"},
			"allergies":       map[string]any{"type": "string", "description": "Medication or food allergies"},
		},
		"additionalProperties": false,
	},
})

// extractWithModel asks the model to mine the utterance for the listed
// missing slots. Caller holds the mutex.
func (a *Agent) extractWithModel(ctx context.Context, raw string, missing []string) {
	resp, err := a.llm.New(ctx, openai.ChatCompletionNewParams{
		Model: extractModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Only extract these missing fields: " + strings.Join(missing, ", ")),
			openai.UserMessage(raw),
		},
		Tools:       []openai.ChatCompletionToolUnionParam{extractTool},
		Temperature: openai.Float(0),
	})
	if err != nil {
		a.logger.Warn("slot extraction call failed", zap.Error(err))
		return
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return
	}
	args := cleanseJSON(resp.Choices[0].Message.ToolCalls[0].Function.Arguments)
	for key, v := range args {
		value, ok := v.(string)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" || a.slots.get(key) != "" {
			continue
		}
		if key == slotDOB {
			if !validDOB(value) {
				continue
			}
			if age, ok := CalcAge(value, a.now()); ok {
				a.slots.Age = age
			}
		}
		a.slots.set(key, value)
	}
}

// Assess triages the current intake record. Red flags short-circuit to an
// emergency classification; otherwise the model classifies with the keyword
// rules as fallback.
func (a *Agent) Assess(ctx context.Context) Assessment {
	slots := a.Slots()

	if flags := DetectRedFlags(slots.Symptom, slots.PregnancyWeek); len(flags) > 0 {
		return Assessment{
			Urgency:      UrgencyEmergency,
			Subspecialty: SubspecialtyEmergency,
			Confidence:   1.0,
			Reasoning:    "IMMEDIATE MEDICAL ATTENTION REQUIRED",
			RedFlags:     flags,
		}
	}
	if a.llm == nil {
		return fallbackAssessment(slots.Symptom, slots.PregnancyWeek)
	}

	codes := make([]string, 0, len(subspecialtyNames))
	for code := range subspecialtyNames {
		codes = append(codes, string(code))
	}
	prompt := fmt.Sprintf(
		`Return ONLY JSON with keys: subspecialty_code, urgency ("routine"|"urgent"), confidence (0-1), reasoning.
Patient: age=%d, symptom=%s, pregnancy_week=%s, last_period=%s.
Subspecialties: %s.`,
		slots.Age, slots.Symptom, slots.PregnancyWeek, slots.LastPeriod, strings.Join(codes, ", "),
	)
	resp, err := a.llm.New(ctx, openai.ChatCompletionNewParams{
		Model: classifyModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are an expert OB/GYN triage specialist. Return valid JSON."),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil || len(resp.Choices) == 0 {
		a.logger.Warn("triage classification call failed", zap.Error(err))
		return fallbackAssessment(slots.Symptom, slots.PregnancyWeek)
	}
	data := cleanseJSON(resp.Choices[0].Message.Content)
	if len(data) == 0 {
		return fallbackAssessment(slots.Symptom, slots.PregnancyWeek)
	}
	return assessmentFromJSON(data)
}

func assessmentFromJSON(data map[string]any) Assessment {
	out := Assessment{
		Urgency:      UrgencyRoutine,
		Subspecialty: SubspecialtyGeneral,
		Confidence:   0.7,
		Reasoning:    "Standard triage protocol",
	}
	if code, ok := data["subspecialty_code"].(string); ok && Subspecialty(code).known() {
		out.Subspecialty = Subspecialty(code)
	}
	if urgency, ok := data["urgency"].(string); ok && (urgency == string(UrgencyUrgent) || urgency == string(UrgencyRoutine)) {
		out.Urgency = Urgency(urgency)
	}
	switch c := data["confidence"].(type) {
	case float64:
		out.Confidence = c
	case string:
		if f, err := strconv.ParseFloat(c, 64); err == nil {
			out.Confidence = f
		}
	}
	if reasoning, ok := data["reasoning"].(string); ok && reasoning != "" {
		out.Reasoning = reasoning
	}
	return out
}

// Outcome is the end product of one triage conversation.
type Outcome struct {
	Summary     string
	Assessment  Assessment
	Appointment Appointment
}

// Conclude triages the record and selects a provider. Emergencies skip
// scheduling and refer to the emergency department.
func (a *Agent) Conclude(ctx context.Context, preferredDays []time.Time) Outcome {
	assessment := a.Assess(ctx)
	slots := a.Slots()

	var appt Appointment
	if assessment.Urgency == UrgencyEmergency {
		appt = EmergencyReferral()
	} else {
		appt = a.roster.PickDoctor(
			assessment.Subspecialty,
			assessment.Urgency,
			slots.Insurance,
			preferredDays,
			a.now(),
		)
	}
	return Outcome{
		Summary:     a.summarize(ctx, slots, assessment, appt),
		Assessment:  assessment,
		Appointment: appt,
	}
}

func (a *Agent) summarize(ctx context.Context, slots Slots, assessment Assessment, appt Appointment) string {
	if a.llm == nil {
		return staticSummary(slots, assessment, appt)
	}
	var system, prompt string
	if assessment.Urgency == UrgencyEmergency {
		system = "You are an urgent care triage coordinator. Your priority is patient safety."
		prompt = fmt.Sprintf(
			`Generate an URGENT emergency notification for a patient who needs immediate medical attention.

Patient: %s
Symptoms: %s

RED FLAGS DETECTED:
%s

Clinical Assessment: %s

Tell them to go to the nearest ER or call 911 IMMEDIATELY, list the warning
signs detected, and make clear this cannot wait for an appointment. Be
compassionate but firm. Do NOT mention any doctor appointments or scheduling.`,
			slots.Name, slots.Symptom, strings.Join(assessment.RedFlags, "\n"), assessment.Reasoning,
		)
	} else {
		system = "You are a compassionate, professional OB/GYN clinic coordinator."
		prompt = fmt.Sprintf(
			`Generate a warm, professional appointment confirmation message.

Patient: %s
Chief Complaint: %s
Triage Assessment:
- Urgency: %s
- Subspecialty: %s
- Confidence: %.0f%%
- Clinical note: %s

Appointment Details:
- Doctor: %s
- Date: %s
- Time: %s
- Wait time: %d day(s)

Thank them, confirm the appointment details, explain the subspecialty match,
remind them to bring insurance card and ID, and close professionally.`,
			slots.Name, slots.Symptom,
			assessment.Urgency, assessment.Subspecialty.Description(),
			assessment.Confidence*100, assessment.Reasoning,
			appt.DoctorName, appt.Date, appt.Time, appt.WaitDays,
		)
	}
	resp, err := a.llm.New(ctx, openai.ChatCompletionNewParams{
		Model: confirmModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil || len(resp.Choices) == 0 {
		a.logger.Warn("summary generation call failed", zap.Error(err))
		return staticSummary(slots, assessment, appt)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

func staticSummary(slots Slots, assessment Assessment, appt Appointment) string {
	name := slots.Name
	if name == "" {
		name = "Patient"
	}
	if assessment.Urgency == UrgencyEmergency {
		warnings := "Symptoms require immediate evaluation"
		if len(assessment.RedFlags) > 0 {
			warnings = strings.Join(assessment.RedFlags, "; ")
		}
		return fmt.Sprintf(
			"URGENT MEDICAL ATTENTION REQUIRED. Dear %s, based on your symptoms (%s) "+
				"you require immediate emergency care. Warning signs detected: %s. "+
				"Call 911 or go to your nearest Emergency Room now. Do not wait for a regular appointment.",
			name, slots.Symptom, warnings,
		)
	}
	return fmt.Sprintf(
		"Dear %s, thank you for providing your information. "+
			"Appointment: %s on %s at %s (%s, priority %s). "+
			"Please bring your insurance card and a valid ID. "+
			"Contact our office to reschedule or with any questions.",
		name, appt.DoctorName, appt.Date, appt.Time,
		assessment.Subspecialty.Description(), assessment.Urgency,
	)
}

// TranscriptHandler adapts the agent to the relay's transcript hook: caller
// lines feed the intake record, and once it completes the outcome is written
// to sink exactly once.
func (a *Agent) TranscriptHandler(sink func(line string)) func(role, text string) {
	return func(role, text string) {
		if role != "caller" {
			return
		}
		ctx := context.Background()
		slots := a.Update(ctx, text)
		if !slots.Complete() {
			return
		}
		a.mu.Lock()
		done := a.concluded
		a.concluded = true
		a.mu.Unlock()
		if done {
			return
		}
		outcome := a.Conclude(ctx, nil)
		a.logger.Info(
			"triage concluded",
			zap.String("urgency", string(outcome.Assessment.Urgency)),
			zap.String("subspecialty", string(outcome.Assessment.Subspecialty)),
			zap.String("doctor", outcome.Appointment.DoctorName),
		)
		if sink != nil {
			sink(outcome.Summary)
		}
	}
}
