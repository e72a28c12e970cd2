package server

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	relay "github.com/bt-bridge/twilio-realtime"
	"github.com/bt-bridge/twilio-realtime/shared"
)

// Environment variable keys. Values set in the environment win over the
// config file.
const (
	envKeyPort        string = "PORT"
	envKeyApiKey      string = "OPENAI_API_KEY"
	envKeyBaseUrl     string = "OPENAI_BASE_URL"
	envKeyTemperature string = "TEMPERATURE"
)

const defaultInstructions = `You are an AI medical assistant for an OB/GYN clinic's triage hotline. Your role is to:

1. Collect patient information efficiently and compassionately
2. Assess urgency and recommend the appropriate subspecialty
3. Provide clear, professional guidance, and give the suggestion of which subspecialty to refer to

SUBSPECIALTY CATEGORIES:
- Maternal-Fetal Medicine (High-Risk Pregnancy)
- Urogynecology & Pelvic Reconstructive Medicine
- Gynecologic Oncology
- Reproductive Endocrinology & Infertility
- Complex/Minimally Invasive Gynecologic Surgery
- General OB/GYN
- Emergency OB/GYN

TRIAGE PROTOCOL:
1. Listen carefully as the patient describes their situation
2. If EMERGENCY symptoms detected (severe hemorrhage, chest pain, severe abdominal pain, difficulty breathing, seizures, vision changes):
   - Immediately recommend calling 911 or going to the nearest Emergency Room
   - Classify as: "Emergency OB/GYN"

3. For non-emergency cases, classify based on:
   - Pregnancy-related concerns -> "Maternal-Fetal Medicine"
   - Cancer screening, abnormal pap, postmenopausal bleeding -> "Gynecologic Oncology"
   - Urinary incontinence, pelvic prolapse -> "Urogynecology"
   - Infertility, PCOS, hormonal issues -> "Reproductive Endocrinology & Infertility"
   - Fibroids, endometriosis, complex surgical needs -> "Complex/Minimally Invasive Gynecologic Surgery"
   - Routine checkups, general concerns -> "General OB/GYN"

RESPONSE FORMAT:
After collecting information, provide:
1. Brief summary of patient info
2. Recommended subspecialty with clear reasoning
3. Urgency level (Emergency/Urgent/Routine)
4. Next steps (call 911, schedule appointment, etc.)

Keep your tone warm, professional, and reassuring. Speak clearly and avoid medical jargon when possible.`

const (
	defaultCallVoice   = "Google.en-US-Chirp3-HD-Aoede"
	defaultCallWelcome = "Hello, wetrophia at your service. Please state your name and symptoms, " +
		"and we will assist you shortly. If you are in an emergency, please hang up and call 911 immediately."
	defaultCallPrompt = "O.K. you can start talking!"
)

// Config is the full relay server configuration, loadable from a YAML file
// with environment overrides on top.
type Config struct {
	Port   int          `yaml:"port"`
	Log    LogConfig    `yaml:"log"`
	Model  ModelConfig  `yaml:"model"`
	Call   CallConfig   `yaml:"call"`
	Triage TriageWireup `yaml:"triage"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ModelConfig configures the realtime model leg.
type ModelConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Name         string  `yaml:"name"`
	Voice        string  `yaml:"voice"`
	Temperature  float64 `yaml:"temperature"`
	Instructions string  `yaml:"instructions"`
	Greeting     string  `yaml:"greeting"`
}

// CallConfig configures the spoken call-setup markup played before the media
// stream connects.
type CallConfig struct {
	Voice        string `yaml:"voice"`
	Welcome      string `yaml:"welcome"`
	Prompt       string `yaml:"prompt"`
	PauseSeconds int    `yaml:"pause_seconds"`
}

// TriageWireup enables the transcript-fed triage consumer.
type TriageWireup struct {
	Enabled      bool   `yaml:"enabled"`
	ScheduleFile string `yaml:"schedule_file"`
}

func DefaultConfig() *Config {
	return &Config{
		Port: 5050,
		Log: LogConfig{
			File:       "relay.log",
			MaxSizeMB:  10,
			MaxBackups: 2,
			MaxAgeDays: 3,
		},
		Model: ModelConfig{
			Name:         "gpt-realtime",
			Voice:        "verse",
			Temperature:  0.8,
			Instructions: defaultInstructions,
		},
		Call: CallConfig{
			Voice:        defaultCallVoice,
			Welcome:      defaultCallWelcome,
			Prompt:       defaultCallPrompt,
			PauseSeconds: 1,
		},
	}
}

// LoadConfig builds the configuration: defaults, then the YAML file when path
// is non-empty, then environment overrides. The API key is required by the
// time loading finishes.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Model.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrMissingEnvVariable, envKeyApiKey)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Port, err = shared.Getenv(shared.GetenvInt, envKeyPort, false, c.Port); err != nil {
		return err
	}
	if c.Model.APIKey, err = shared.Getenv(shared.GetenvString, envKeyApiKey, false, c.Model.APIKey); err != nil {
		return err
	}
	if c.Model.BaseURL, err = shared.Getenv(shared.GetenvString, envKeyBaseUrl, false, c.Model.BaseURL); err != nil {
		return err
	}
	if c.Model.Temperature, err = shared.Getenv(shared.GetenvFloat, envKeyTemperature, false, c.Model.Temperature); err != nil {
		return err
	}
	return nil
}

// RelayModelConfig converts the file-level model section into the dialing
// configuration of the model leg.
func (c *Config) RelayModelConfig() relay.ModelConfig {
	session := relay.DefaultSessionConfig()
	session.Model = c.Model.Name
	session.Voice = c.Model.Voice
	session.Instructions = c.Model.Instructions
	return relay.ModelConfig{
		APIKey:      c.Model.APIKey,
		BaseURL:     c.Model.BaseURL,
		Model:       c.Model.Name,
		Temperature: c.Model.Temperature,
		Session:     session,
		Greeting:    c.Model.Greeting,
	}
}
