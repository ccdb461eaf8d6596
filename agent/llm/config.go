package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	backendx "github.com/tanpawarit/reservation-concierge/pkg/backend"
)

// Config carries backend credentials and per-agent defaults. Loaded with the
// LLM prefix, e.g. LLM_GEMINI_API_KEY.
type Config struct {
	Backend            string        `envconfig:"BACKEND" split_words:"true" default:"gemini"`
	Model              string        `envconfig:"MODEL" split_words:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	MaxToolRounds      int           `envconfig:"MAX_TOOL_ROUNDS" split_words:"true" default:"4"`

	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY" split_words:"true"`
	GeminiBaseURL    string `envconfig:"GEMINI_BASE_URL" split_words:"true"`
	GeminiModel      string `envconfig:"GEMINI_MODEL" split_words:"true" default:"gemini-2.0-flash"`
	GroqAPIKey       string `envconfig:"GROQ_API_KEY" split_words:"true"`
	GroqModel        string `envconfig:"GROQ_MODEL" split_words:"true" default:"llama-3.3-70b-versatile"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY" split_words:"true"`
	OpenRouterModel  string `envconfig:"OPENROUTER_MODEL" split_words:"true" default:"x-ai/grok-4.1-fast"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY" split_words:"true"`
	AnthropicModel   string `envconfig:"ANTHROPIC_MODEL" split_words:"true" default:"claude-sonnet-4-5"`
	SiteURL          string `envconfig:"SITE_URL" split_words:"true"`
	SiteName         string `envconfig:"SITE_NAME" split_words:"true"`

	MemoryModel            string  `envconfig:"MEMORY_MODEL" split_words:"true"`
	ReservationModel       string  `envconfig:"RESERVATION_MODEL" split_words:"true"`
	MemoryTemperature      float32 `envconfig:"MEMORY_TEMPERATURE" split_words:"true" default:"-1"`
	ReservationTemperature float32 `envconfig:"RESERVATION_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	b, err := ParseBackend(c.Backend)
	if err != nil {
		return err
	}
	if strings.TrimSpace(c.apiKey(b)) == "" && strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("%w: no api key for backend %s nor for fallback %s", contractx.ErrValidation, b, FallbackBackend)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be > 0", contractx.ErrValidation)
	}
	return nil
}

// DefaultsFor returns the baseline AgentConfig of one agent before overrides.
func (c Config) DefaultsFor(agentType contractx.AgentType) AgentConfig {
	backend, err := ParseBackend(c.Backend)
	if err != nil {
		backend = FallbackBackend
	}
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch agentType {
	case contractx.AgentTypeMemoryExtraction, contractx.AgentTypeMemoryInjection:
		if v := strings.TrimSpace(c.MemoryModel); v != "" {
			modelName = v
		}
		if c.MemoryTemperature >= 0 {
			temp = c.MemoryTemperature
		}
	case contractx.AgentTypeReservation, contractx.AgentTypeSupport:
		if v := strings.TrimSpace(c.ReservationModel); v != "" {
			modelName = v
		}
		if c.ReservationTemperature >= 0 {
			temp = c.ReservationTemperature
		}
	}

	return AgentConfig{
		Backend:     backend,
		Model:       modelName,
		Temperature: temp,
		MaxTokens:   c.MaxCompletionToken,
	}
}

func (c Config) apiKey(b Backend) string {
	switch b {
	case BackendGemini:
		return c.GeminiAPIKey
	case BackendGroq:
		return c.GroqAPIKey
	case BackendOpenRouter:
		return c.OpenRouterAPIKey
	case BackendAnthropic:
		return c.AnthropicAPIKey
	}
	return ""
}

func (c Config) defaultModel(b Backend) string {
	switch b {
	case BackendGemini:
		return c.GeminiModel
	case BackendGroq:
		return c.GroqModel
	case BackendOpenRouter:
		return c.OpenRouterModel
	case BackendAnthropic:
		return c.AnthropicModel
	}
	return ""
}

// Builder returns the backend constructor for one resolved AgentConfig. An
// empty model falls back to the backend's configured default model.
func (c Config) Builder(ac AgentConfig) (backendx.LLMBuilder, error) {
	modelName := strings.TrimSpace(ac.Model)
	if modelName == "" {
		modelName = strings.TrimSpace(c.defaultModel(ac.Backend))
	}
	maxTokens := ac.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.MaxCompletionToken
	}

	compat := func(name, baseURL string) *backendx.OpenAICompatConfig {
		if v := strings.TrimSpace(ac.Endpoint); v != "" {
			baseURL = v
		}
		return &backendx.OpenAICompatConfig{
			Name:               name,
			BaseURL:            baseURL,
			APIKey:             c.apiKey(ac.Backend),
			Model:              modelName,
			MaxCompletionToken: &maxTokens,
			Temperature:        ac.Temperature,
			Stop:               ac.Stop,
			Timeout:            c.Timeout,
			SiteURL:            strings.TrimSpace(c.SiteURL),
			SiteName:           strings.TrimSpace(c.SiteName),
		}
	}

	switch ac.Backend {
	case BackendGemini:
		baseURL := backendx.GeminiBaseURL
		if v := strings.TrimSpace(c.GeminiBaseURL); v != "" {
			baseURL = v
		}
		return compat(string(BackendGemini), baseURL), nil
	case BackendGroq:
		return compat(string(BackendGroq), backendx.GroqBaseURL), nil
	case BackendOpenRouter:
		return compat(string(BackendOpenRouter), backendx.OpenRouterBaseURL), nil
	case BackendAnthropic:
		return &backendx.AnthropicConfig{
			APIKey:      c.AnthropicAPIKey,
			Model:       modelName,
			MaxTokens:   maxTokens,
			Temperature: ac.Temperature,
			Stop:        ac.Stop,
			Timeout:     c.Timeout,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", contractx.ErrValidation, ac.Backend)
	}
}
