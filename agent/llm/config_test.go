package llm

import (
	"errors"
	"reflect"
	"testing"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	backendx "github.com/tanpawarit/reservation-concierge/pkg/backend"
)

func testConfig() Config {
	return Config{
		Backend:                "groq",
		MaxCompletionToken:     2000,
		GeminiAPIKey:           "g-key",
		GeminiModel:            "gemini-2.0-flash",
		GroqAPIKey:             "q-key",
		GroqModel:              "llama-3.3-70b-versatile",
		AnthropicAPIKey:        "a-key",
		AnthropicModel:         "claude-sonnet-4-5",
		MemoryTemperature:      0.1,
		ReservationTemperature: -1,
		Temperature:            0.4,
	}
}

func TestParseBackend(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Backend{"": BackendGemini, " Groq ": BackendGroq, "anthropic": BackendAnthropic} {
		got, err := ParseBackend(raw)
		if err != nil || got != want {
			t.Fatalf("ParseBackend(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseBackend("ollama"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMergeIsPure(t *testing.T) {
	t.Parallel()

	def := AgentConfig{Backend: BackendGemini, Model: "m", Temperature: 0.2, Stop: []string{"x"}, MaxTokens: 100}
	model := "override"
	temp := float32(0)
	ov := AgentOverride{Model: &model, Temperature: &temp}

	got := Merge(def, ov)
	if got.Model != "override" || got.Temperature != 0 {
		t.Fatalf("present fields must win: %+v", got)
	}
	if got.Backend != BackendGemini || got.MaxTokens != 100 || !reflect.DeepEqual(got.Stop, []string{"x"}) {
		t.Fatalf("absent fields must keep defaults: %+v", got)
	}
	got.Stop[0] = "mutated"
	if def.Stop[0] != "x" || def.Model != "m" {
		t.Fatalf("merge must not touch the default: %+v", def)
	}
	if !reflect.DeepEqual(Merge(def, AgentOverride{}), def) {
		t.Fatal("empty override must return the default")
	}
}

func TestOverridesUnknownNameIgnored(t *testing.T) {
	t.Parallel()

	model := "x"
	ov := Overrides{"weather_agent": {Model: &model}}
	if _, ok := ov.For(contractx.AgentTypeReservation); ok {
		t.Fatal("unknown agent names must not match")
	}
	if _, ok := Overrides(nil).For(contractx.AgentTypeReservation); ok {
		t.Fatal("nil overrides match nothing")
	}
}

func TestDefaultsForPerAgent(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	mem := cfg.DefaultsFor(contractx.AgentTypeMemoryExtraction)
	if mem.Backend != BackendGroq || mem.Temperature != 0.1 {
		t.Fatalf("unexpected memory defaults: %+v", mem)
	}
	res := cfg.DefaultsFor(contractx.AgentTypeReservation)
	if res.Temperature != 0.4 || res.MaxTokens != 2000 {
		t.Fatalf("unexpected reservation defaults: %+v", res)
	}
}

func TestBuilderPerBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	b, err := cfg.Builder(AgentConfig{Backend: BackendGroq})
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	compat, ok := b.(*backendx.OpenAICompatConfig)
	if !ok {
		t.Fatalf("expected OpenAI-compatible builder, got %T", b)
	}
	if compat.BaseURL != backendx.GroqBaseURL || compat.Model != "llama-3.3-70b-versatile" || compat.APIKey != "q-key" {
		t.Fatalf("unexpected groq builder: %+v", compat)
	}

	b, err = cfg.Builder(AgentConfig{Backend: BackendGemini, Endpoint: "http://proxy.local/v1", Model: "gemini-x"})
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	compat = b.(*backendx.OpenAICompatConfig)
	if compat.BaseURL != "http://proxy.local/v1" || compat.Model != "gemini-x" {
		t.Fatalf("endpoint and model overrides ignored: %+v", compat)
	}

	b, err = cfg.Builder(AgentConfig{Backend: BackendAnthropic})
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	if a, ok := b.(*backendx.AnthropicConfig); !ok || a.Model != "claude-sonnet-4-5" {
		t.Fatalf("unexpected anthropic builder: %#v", b)
	}

	if _, err := cfg.Builder(AgentConfig{Backend: "ollama"}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.GroqAPIKey, cfg.GeminiAPIKey = "", ""
	if err := cfg.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
