package orchestrator

// Config bounds one pipeline run.
type Config struct {
	MaxSteps        int `envconfig:"MAX_STEPS" split_words:"true" default:"40"`
	HistoryWindow   int `envconfig:"HISTORY_WINDOW" split_words:"true" default:"10"`
	RecentUserTurns int `envconfig:"RECENT_USER_TURNS" split_words:"true" default:"3"`
}

func DefaultConfig() Config {
	return Config{MaxSteps: 40, HistoryWindow: 10, RecentUserTurns: 3}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = def.HistoryWindow
	}
	if c.RecentUserTurns <= 0 {
		c.RecentUserTurns = def.RecentUserTurns
	}
	return c
}
