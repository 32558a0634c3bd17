package dispatchreminders

import "time"

type Config struct {
	Timeout time.Duration
	// MaxCatchUp bounds how many missed occurrences a recurring reminder
	// skips over when it is processed late.
	MaxCatchUp int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    50 * time.Second,
		MaxCatchUp: 1000,
	}
}
