package purgereminders

import "time"

type Config struct {
	Timeout time.Duration
	// Retention is how long sent and cancelled reminders are kept.
	Retention time.Duration
}

func LoadConfig(retentionDays int) *Config {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Config{
		Timeout:   50 * time.Second,
		Retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}
