// internal/workers/listing/fill-template/config.go
package filltemplate

import "time"

type Config struct {
	Timeout      time.Duration
	DefaultSheet string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Minute,
		DefaultSheet: "Template",
	}
}
