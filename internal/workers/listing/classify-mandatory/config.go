// internal/workers/listing/classify-mandatory/config.go
package classifymandatory

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Minute,
	}
}
