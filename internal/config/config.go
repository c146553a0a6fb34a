package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the server's environment-driven settings. Every field
// has a default, so an empty environment runs a working server.
type Config struct {
	Port                 string        `envconfig:"PORT" default:"8080"`
	DBPath               string        `envconfig:"DB_PATH" default:"./data/huddle.db"`
	ClockInterval        time.Duration `envconfig:"CLOCK_INTERVAL" default:"5s"`
	DefaultTimerDuration time.Duration `envconfig:"DEFAULT_TIMER_DURATION" default:"15m"`
	MessageRate          float64       `envconfig:"MESSAGE_RATE" default:"100"`
	MessageBurst         int           `envconfig:"MESSAGE_BURST" default:"200"`
	MaxMessageSize       int64         `envconfig:"MAX_MESSAGE_SIZE" default:"1048576"`
}

// Load reads HUDDLE_-prefixed environment variables.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("huddle", &cfg)
	return cfg, err
}
