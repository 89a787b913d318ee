package internal

import (
	"fmt"
	"time"
)

// Config is the engine's deployment surface. Values mirror the hosted
// defaults but every one of them is adjustable per environment.
type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	BadgerPath     string `env:"BADGER_FILEPATH,required=true"`
	IdentitySecret string `env:"IDENTITY_SECRET,required=true"`

	SendCooldown     time.Duration `env:"SEND_COOLDOWN,default=1s"`
	RateWindow       time.Duration `env:"RATE_WINDOW,default=10s"`
	RateLimit        int           `env:"RATE_LIMIT,default=5"`
	PresenceTTL      time.Duration `env:"PRESENCE_TTL,default=2m"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH,default=500"`
	RecentLimit      int           `env:"RECENT_LIMIT,default=50"`

	BufferSize         int           `env:"BUFFER_SIZE,default=256"`
	SinkTimeout        time.Duration `env:"SINK_TIMEOUT,default=2s"`
	CompactionInterval time.Duration `env:"COMPACTION_INTERVAL,default=2m"`
	RateIdleFor        time.Duration `env:"RATE_IDLE_FOR,default=10m"`
	HealthInterval     time.Duration `env:"HEALTH_INTERVAL,default=30s"`
	CharReplacement    string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

// CharacterRune enforces that the mask replacement is a single rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
