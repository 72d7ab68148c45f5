package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppPort      int    `mapstructure:"APP_PORT"`
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`

	LLMAPIURL               string        `mapstructure:"LLM_API_URL"`
	LLMAPIKey               string        `mapstructure:"LLM_API_KEY"`
	LLMModel                string        `mapstructure:"LLM_MODEL"`
	LLMTemperature          float64       `mapstructure:"LLM_TEMPERATURE"`
	LLMMaxTokens            int           `mapstructure:"LLM_MAX_TOKENS"`
	LLMTopP                 float64       `mapstructure:"LLM_TOP_P"`
	LLMFrequencyPenalty     float64       `mapstructure:"LLM_FREQUENCY_PENALTY"`
	LLMPresencePenalty      float64       `mapstructure:"LLM_PRESENCE_PENALTY"`
	LLMTimeout              time.Duration `mapstructure:"LLM_TIMEOUT"`
	LLMStreamConnectTimeout time.Duration `mapstructure:"LLM_STREAM_CONNECT_TIMEOUT"`
	LLMStreamIdleTimeout    time.Duration `mapstructure:"LLM_STREAM_IDLE_TIMEOUT"`
	TurnTimeout             time.Duration `mapstructure:"TURN_TIMEOUT"`
	InitialPersona          string        `mapstructure:"INITIAL_PERSONA"`

	PacingEnabled       bool          `mapstructure:"PACING_ENABLED"`
	PacingSentencePause time.Duration `mapstructure:"PACING_SENTENCE_PAUSE"`
	PacingPhrasePause   time.Duration `mapstructure:"PACING_PHRASE_PAUSE"`
	PacingWordPause     time.Duration `mapstructure:"PACING_WORD_PAUSE"`
	PacingMinSpacing    time.Duration `mapstructure:"PACING_MIN_SPACING"`
	PacingCharDelay     time.Duration `mapstructure:"PACING_CHAR_DELAY"`

	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	RedisAddr          string        `mapstructure:"REDIS_ADDR"`
	TurnLockTTL        time.Duration `mapstructure:"TURN_LOCK_TTL"`
	CORSAllowedOrigins []string      `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`

	// ConfigFile is the .env file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", 8000)
	v.SetDefault("DATABASE_PATH", "/data/tutor.db")
	v.SetDefault("LOG_LEVEL", "INFO")

	v.SetDefault("LLM_API_URL", "https://api.together.xyz/v1")
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_MODEL", "mistralai/Mixtral-8x7B-Instruct-v0.1")
	v.SetDefault("LLM_TEMPERATURE", 0.7)
	v.SetDefault("LLM_MAX_TOKENS", 500)
	v.SetDefault("LLM_TOP_P", 0.9)
	v.SetDefault("LLM_FREQUENCY_PENALTY", 0.3)
	v.SetDefault("LLM_PRESENCE_PENALTY", 0.3)
	v.SetDefault("LLM_TIMEOUT", "20s")
	v.SetDefault("LLM_STREAM_CONNECT_TIMEOUT", "30s")
	v.SetDefault("LLM_STREAM_IDLE_TIMEOUT", "45s")
	v.SetDefault("TURN_TIMEOUT", "3m")
	v.SetDefault("INITIAL_PERSONA", "You are a knowledgeable, encouraging teacher. Explain ideas accurately and at the student's level.")

	v.SetDefault("PACING_ENABLED", true)
	v.SetDefault("PACING_SENTENCE_PAUSE", "500ms")
	v.SetDefault("PACING_PHRASE_PAUSE", "160ms")
	v.SetDefault("PACING_WORD_PAUSE", "80ms")
	v.SetDefault("PACING_MIN_SPACING", "150ms")
	v.SetDefault("PACING_CHAR_DELAY", "20ms")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("TURN_LOCK_TTL", "5m")
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
}

// LoadConfig reads defaults, an optional .env file and the environment,
// in increasing order of precedence.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	return &cfg, nil
}
