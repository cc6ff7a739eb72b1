package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt/vad"
)

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Configured() bool {
	return r.Addr != ""
}

type RecordingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// VoiceConfig points at the speech collaborator services.
type VoiceConfig struct {
	WhisperURL string `mapstructure:"whisper_url"`
	Language   string `mapstructure:"language"`

	PiperURL   string `mapstructure:"piper_url"`
	PiperVoice string `mapstructure:"piper_voice"`
	PiperRate  int32  `mapstructure:"piper_rate"`

	// "energy" or "silero"
	VADProvider string `mapstructure:"vad_provider"`
	SileroURL   string `mapstructure:"silero_url"`
}

// FlowConfig selects and configures the conversational flow provider.
type FlowConfig struct {
	// "chatbot" or "openai"
	Provider string `mapstructure:"provider"`

	ChatbotURL   string        `mapstructure:"chatbot_url"`
	ChatbotToken string        `mapstructure:"chatbot_token"`
	Timeout      time.Duration `mapstructure:"timeout"`

	OpenAIKey   string `mapstructure:"openai_key"`
	OpenAIModel string `mapstructure:"openai_model"`

	WelcomePrompt  string `mapstructure:"welcome_prompt"`
	FallbackPhrase string `mapstructure:"fallback_phrase"`
}

type PipelineConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	Workers      int           `mapstructure:"workers"`
	StageRetries int           `mapstructure:"stage_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	MaxPending   int           `mapstructure:"max_pending"`
}

type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

type Settings struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Recording RecordingConfig `mapstructure:"recording"`
	Voice     VoiceConfig     `mapstructure:"voice"`
	Flow      FlowConfig      `mapstructure:"flow"`
	VAD       vad.Config      `mapstructure:"vad"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Session   SessionConfig   `mapstructure:"session"`
	Env       string          `mapstructure:"env"`
	Debug     bool            `mapstructure:"debug"`
}

func Load() (*Settings, error) {
	viper.SetConfigName("config_" + genEnv())
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	settings := defaults()
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return settings, nil
}

func defaults() *Settings {
	return &Settings{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Recording: RecordingConfig{
			TTL: 24 * time.Hour,
		},
		Voice: VoiceConfig{
			Language:    "en",
			PiperRate:   16000,
			VADProvider: "energy",
		},
		Flow: FlowConfig{
			Provider:       "chatbot",
			Timeout:        15 * time.Second,
			FallbackPhrase: "Sorry, I could not process that. Could you please repeat?",
		},
		VAD: vad.DefaultConfig(),
		Pipeline: PipelineConfig{
			QueueSize:    8,
			Workers:      4,
			StageRetries: 2,
			RetryBackoff: 200 * time.Millisecond,
			StageTimeout: 20 * time.Second,
			MaxPending:   4,
		},
		Session: SessionConfig{
			IdleTTL:         5 * time.Minute,
			JanitorInterval: 30 * time.Second,
		},
	}
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
