package app

import (
	"context"
	"fmt"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/auth"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/flow"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/pipeline"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/recorder"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/server"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt/whisper"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/tts/piper"
)

// App represents the application with all its dependencies
type App struct {
	Config     *config.Settings
	Logger     *Logger.Logger
	Registry   *session.Registry
	Orch       *pipeline.Orchestrator
	Barge      *pipeline.BargeInController
	Flow       flow.Flow
	Recorder   recorder.Recorder
	Validator  *auth.Validator
	ServerDeps server.Dependencies
}

// NewApp creates a new application instance with all dependencies properly wired
func NewApp(cfg *config.Settings, logger *Logger.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.setupDependencies(); err != nil {
		return nil, err
	}

	return app, nil
}

// setupDependencies initializes all application dependencies
func (a *App) setupDependencies() error {
	a.Registry = session.NewRegistry(a.Logger.Named("registry"))

	rec, err := a.setupRecorder()
	if err != nil {
		return err
	}
	a.Recorder = rec

	fl, err := a.setupFlow()
	if err != nil {
		return err
	}
	a.Flow = fl

	recognizer := whisper.New(a.Config.Voice.WhisperURL, a.Config.Voice.Language, a.Logger.Named("whisper"))
	synth := piper.New(a.Config.Voice.PiperURL, a.Config.Voice.PiperVoice, a.Config.Voice.PiperRate)

	a.Orch = pipeline.NewOrchestrator(
		a.Config.Pipeline,
		recognizer,
		a.Flow,
		synth,
		a.Recorder,
		a.Registry,
		a.Logger.Named("pipeline"),
	)
	a.Barge = pipeline.NewBargeInController(a.Orch, a.Logger.Named("bargein"))

	a.Validator = auth.NewValidator(a.Config.Auth)
	if a.Config.Auth.Enabled && a.Config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but jwt secret not configured")
	}

	a.ServerDeps = server.NewServerDependencies(
		a.Logger,
		a.Registry,
		a.Orch,
		a.Barge,
		a.Flow,
		a.Recorder,
		a.Validator,
	)

	return nil
}

// setupRecorder picks the transcript store. Redis when recording is
// enabled and reachable, otherwise a discard recorder.
func (a *App) setupRecorder() (recorder.Recorder, error) {
	if !a.Config.Recording.Enabled {
		return recorder.Noop{}, nil
	}
	if !a.Config.Redis.Configured() {
		a.Logger.Warn("recording enabled but redis not configured, transcripts will be discarded")
		return recorder.Noop{}, nil
	}
	rec, err := recorder.NewRedis(a.Config.Redis, a.Config.Recording.TTL, a.Logger.Named("recorder"))
	if err != nil {
		return nil, fmt.Errorf("recorder setup failed: %w", err)
	}
	return rec, nil
}

// setupFlow selects the conversation engine from config.
func (a *App) setupFlow() (flow.Flow, error) {
	switch a.Config.Flow.Provider {
	case "chatbot":
		if a.Config.Flow.ChatbotURL == "" {
			return nil, fmt.Errorf("flow provider %q requires chatbot_url", a.Config.Flow.Provider)
		}
		return flow.NewChatbotFlow(a.Config.Flow, a.Logger.Named("flow")), nil
	case "openai":
		if a.Config.Flow.OpenAIKey == "" {
			return nil, fmt.Errorf("flow provider %q requires openai_key", a.Config.Flow.Provider)
		}
		return flow.NewOpenAIFlow(a.Config.Flow, a.Logger.Named("flow")), nil
	default:
		return nil, fmt.Errorf("unknown flow provider %q", a.Config.Flow.Provider)
	}
}

// Start launches the pipeline workers and the idle-session janitor.
func (a *App) Start(ctx context.Context) {
	a.Orch.Start()
	a.Registry.StartJanitor(ctx, a.Config.Session.JanitorInterval, a.Config.Session.IdleTTL, func(s *session.Session) {
		a.Orch.Detach(s.ID)
	})
}

// Stop drains the pipeline workers.
func (a *App) Stop() {
	a.Orch.Stop()
}

// GetServerDependencies returns the server dependencies
func (a *App) GetServerDependencies() server.Dependencies {
	return a.ServerDeps
}
