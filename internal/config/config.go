package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tharindu1527/sample-doc-ai/pkg/logging"
)

// Config holds application configuration.
type Config struct {
	// BackendURL is the ws:// or wss:// voice endpoint.
	BackendURL string
	// HTTPAddr serves the local status and control endpoints.
	HTTPAddr string

	FFmpegPath       string
	FFplayPath       string
	CaptureDevice    string
	NoiseSuppression bool

	// ResetDelay is the pause before a connection reset re-dials.
	ResetDelay time.Duration
	LogLevel   string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// ArchiveEnabled reports whether utterance archival is configured.
func (c Config) ArchiveEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceRoleKey != ""
}

func (c Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("voice backend URL is required (set VOICE_BACKEND_URL or -backend-url)")
	}
	return nil
}

// Load reads .env if present, then environment variables, then flags, in
// increasing precedence.
func Load(args []string) (Config, error) {
	log := logging.Default().WithComponent("config")
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file loaded")
	}

	var cfg Config
	fs := flag.NewFlagSet("voiceclient", flag.ContinueOnError)

	fs.StringVar(&cfg.BackendURL, "backend-url", os.Getenv("VOICE_BACKEND_URL"), "Voice backend websocket URL")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", getEnv("HTTP_ADDR", ":8090"), "Local status server address")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", getEnv("FFMPEG_PATH", "ffmpeg"), "ffmpeg binary for microphone capture")
	fs.StringVar(&cfg.FFplayPath, "ffplay", getEnv("FFPLAY_PATH", "ffplay"), "ffplay binary for audio playback")
	fs.StringVar(&cfg.CaptureDevice, "device", os.Getenv("AUDIO_DEVICE"), "Capture device override")
	fs.BoolVar(&cfg.NoiseSuppression, "noise-suppression", getEnv("NOISE_SUPPRESSION", "true") == "true", "Apply a noise reduction filter while capturing")
	fs.DurationVar(&cfg.ResetDelay, "reset-delay", getDurationEnv("RESET_DELAY", time.Second), "Pause before a connection reset re-dials")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.SupabaseURL, "supabase-url", os.Getenv("SUPABASE_URL"), "Supabase URL")
	fs.StringVar(&cfg.SupabaseServiceRoleKey, "supabase-key", os.Getenv("SUPABASE_SERVICE_ROLE_KEY"), "Supabase Service Role Key")
	fs.StringVar(&cfg.SupabaseBucket, "supabase-bucket", getEnv("SUPABASE_BUCKET", "voice-utterances"), "Supabase Storage Bucket")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if !cfg.ArchiveEnabled() {
		log.Info("SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set, utterance archival disabled")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logging.Default().Warn("bad duration, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}
