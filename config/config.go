// Package config loads the voice-doctor configuration from an optional YAML
// file and the process environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGroq       = "groq"
	ProviderDeepgram   = "deepgram"
	ProviderElevenLabs = "elevenlabs"
	ProviderGTTS       = "gtts"
)

// DefaultSystemPrompt is prepended to every transcript before it is sent to the
// vision model.
const DefaultSystemPrompt = `You have to act as a professional doctor, i know you are not but this is for learning purpose. ` +
	`What's in this image?. Do you find anything wrong with it medically? ` +
	`If you make a differential, suggest some remedies for them. Donot add any numbers or special characters in ` +
	`your response. Your response should be in one long paragraph. Also always answer as if you are answering to a real person. ` +
	`Donot say 'In the image I see' but say 'With what I see, I think you have ....' ` +
	`Dont respond as an AI model in markdown, your answer should mimic that of an actual doctor not an AI bot, ` +
	`Keep your answer concise (max 2 sentences). No preamble, start your answer right away please`

// Config is the complete service configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Output        OutputConfig        `yaml:"output"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Vision        VisionConfig        `yaml:"vision"`
	Speech        SpeechConfig        `yaml:"speech"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// StorageConfig lists the directories used for inputs and outputs. Relative
// paths are resolved against WorkDir.
type StorageConfig struct {
	WorkDir       string `yaml:"work_dir"`
	InputsDir     string `yaml:"inputs_dir"`
	OutputsDir    string `yaml:"outputs_dir"`
	ImagesDir     string `yaml:"images_dir"`
	NormalizedDir string `yaml:"normalized_dir"`
}

// OutputConfig controls naming of the synthesized audio file.
type OutputConfig struct {
	FileName   string `yaml:"file_name"`
	PerRequest bool   `yaml:"per_request"`
}

// TranscriptionConfig selects and configures the speech-to-text provider.
type TranscriptionConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"-"`
	DeepgramURL    string `yaml:"deepgram_url"`
	DeepgramModel  string `yaml:"deepgram_model"`
	DeepgramAPIKey string `yaml:"-"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	Timeout        int    `yaml:"timeout"` // seconds, 0 means no client-side timeout
}

// VisionConfig configures the multimodal model.
type VisionConfig struct {
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	SystemPrompt string `yaml:"system_prompt"`
	APIKey       string `yaml:"-"`
	Timeout      int    `yaml:"timeout"`
}

// SpeechConfig selects and configures the speech synthesis provider.
type SpeechConfig struct {
	Provider     string `yaml:"provider"`
	BaseURL      string `yaml:"base_url"`
	VoiceID      string `yaml:"voice_id"`
	ModelID      string `yaml:"model_id"`
	OutputFormat string `yaml:"output_format"`
	Language     string `yaml:"language"`
	GTTSURL      string `yaml:"gtts_url"`
	APIKey       string `yaml:"-"`
	Timeout      int    `yaml:"timeout"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Address        string `yaml:"address"`
	QueueCapacity  int    `yaml:"queue_capacity"`
	MaxUploadBytes int    `yaml:"max_upload_bytes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			WorkDir:       ".",
			InputsDir:     "audio_records/inputs",
			OutputsDir:    "audio_records/outputs",
			ImagesDir:     "images",
			NormalizedDir: "audio_records",
		},
		Output: OutputConfig{
			FileName: "final.mp3",
		},
		Transcription: TranscriptionConfig{
			Provider:      ProviderGroq,
			Model:         "whisper-large-v3",
			Language:      "en",
			BaseURL:       "https://api.groq.com/openai/v1",
			DeepgramURL:   "https://api.deepgram.com/v1/listen",
			DeepgramModel: "nova-2",
			FFmpegPath:    "ffmpeg",
		},
		Vision: VisionConfig{
			Model:        "meta-llama/llama-4-scout-17b-16e-instruct",
			BaseURL:      "https://api.groq.com/openai/v1",
			SystemPrompt: DefaultSystemPrompt,
		},
		Speech: SpeechConfig{
			Provider:     ProviderElevenLabs,
			BaseURL:      "https://api.elevenlabs.io",
			VoiceID:      "21m00Tcm4TlvDq8ikWAM",
			ModelID:      "eleven_multilingual_v2",
			OutputFormat: "mp3_44100_128",
			Language:     "en",
			GTTSURL:      "https://translate.google.com/translate_tts",
		},
		HTTP: HTTPConfig{
			Address:        ":3000",
			QueueCapacity:  8,
			MaxUploadBytes: 25 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and a few operational settings from the
// environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set("GROQ_API_KEY", &c.Transcription.APIKey)
	set("GROQ_API_KEY", &c.Vision.APIKey)
	set("DEEPGRAM_API_KEY", &c.Transcription.DeepgramAPIKey)
	set("ELEVENLABS_API_KEY", &c.Speech.APIKey)
	set("STT_PROVIDER", &c.Transcription.Provider)
	set("TTS_PROVIDER", &c.Speech.Provider)
	set("HTTP_ADDRESS", &c.HTTP.Address)
	set("LOG_LEVEL", &c.Logging.Level)
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return errors.Wrap(err, "storage config")
	}
	if err := c.Output.Validate(); err != nil {
		return errors.Wrap(err, "output config")
	}
	if err := c.Transcription.Validate(); err != nil {
		return errors.Wrap(err, "transcription config")
	}
	if err := c.Vision.Validate(); err != nil {
		return errors.Wrap(err, "vision config")
	}
	if err := c.Speech.Validate(); err != nil {
		return errors.Wrap(err, "speech config")
	}
	if err := c.HTTP.Validate(); err != nil {
		return errors.Wrap(err, "http config")
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Wrap(err, "logging config")
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	dirs := map[string]string{
		"inputs_dir":     s.InputsDir,
		"outputs_dir":    s.OutputsDir,
		"images_dir":     s.ImagesDir,
		"normalized_dir": s.NormalizedDir,
	}
	for name, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			return errors.Errorf("%s cannot be empty", name)
		}
	}
	return nil
}

func (o *OutputConfig) Validate() error {
	if !o.PerRequest && strings.TrimSpace(o.FileName) == "" {
		return errors.New("file_name cannot be empty unless per_request is set")
	}
	return nil
}

func (t *TranscriptionConfig) Validate() error {
	switch t.Provider {
	case ProviderGroq:
		if t.APIKey == "" {
			return errors.New("GROQ_API_KEY must be set for the groq provider")
		}
		if t.Model == "" {
			return errors.New("model cannot be empty")
		}
	case ProviderDeepgram:
		if t.DeepgramAPIKey == "" {
			return errors.New("DEEPGRAM_API_KEY must be set for the deepgram provider")
		}
		if t.DeepgramURL == "" {
			return errors.New("deepgram_url cannot be empty")
		}
	default:
		return errors.Errorf("provider must be one of [groq, deepgram], got '%s'", t.Provider)
	}
	if t.Language == "" {
		return errors.New("language cannot be empty")
	}
	if t.FFmpegPath == "" {
		return errors.New("ffmpeg_path cannot be empty")
	}
	if t.Timeout < 0 {
		return errors.Errorf("timeout cannot be negative, got %d", t.Timeout)
	}
	return nil
}

func (v *VisionConfig) Validate() error {
	if v.APIKey == "" {
		return errors.New("GROQ_API_KEY must be set")
	}
	if v.Model == "" {
		return errors.New("model cannot be empty")
	}
	if strings.TrimSpace(v.SystemPrompt) == "" {
		return errors.New("system_prompt cannot be empty")
	}
	if v.Timeout < 0 {
		return errors.Errorf("timeout cannot be negative, got %d", v.Timeout)
	}
	return nil
}

func (s *SpeechConfig) Validate() error {
	switch s.Provider {
	case ProviderElevenLabs:
		if s.APIKey == "" {
			return errors.New("ELEVENLABS_API_KEY must be set for the elevenlabs provider")
		}
		if s.VoiceID == "" {
			return errors.New("voice_id cannot be empty")
		}
		if s.ModelID == "" {
			return errors.New("model_id cannot be empty")
		}
	case ProviderGTTS:
		if s.GTTSURL == "" {
			return errors.New("gtts_url cannot be empty")
		}
	default:
		return errors.Errorf("provider must be one of [elevenlabs, gtts], got '%s'", s.Provider)
	}
	if s.Timeout < 0 {
		return errors.Errorf("timeout cannot be negative, got %d", s.Timeout)
	}
	return nil
}

func (h *HTTPConfig) Validate() error {
	if h.Address == "" {
		return errors.New("address cannot be empty")
	}
	if h.QueueCapacity < 1 {
		return errors.Errorf("queue_capacity must be at least 1, got %d", h.QueueCapacity)
	}
	if h.MaxUploadBytes < 1024 {
		return errors.Errorf("max_upload_bytes must be at least 1024, got %d", h.MaxUploadBytes)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return errors.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return errors.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the vision timeout as a time.Duration
func (v *VisionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(v.Timeout) * time.Second
}

// GetTimeoutDuration returns the speech timeout as a time.Duration
func (s *SpeechConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}
