// Package config loads the YAML run configuration shared by the train
// and generate commands.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Model    Model    `yaml:"model"`
	Training Training `yaml:"training"`
	Sampling Sampling `yaml:"sampling"`
	Data     Data     `yaml:"data"`
}

type Model struct {
	// VocabSize 0 means "derive from the tokenizer"
	VocabSize     int `yaml:"vocab_size"`
	EmbeddingDim  int `yaml:"embedding_dim"`
	Heads         int `yaml:"heads"`
	Layers        int `yaml:"layers"`
	ContextLength int `yaml:"context_length"`
}

type Training struct {
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	MinLR        float64 `yaml:"min_lr"`
	WarmupSteps  int     `yaml:"warmup_steps"`
	WeightDecay  float64 `yaml:"weight_decay"`
	GradClip     float64 `yaml:"grad_clip"`
	LogFreq      int     `yaml:"log_freq"`
	Patience     int     `yaml:"patience"`
	ValSplit     float64 `yaml:"val_split"`
	Checkpoint   string  `yaml:"checkpoint"`
	SamplePrompt string  `yaml:"sample_prompt"`
	SampleTokens int     `yaml:"sample_tokens"`
	Seed         int64   `yaml:"seed"`
}

type Sampling struct {
	Strategy    string  `yaml:"strategy"`
	Temperature float64 `yaml:"temperature"`
	TopK        int     `yaml:"top_k"`
}

type Data struct {
	Corpus        string `yaml:"corpus"`
	Tokenizer     string `yaml:"tokenizer"`
	TokenizerPath string `yaml:"tokenizer_path"`
	BPEVocab      int    `yaml:"bpe_vocab"`
}

// Default returns the configuration used when a field (or the whole
// file) is absent.
func Default() *Config {
	return &Config{
		Model: Model{
			EmbeddingDim:  64,
			Heads:         4,
			Layers:        2,
			ContextLength: 64,
		},
		Training: Training{
			BatchSize:    16,
			Epochs:       10,
			LearningRate: 3e-4,
			MinLR:        3e-5,
			WarmupSteps:  100,
			WeightDecay:  0.01,
			GradClip:     1.0,
			LogFreq:      50,
			ValSplit:     0.1,
			Checkpoint:   "checkpoints/minigpt.gob",
			SampleTokens: 64,
			Seed:         1337,
		},
		Sampling: Sampling{
			Strategy:    "greedy",
			Temperature: 1.0,
			TopK:        40,
		},
		Data: Data{
			Tokenizer: "byte",
			BPEVocab:  1000,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Model.VocabSize < 0 {
		return fmt.Errorf("model.vocab_size must be >= 0 (0 derives it from the tokenizer)")
	}
	if c.Model.EmbeddingDim <= 0 || c.Model.Heads <= 0 || c.Model.Layers <= 0 || c.Model.ContextLength <= 0 {
		return fmt.Errorf("model dimensions must be positive")
	}
	if c.Model.EmbeddingDim%c.Model.Heads != 0 {
		return fmt.Errorf("model.embedding_dim %d must be divisible by model.heads %d",
			c.Model.EmbeddingDim, c.Model.Heads)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("training.batch_size must be greater than 0")
	}
	if c.Training.Epochs <= 0 {
		return fmt.Errorf("training.epochs must be greater than 0")
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be greater than 0")
	}
	if c.Training.MinLR < 0 || c.Training.MinLR > c.Training.LearningRate {
		return fmt.Errorf("training.min_lr must be in [0, learning_rate]")
	}
	if c.Training.WarmupSteps < 0 {
		return fmt.Errorf("training.warmup_steps must be >= 0")
	}
	if c.Training.WeightDecay < 0 {
		return fmt.Errorf("training.weight_decay must be >= 0")
	}
	if c.Training.GradClip < 0 {
		return fmt.Errorf("training.grad_clip must be >= 0 (0 disables clipping)")
	}
	if c.Training.LogFreq <= 0 {
		return fmt.Errorf("training.log_freq must be greater than 0")
	}
	if c.Training.Patience < 0 {
		return fmt.Errorf("training.patience must be >= 0 (0 disables early stopping)")
	}
	if c.Training.ValSplit < 0 || c.Training.ValSplit >= 1 {
		return fmt.Errorf("training.val_split must be in [0, 1)")
	}
	if c.Training.SampleTokens < 0 {
		return fmt.Errorf("training.sample_tokens must be >= 0")
	}
	switch c.Sampling.Strategy {
	case "greedy", "temperature", "topk":
	default:
		return fmt.Errorf("sampling.strategy %q, must be greedy, temperature or topk", c.Sampling.Strategy)
	}
	if c.Sampling.Strategy == "temperature" && c.Sampling.Temperature <= 0 {
		return fmt.Errorf("sampling.temperature must be greater than 0")
	}
	if c.Sampling.Strategy == "topk" && c.Sampling.TopK <= 0 {
		return fmt.Errorf("sampling.top_k must be greater than 0")
	}
	switch c.Data.Tokenizer {
	case "byte", "gpt2", "bpe":
	default:
		return fmt.Errorf("data.tokenizer %q, must be byte, gpt2 or bpe", c.Data.Tokenizer)
	}
	if c.Data.Tokenizer == "bpe" && c.Data.TokenizerPath == "" {
		return fmt.Errorf("data.tokenizer_path is required for the bpe tokenizer")
	}
	return nil
}
