// Package cmd wires the minigpt CLI: train builds and optimizes a model
// from a text corpus, generate samples from a checkpoint.
package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"minigpt/config"
	"minigpt/tokenizer"
)

const version = "0.1.0"

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "minigpt",
	Short: "a small decoder-only language model",
	Long:  `train and sample from a minimal GPT-style transformer, on CPU, from plain text`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose/debug output")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(generateCmd)
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var levelText string
	switch entry.Level {
	case logrus.InfoLevel:
		levelText = "[INF]"
	case logrus.WarnLevel:
		levelText = "[WARN]"
	case logrus.ErrorLevel:
		levelText = "[ERR]"
	case logrus.DebugLevel:
		levelText = "[DBG]"
	default:
		levelText = "[???]"
	}
	var b strings.Builder
	b.WriteString(levelText)
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.SetFormatter(&customFormatter{})
	return logger
}

func printBanner() {
	banner := color.CyanString(`
┌┬┐┬┌┐┌┬┌─┐┌─┐┌┬┐
│││││││││ ┬├─┘ │
┴ ┴┴┘└┘┴└─┘┴   ┴  v` + version)
	info := color.HiBlackString("a minimal decoder-only transformer, trained one matrix at a time")
	fmt.Println(banner)
	fmt.Println(info)
	fmt.Println()
}

// buildTokenizer resolves the configured tokenizer kind. A bpe tokenizer
// is loaded from tokenizer_path when the file exists and trained from
// the corpus when it does not.
func buildTokenizer(cfg *config.Config, logger *logrus.Logger) (tokenizer.Tokenizer, error) {
	switch cfg.Data.Tokenizer {
	case "byte":
		return tokenizer.NewByte(), nil
	case "gpt2":
		return tokenizer.NewGPT2()
	case "bpe":
		if _, err := os.Stat(cfg.Data.TokenizerPath); err == nil {
			return tokenizer.LoadBPE(cfg.Data.TokenizerPath)
		}
		if cfg.Data.Corpus == "" {
			return nil, fmt.Errorf("bpe tokenizer %s not found and no corpus to train it from", cfg.Data.TokenizerPath)
		}
		logger.Infof("training bpe tokenizer (vocab %d) from %s", cfg.Data.BPEVocab, cfg.Data.Corpus)
		return tokenizer.TrainBPE([]string{cfg.Data.Corpus}, cfg.Data.BPEVocab, cfg.Data.TokenizerPath)
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", cfg.Data.Tokenizer)
	}
}

// tokenizerByKind rebuilds the tokenizer recorded in a checkpoint.
func tokenizerByKind(kind, path string) (tokenizer.Tokenizer, error) {
	switch kind {
	case "byte":
		return tokenizer.NewByte(), nil
	case "gpt2":
		return tokenizer.NewGPT2()
	case "bpe":
		if path == "" {
			return nil, fmt.Errorf("checkpoint was trained with a bpe tokenizer, pass --tokenizer-path")
		}
		return tokenizer.LoadBPE(path)
	default:
		return nil, fmt.Errorf("checkpoint has unknown tokenizer kind %q", kind)
	}
}
