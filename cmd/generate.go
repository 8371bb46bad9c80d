package cmd

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"minigpt/generator"
	"minigpt/model"
	"minigpt/sample"
)

var (
	genCheckpoint    string
	genTokenizerPath string
	genPrompt        string
	genMaxNew        int
	genStrategy      string
	genTemperature   float64
	genTopK          int
	genSeed          int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "sample text from a trained checkpoint",
	Long:  `load a checkpoint and continue a prompt; with no --prompt it reads prompts interactively from stdin`,
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genCheckpoint, "checkpoint", "", "checkpoint file to load")
	generateCmd.Flags().StringVar(&genTokenizerPath, "tokenizer-path", "", "bpe tokenizer file (only for checkpoints trained with one)")
	generateCmd.Flags().StringVar(&genPrompt, "prompt", "", "prompt to continue; empty starts interactive mode")
	generateCmd.Flags().IntVar(&genMaxNew, "max-new-tokens", 100, "number of tokens to generate")
	generateCmd.Flags().StringVar(&genStrategy, "strategy", "greedy", "sampling strategy: greedy, temperature or topk")
	generateCmd.Flags().Float64Var(&genTemperature, "temperature", 1.0, "softmax temperature for temperature/topk strategies")
	generateCmd.Flags().IntVar(&genTopK, "top-k", 40, "candidate pool size for the topk strategy")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 42, "sampling rng seed")
	generateCmd.MarkFlagRequired("checkpoint")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	snap, err := model.LoadSnapshot(genCheckpoint)
	if err != nil {
		return err
	}
	m, err := model.Restore(snap)
	if err != nil {
		return err
	}
	tok, err := tokenizerByKind(snap.Tokenizer, genTokenizerPath)
	if err != nil {
		return err
	}
	smp, err := buildSampler(genStrategy, genTemperature, genTopK, rand.New(rand.NewSource(genSeed)))
	if err != nil {
		return err
	}
	g := generator.New(m, smp)

	if genPrompt != "" {
		text, err := g.GenerateText(tok, genPrompt, genMaxNew)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	printBanner()
	fmt.Println("interactive mode, type 'exit' to quit")
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		text, err := g.GenerateText(tok, line, genMaxNew)
		if err != nil {
			color.Red("generate: %v", err)
			continue
		}
		fmt.Println(text)
	}
}

func buildSampler(strategy string, temperature float64, topK int, rng *rand.Rand) (sample.Sampler, error) {
	switch strategy {
	case "greedy":
		return sample.Greedy{}, nil
	case "temperature":
		return sample.Temperature{T: temperature, Rng: rng}, nil
	case "topk":
		return sample.TopK{K: topK, T: temperature, Rng: rng}, nil
	default:
		return nil, fmt.Errorf("unknown sampling strategy %q, must be greedy, temperature or topk", strategy)
	}
}
