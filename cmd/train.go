package cmd

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"minigpt/config"
	"minigpt/dataset"
	"minigpt/model"
	"minigpt/optim"
	"minigpt/train"
)

var resume bool

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "train a model on a text corpus",
	Long:  `tokenize a plain-text corpus, build a model from the run configuration and optimize it with AdamW, checkpointing as it goes`,
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().BoolVar(&resume, "resume", false, "resume from the configured checkpoint (model shape comes from the checkpoint, not the config)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	printBanner()
	logger := newLogger()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.Data.Corpus == "" {
		return fmt.Errorf("data.corpus is required for training")
	}

	tok, err := buildTokenizer(cfg, logger)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(cfg.Data.Corpus)
	if err != nil {
		return fmt.Errorf("reading corpus: %w", err)
	}
	stream := tok.Encode(string(raw))
	logger.WithFields(logrus.Fields{
		"corpus": cfg.Data.Corpus,
		"tokens": len(stream),
		"vocab":  tok.VocabSize(),
	}).Info("corpus encoded")

	trainTokens, valTokens := dataset.Split(stream, cfg.Training.ValSplit)
	trainLd, err := dataset.NewLoader(trainTokens, cfg.Model.ContextLength, cfg.Training.BatchSize, tok.EndOfText())
	if err != nil {
		return err
	}
	var valLd *dataset.Loader
	if len(valTokens) > 0 {
		valLd, err = dataset.NewLoader(valTokens, cfg.Model.ContextLength, cfg.Training.BatchSize, tok.EndOfText())
		if err != nil {
			return err
		}
	}

	rng := rand.New(rand.NewSource(cfg.Training.Seed))

	var m *model.GPT
	startStep := 0
	var snap *model.Snapshot
	if resume {
		snap, err = model.LoadSnapshot(cfg.Training.Checkpoint)
		if err != nil {
			return fmt.Errorf("resuming: %w", err)
		}
		m, err = model.Restore(snap)
		if err != nil {
			return fmt.Errorf("resuming: %w", err)
		}
		startStep = snap.Step
	} else {
		vocab := cfg.Model.VocabSize
		if vocab == 0 {
			vocab = tok.VocabSize()
		}
		m, err = model.New(model.Config{
			VocabSize:     vocab,
			EmbeddingDim:  cfg.Model.EmbeddingDim,
			NumHeads:      cfg.Model.Heads,
			NumLayers:     cfg.Model.Layers,
			ContextLength: cfg.Model.ContextLength,
		}, rng)
		if err != nil {
			return err
		}
	}

	opt := optim.NewAdamW(m.Params(), cfg.Training.LearningRate, cfg.Training.WeightDecay)
	if resume && snap.OptM != nil {
		if err := opt.LoadState(snap.OptM, snap.OptV, snap.OptStep); err != nil {
			return fmt.Errorf("resuming optimizer: %w", err)
		}
	}

	logger.WithFields(logrus.Fields{
		"params":  paramCount(m),
		"layers":  m.Cfg.NumLayers,
		"heads":   m.Cfg.NumHeads,
		"d_model": m.Cfg.EmbeddingDim,
		"ctx":     m.Cfg.ContextLength,
		"batches": trainLd.Len(),
	}).Info("model ready")
	if startStep > 0 {
		logger.Infof("resumed from %s at step %d", cfg.Training.Checkpoint, startStep)
	}

	tr := train.New(m, opt, logger, train.Config{
		Epochs:         cfg.Training.Epochs,
		LogFreq:        cfg.Training.LogFreq,
		LR:             cfg.Training.LearningRate,
		MinLR:          cfg.Training.MinLR,
		WarmupSteps:    cfg.Training.WarmupSteps,
		WeightDecay:    cfg.Training.WeightDecay,
		GradClip:       cfg.Training.GradClip,
		Patience:       cfg.Training.Patience,
		CheckpointPath: cfg.Training.Checkpoint,
		TokenizerKind:  cfg.Data.Tokenizer,
		SamplePrompt:   cfg.Training.SamplePrompt,
		SampleTokens:   cfg.Training.SampleTokens,
	})
	tr.SetStep(startStep)

	if err := tr.Run(trainLd, valLd, tok, rng); err != nil {
		return err
	}
	logger.Infof("training complete, checkpoint at %s", cfg.Training.Checkpoint)
	return nil
}

func paramCount(m *model.GPT) int {
	n := 0
	for _, p := range m.Params() {
		r, c := p.W.Dims()
		n += r * c
	}
	return n
}
