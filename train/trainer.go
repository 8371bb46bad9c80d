// Package train runs the optimization loop: batches in, cross-entropy
// down, checkpoints out.
package train

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"minigpt/dataset"
	"minigpt/generator"
	"minigpt/model"
	"minigpt/optim"
	"minigpt/sample"
	"minigpt/tokenizer"
	"minigpt/utils"
)

// ErrNonFinite marks a NaN or infinite loss. Training never tries to
// recover from it; rising loss is tolerated, broken numerics are not.
var ErrNonFinite = errors.New("train: non-finite loss")

type Config struct {
	Epochs      int
	LogFreq     int
	LR          float64
	MinLR       float64
	WarmupSteps int
	WeightDecay float64
	GradClip    float64
	// Patience is the number of consecutive evaluations without a new
	// best validation loss before stopping early; 0 disables.
	Patience int

	CheckpointPath string
	TokenizerKind  string

	// when SamplePrompt is set, every evaluation logs a greedy
	// continuation so training progress is visible as text
	SamplePrompt string
	SampleTokens int
}

type Trainer struct {
	model *model.GPT
	opt   *optim.AdamW
	log   *logrus.Logger
	cfg   Config
	step  int
}

func New(m *model.GPT, opt *optim.AdamW, logger *logrus.Logger, cfg Config) *Trainer {
	if cfg.LogFreq <= 0 {
		cfg.LogFreq = 50
	}
	if cfg.SampleTokens <= 0 {
		cfg.SampleTokens = 64
	}
	return &Trainer{model: m, opt: opt, log: logger, cfg: cfg}
}

// Step is the number of optimizer updates applied so far.
func (tr *Trainer) Step() int { return tr.step }

// SetStep fast-forwards the step counter when resuming from a
// checkpoint so the LR schedule and log cadence continue where the
// previous run stopped.
func (tr *Trainer) SetStep(n int) { tr.step = n }

// Run trains for the configured number of epochs. The train loader is
// reshuffled before each epoch; the validation loader keeps its order.
// Every LogFreq steps it evaluates, logs, checkpoints and (optionally)
// prints a sample. Returns once all epochs finish, early stopping
// triggers, or a loss goes non-finite.
func (tr *Trainer) Run(trainLd, valLd *dataset.Loader, tok tokenizer.Tokenizer, rng *rand.Rand) error {
	if trainLd == nil || trainLd.Len() == 0 {
		return errors.New("train: no training batches")
	}
	totalSteps := tr.cfg.Epochs * trainLd.Len()
	bestVal := math.Inf(1)
	badEvals := 0
	tokensSince := 0
	lastLog := time.Now()

	for epoch := 1; epoch <= tr.cfg.Epochs; epoch++ {
		trainLd.Shuffle(rng)
		for i := 0; i < trainLd.Len(); i++ {
			tr.step++
			tr.opt.SetLR(optim.CosineSchedule(tr.step, tr.cfg.WarmupSteps, totalSteps, tr.cfg.LR, tr.cfg.MinLR))

			loss, err := tr.trainStep(trainLd.At(i))
			if err != nil {
				return err
			}
			tokensSince += trainLd.BatchSize() * trainLd.SeqLen()

			if tr.step%tr.cfg.LogFreq != 0 {
				continue
			}

			fields := logrus.Fields{
				"epoch":      epoch,
				"step":       tr.step,
				"lr":         fmt.Sprintf("%.3g", tr.opt.LR),
				"train_loss": fmt.Sprintf("%.4f", loss),
			}
			if secs := time.Since(lastLog).Seconds(); secs > 0 {
				fields["tok_s"] = fmt.Sprintf("%.0f", float64(tokensSince)/secs)
			}
			tokensSince = 0
			lastLog = time.Now()

			haveVal := valLd != nil && valLd.Len() > 0
			valLoss := math.NaN()
			if haveVal {
				valLoss, err = tr.Evaluate(valLd)
				if err != nil {
					return err
				}
				fields["val_loss"] = fmt.Sprintf("%.4f", valLoss)
			}
			tr.log.WithFields(fields).Info("eval")

			if tr.cfg.CheckpointPath != "" {
				if err := tr.saveCheckpoint(tr.cfg.CheckpointPath); err != nil {
					return err
				}
			}
			if tr.cfg.SamplePrompt != "" && tok != nil {
				tr.logSample(tok)
			}

			if haveVal {
				if valLoss < bestVal {
					bestVal = valLoss
					badEvals = 0
					if tr.cfg.CheckpointPath != "" {
						if err := tr.saveCheckpoint(tr.cfg.CheckpointPath + ".best"); err != nil {
							return err
						}
					}
				} else {
					badEvals++
					if tr.cfg.Patience > 0 && badEvals >= tr.cfg.Patience {
						tr.log.WithFields(logrus.Fields{
							"step":     tr.step,
							"best_val": fmt.Sprintf("%.4f", bestVal),
						}).Info("early stop: validation loss stopped improving")
						return nil
					}
				}
			}
		}
	}
	return nil
}

// trainStep runs one batch: forward and backward per sequence with
// gradients accumulating across the batch, then a single clipped
// optimizer update, then a gradient reset. The batch gradient is the
// mean over all positions of all sequences.
func (tr *Trainer) trainStep(b dataset.Batch) (float64, error) {
	bs := len(b.Inputs)
	if bs == 0 {
		return 0, errors.New("train: empty batch")
	}
	invB := 1.0 / float64(bs)
	total := 0.0
	for k := range b.Inputs {
		logits, err := tr.model.Forward(b.Inputs[k], true)
		if err != nil {
			return 0, err
		}
		loss, dLogits := utils.CrossEntropy(logits, b.Targets[k])
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return loss, fmt.Errorf("%w: train loss %v at step %d", ErrNonFinite, loss, tr.step)
		}
		total += loss
		dLogits.Scale(invB, dLogits)
		if err := tr.model.Backward(dLogits); err != nil {
			return 0, err
		}
	}

	if tr.cfg.GradClip > 0 {
		optim.ClipByGlobalNorm(tr.opt.Params, tr.cfg.GradClip)
	}
	tr.opt.Step()
	tr.opt.ZeroGrad()
	return total * invB, nil
}

// Evaluate computes the mean cross-entropy over a loader without
// touching weights or gradients; the model runs in eval mode.
func (tr *Trainer) Evaluate(ld *dataset.Loader) (float64, error) {
	if ld == nil || ld.Len() == 0 {
		return 0, errors.New("train: no validation batches")
	}
	total := 0.0
	count := 0
	for i := 0; i < ld.Len(); i++ {
		b := ld.At(i)
		for k := range b.Inputs {
			logits, err := tr.model.Forward(b.Inputs[k], false)
			if err != nil {
				return 0, err
			}
			total += utils.CrossEntropyLoss(logits, b.Targets[k])
			count++
		}
	}
	mean := total / float64(count)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return mean, fmt.Errorf("%w: validation loss %v at step %d", ErrNonFinite, mean, tr.step)
	}
	return mean, nil
}

func (tr *Trainer) saveCheckpoint(path string) error {
	snap := tr.model.Snapshot()
	snap.Step = tr.step
	snap.Tokenizer = tr.cfg.TokenizerKind
	snap.OptM, snap.OptV, snap.OptStep = tr.opt.State()
	if err := model.SaveSnapshot(path, snap); err != nil {
		return fmt.Errorf("train: saving checkpoint: %w", err)
	}
	return nil
}

func (tr *Trainer) logSample(tok tokenizer.Tokenizer) {
	g := generator.New(tr.model, sample.Greedy{})
	text, err := g.GenerateText(tok, tr.cfg.SamplePrompt, tr.cfg.SampleTokens)
	if err != nil {
		tr.log.WithFields(logrus.Fields{"step": tr.step}).Warnf("sample failed: %v", err)
		return
	}
	tr.log.WithFields(logrus.Fields{"step": tr.step}).Infof("sample: %q", text)
}
