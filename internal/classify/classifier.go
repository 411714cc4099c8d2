package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/docparse-worker/internal/errors"
	"github.com/adverant/nexus/docparse-worker/internal/logging"
)

// Config holds classifier configuration
type Config struct {
	MaxAttempts  int           // tries per batch, transport and parse failures alike
	PagesPerCall int           // pages sent in one completion
	Timeout      time.Duration // bound on a single completion
}

// Classifier drives a Completer over the pages of a document.
type Classifier struct {
	completer Completer
	config    Config
	logger    *logging.Logger
}

// NewClassifier creates a new classifier
func NewClassifier(completer Completer, cfg *Config) *Classifier {
	c := Config{MaxAttempts: 3, PagesPerCall: 4, Timeout: 90 * time.Second}
	if cfg != nil {
		if cfg.MaxAttempts > 0 {
			c.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.PagesPerCall > 0 {
			c.PagesPerCall = cfg.PagesPerCall
		}
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
	}
	return &Classifier{completer: completer, config: c, logger: logging.NewLogger("Classifier")}
}

// Name returns the name of the underlying completer.
func (c *Classifier) Name() string { return c.completer.Name() }

// Classify returns the groups of every page, aligned with pages. Pages with
// no items get an empty group list without a model call. Any batch that
// still fails after MaxAttempts fails the whole call, and so does a page key
// used twice.
func (c *Classifier) Classify(ctx context.Context, pages []Page) ([][]Group, error) {
	out := make([][]Group, len(pages))
	pos := make(map[int]int, len(pages))

	var pending []Page
	for i, p := range pages {
		out[i] = []Group{}
		if prev, dup := pos[p.Page]; dup {
			return nil, errors.NewIndexIntegrityError("", p.Page, i, len(pages),
				fmt.Sprintf("page key already used by page position %d", prev))
		}
		pos[p.Page] = i
		if len(p.Items) == 0 {
			continue
		}
		pending = append(pending, p)
	}

	for start := 0; start < len(pending); start += c.config.PagesPerCall {
		end := start + c.config.PagesPerCall
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		groups, err := c.classifyBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for page, g := range groups {
			out[pos[page]] = g
		}
	}
	return out, nil
}

func (c *Classifier) classifyBatch(ctx context.Context, batch []Page) (map[int][]Group, error) {
	numbers := make([]int, len(batch))
	for i, p := range batch {
		numbers[i] = p.Page
	}

	var (
		feedback  string
		lastErr   error
		parseFail bool
	)
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		prompt, err := buildPrompt(batch, feedback)
		if err != nil {
			return nil, errors.NewClassifierError("", c.completer.Name(), attempt, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		raw, err := c.completer.Complete(callCtx, systemPrompt, prompt)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.NewClassifierError("", c.completer.Name(), attempt, ctx.Err())
			}
			c.logger.Warn("Classifier call failed", "pages", numbers, "attempt", attempt, "error", err)
			lastErr, parseFail = err, false
			continue
		}

		groups, err := parseResponse(raw, batch)
		if err == nil {
			return groups, nil
		}
		c.logger.Warn("Classifier answer rejected", "pages", numbers, "attempt", attempt, "error", err)
		lastErr, parseFail = err, true
		feedback = err.Error()
	}

	if parseFail {
		return nil, errors.NewClassificationParseError("", numbers, c.config.MaxAttempts, lastErr)
	}
	return nil, errors.NewClassifierError("", c.completer.Name(), c.config.MaxAttempts, lastErr)
}
