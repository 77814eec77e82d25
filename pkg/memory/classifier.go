package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devbackplane/backplane/pkg/memory/inference"
)

// IntentVocabulary is the fixed set of intents the classifier may
// produce (spec §4.C); anything else from the external path is mapped
// to "general".
var IntentVocabulary = []string{
	"status_check", "code_lookup", "troubleshooting", "documentation",
	"history", "pattern_lookup", "issue_context", "gitlab", "github",
	"calendar", "email", "files", "general",
}

func validIntent(intent string) bool {
	for _, v := range IntentVocabulary {
		if v == intent {
			return true
		}
	}
	return false
}

// IntentPattern is one entry of the always-available keyword/regex
// fallback path (spec §4.C-2).
type IntentPattern struct {
	Intent   string
	Patterns []*regexp.Regexp
	Sources  []string
	Weight   float64
}

// Classifier implements the two-strategy Intent Classifier (spec §4.C).
type Classifier struct {
	registry  *Registry
	inference inference.Client
	patterns  []IntentPattern
	log       *logrus.Logger

	trainingLogPath string
	trainingMu      sync.Mutex
}

func NewClassifier(registry *Registry, infClient inference.Client, patterns []IntentPattern, trainingLogPath string, log *logrus.Logger) *Classifier {
	if log == nil {
		log = logrus.New()
	}
	return &Classifier{
		registry:        registry,
		inference:       infClient,
		patterns:        patterns,
		log:             log,
		trainingLogPath: trainingLogPath,
	}
}

// Classify runs the external-model path first (if configured and not
// known-unavailable), falling through to the keyword path when it
// doesn't produce confidence >= 0.7 or fails outright.
func (c *Classifier) Classify(ctx context.Context, query string) IntentClassification {
	if c.inference != nil && !c.inference.Unavailable() {
		if result, ok := c.tryExternal(ctx, query); ok {
			return result
		}
	}
	return c.classifyKeyword(query)
}

func (c *Classifier) tryExternal(ctx context.Context, query string) (IntentClassification, bool) {
	resp, err := c.inference.Classify(ctx, query, IntentVocabulary)
	if err != nil {
		c.log.WithError(err).Debug("external classifier call failed, falling back")
		return IntentClassification{}, false
	}
	if resp.Confidence < 0.7 {
		return IntentClassification{}, false
	}
	intent := resp.Intent
	if !validIntent(intent) {
		intent = "general"
	}
	return IntentClassification{
		Intent:           intent,
		Confidence:       resp.Confidence,
		SourcesSuggested: c.filterSuggested(resp.Sources),
	}, true
}

func (c *Classifier) classifyKeyword(query string) IntentClassification {
	type scored struct {
		pattern IntentPattern
		score   float64
	}
	scores := map[string]*scored{}
	order := []string{}

	for _, p := range c.patterns {
		matched := false
		for _, re := range p.Patterns {
			if re.MatchString(query) {
				matched = true
				break // at most one regex match contributes per pattern
			}
		}
		if !matched {
			continue
		}
		if _, exists := scores[p.Intent]; !exists {
			scores[p.Intent] = &scored{pattern: p, score: 0}
			order = append(order, p.Intent)
		}
		scores[p.Intent].score += p.Weight
	}

	var best *scored
	for _, intent := range order {
		s := scores[intent]
		if best == nil || s.score > best.score {
			best = s
		}
	}

	if best == nil {
		return IntentClassification{
			Intent:           "general",
			Confidence:       0.5,
			SourcesSuggested: c.defaultSources(),
		}
	}

	confidence := 0.5 + best.score*0.15
	if confidence > 1.0 {
		confidence = 1.0
	}

	suggested := c.filterSuggested(best.pattern.Sources)
	if len(suggested) == 0 {
		suggested = c.defaultSources()
	}

	return IntentClassification{
		Intent:           best.pattern.Intent,
		Confidence:       confidence,
		SourcesSuggested: suggested,
	}
}

// filterSuggested drops any suggested name absent from the registry.
func (c *Classifier) filterSuggested(names []string) []string {
	if c.registry == nil {
		return names
	}
	seen := map[string]bool{}
	out := []string{}
	for _, n := range names {
		if seen[n] {
			continue
		}
		if _, ok := c.registry.Get(n); ok {
			out = append(out, n)
			seen[n] = true
		}
	}
	return out
}

// defaultSources is "all adapters with query capability", fast first
// (spec §5 default ordering).
func (c *Classifier) defaultSources() []string {
	if c.registry == nil {
		return nil
	}
	fast := c.registry.ListFast()
	slow := c.registry.ListSlow()
	out := []string{}
	for _, infoSet := range [][]*AdapterInfo{fast, slow} {
		for _, info := range infoSet {
			if info.HasCapability(CapabilityQuery) {
				out = append(out, info.Name)
			}
		}
	}
	return out
}

// trainingRecord is one line-delimited entry appended by Learn.
type trainingRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	Query           string    `json:"query"`
	CorrectIntent   string    `json:"correct_intent"`
	CorrectSources  []string  `json:"correct_sources"`
}

// Learn appends one record to the training log. No online retraining
// is required (spec §4.C learning hook).
func (c *Classifier) Learn(query, correctIntent string, correctSources []string) error {
	if c.trainingLogPath == "" {
		return nil
	}
	c.trainingMu.Lock()
	defer c.trainingMu.Unlock()

	if err := os.MkdirAll(dirOf(c.trainingLogPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(c.trainingLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	rec := trainingRecord{Timestamp: time.Now(), Query: query, CorrectIntent: correctIntent, CorrectSources: correctSources}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.Flush()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
