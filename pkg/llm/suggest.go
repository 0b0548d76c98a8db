package llm

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const suggestSystemPrompt = "You write short prompts for an AI music studio. " +
	"Reply with a single sentence under 40 words describing genre, mood, instruments and vocal style. " +
	"No quotes, no lists."

// PresetIdeas 无可用模型时的提示词
var PresetIdeas = []string{
	"A melodic drill track with dark piano chords and high-energy vocals.",
	"Dreamy lo-fi hip hop with vinyl crackle, soft Rhodes keys and a whispered hook.",
	"Uplifting synthwave anthem with gated drums, neon arpeggios and soaring chorus vocals.",
	"Acoustic folk ballad with fingerpicked guitar, warm cello and an intimate lead voice.",
	"Hard-hitting trap beat with 808 slides, eerie choir pads and aggressive ad-libs.",
	"Smooth neo-soul groove with jazzy chords, live bass and a silky falsetto.",
}

type SuggesterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Suggestion struct {
	Prompt string `json:"prompt"`
	Source string `json:"source"` // "llm" 或 "preset"
}

// Suggester 生成作曲提示词，模型不可用时回退到预设
type Suggester struct {
	llm     LLM
	model   string
	timeout time.Duration
	logger  *logrus.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSuggester(cfg SuggesterConfig, logger *logrus.Logger) *Suggester {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Suggester{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if cfg.APIKey != "" {
		s.llm = NewOpenAIHandler(cfg.APIKey, cfg.BaseURL, suggestSystemPrompt, logger)
	}
	return s
}

// WithLLM 替换底层模型
func (s *Suggester) WithLLM(l LLM) *Suggester {
	s.llm = l
	return s
}

func (s *Suggester) Suggest(ctx context.Context, hint string) Suggestion {
	if s.llm != nil {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		text := "Suggest a new track idea."
		if hint = strings.TrimSpace(hint); hint != "" {
			text = "Suggest a track idea inspired by: " + hint
		}
		reply, err := s.llm.Query(ctx, s.model, text)
		if err == nil {
			return Suggestion{Prompt: clip(reply, 500), Source: "llm"}
		}
		s.logger.WithError(err).Warn("prompt suggestion fell back to preset")
	}
	return Suggestion{Prompt: s.preset(), Source: "preset"}
}

func (s *Suggester) preset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PresetIdeas[s.rnd.Intn(len(PresetIdeas))]
}

func clip(s string, n int) string {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
