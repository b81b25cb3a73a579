// File: internal/reasoning/llm.go
package reasoning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
	"github.com/xkilldash9x/tracepoint/internal/llmutil"
)

const explainSystemPrompt = `You explain administrative-friction risk scores to student-welfare staff.
Write two sentences at most. Be factual and non-judgemental. Never speculate about
the student's character, background or intentions. Do not invent numbers.`

const judgeSystemPrompt = `You are the ethics guardian of a student-support triage system.
Review the assessments and decide whether automated handling must be vetoed.
Respond with a single JSON object and nothing else:
{"stigmatization_risk": bool, "insufficient_evidence": bool, "needs_human_empathy": bool,
 "reasons": [string], "recommendation": "NO_ACTION"|"WATCH"|"SOFT_OUTREACH"|"ESCALATE_TO_HUMAN",
 "assessment": string}`

// LLM is a Reasoner backed by a language model. Calls are rate limited and
// explanations are cached; any backend failure falls back to Template.
type LLM struct {
	client   schemas.LLMClient
	fallback *Template
	limiter  *rate.Limiter
	cache    *cache.Cache
	timeout  time.Duration
	logger   *zap.Logger
}

// NewLLM builds the model-backed reasoner.
func NewLLM(client schemas.LLMClient, cfg config.ReasoningConfig, logger *zap.Logger) (*LLM, error) {
	if client == nil {
		return nil, fmt.Errorf("llm reasoner requires a non-nil LLM client")
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &LLM{
		client:   client,
		fallback: NewTemplate(),
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		cache:    cache.New(cfg.CacheTTL, cfg.CacheCleanup),
		timeout:  cfg.Timeout,
		logger:   logger.Named("reasoning.llm"),
	}, nil
}

func (l *LLM) Name() string { return "llm" }

// Explain asks the fast tier for an explanation.
func (l *LLM) Explain(ctx context.Context, req ExplainRequest) string {
	if req.Features.Count() == 0 {
		return l.fallback.Explain(ctx, req)
	}
	prompt := explainPrompt(req)
	key := cacheKey("explain", prompt)
	if cached, ok := l.cache.Get(key); ok {
		return cached.(string)
	}

	text, err := l.generate(ctx, schemas.GenerationRequest{
		SystemPrompt: explainSystemPrompt,
		UserPrompt:   prompt,
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.2},
	})
	text = llmutil.CleanText(text)
	if err != nil || text == "" {
		l.logger.Warn("Explanation backend unavailable, using template.", zap.String("agent", req.Agent), zap.Error(err))
		return l.fallback.Explain(ctx, req)
	}
	l.cache.SetDefault(key, text)
	return text
}

// Judge asks the powerful tier for a structured ethics judgement.
func (l *LLM) Judge(ctx context.Context, review EthicsReview) (Judgement, error) {
	raw, err := l.generate(ctx, schemas.GenerationRequest{
		SystemPrompt: judgeSystemPrompt,
		UserPrompt:   review.Prompt,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0, ForceJSONFormat: true},
	})
	if err != nil {
		return Judgement{}, fmt.Errorf("ethics review generation failed: %w", err)
	}
	parsed, err := llmutil.ParseJSONResponse[Judgement](raw)
	if err != nil {
		return Judgement{}, fmt.Errorf("ethics review response unusable: %w", err)
	}
	j := *parsed
	j.Source = l.Name()
	return j, nil
}

func (l *LLM) generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	return l.client.Generate(ctx, req)
}

func explainPrompt(req ExplainRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\n", req.Label)
	fmt.Fprintf(&b, "Assessment kind: %s\n", req.Kind)
	fmt.Fprintf(&b, "Score: %.3f\nConfidence: %.3f\n", req.Value, req.Confidence)
	fmt.Fprintf(&b, "Events: %d (mean severity %.2f, max %.2f, %d in last 30 days)\n",
		int(req.Features.Count()), req.Features.MeanSeverity(), req.Features.MaxSeverity(), req.Recent)
	fmt.Fprintf(&b, "Average event age: %.0f days; oldest: %.0f days\n",
		req.Features.MeanDaysSince(), req.Features.MaxDaysSince())
	if len(req.TopTypes) > 0 {
		types := make([]string, len(req.TopTypes))
		for i, t := range req.TopTypes {
			types[i] = string(t)
		}
		fmt.Fprintf(&b, "Main issue types: %s\n", strings.Join(types, ", "))
	}
	b.WriteString("Explain this score for a welfare officer.")
	return b.String()
}

func cacheKey(kind, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return kind + ":" + hex.EncodeToString(sum[:])
}
