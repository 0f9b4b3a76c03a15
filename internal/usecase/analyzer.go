package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"lead-dashboard/internal/domain"
	"lead-dashboard/internal/integrations/openai"
)

const (
	defaultModel        = "gpt-4o-mini"
	analysisTemperature = 0.2
	summaryMaxTokens    = 300
	shortMaxTokens      = 50

	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond

	analysisErrorPrefix = "Erro ao gerar "
)

// Labels used in analyzer failure strings.
const (
	labelSummary  = "resumo"
	labelDate     = "data"
	labelName     = "nome"
	labelClassify = "classificação"
)

// Completer sends one chat completion request.
type Completer interface {
	Complete(ctx context.Context, in openai.CompletionRequest) (string, error)
}

// Analyzer derives summary, last-activity date, user name and classification
// from a conversation window. Its operations never return errors: a failed
// call yields an "Erro ao gerar <label>: <reason>" string in place of the
// field.
type Analyzer struct {
	llm         Completer
	model       string
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

type AnalyzerOption func(*Analyzer)

// WithModel overrides the chat model.
func WithModel(model string) AnalyzerOption {
	return func(a *Analyzer) {
		if m := strings.TrimSpace(model); m != "" {
			a.model = m
		}
	}
}

// WithRateLimit paces calls to at most rps requests per second. rps <= 0
// disables pacing.
func WithRateLimit(rps float64, burst int) AnalyzerOption {
	return func(a *Analyzer) {
		if rps <= 0 {
			a.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the number of attempts per call and the initial backoff,
// which doubles after every failed attempt.
func WithRetry(maxAttempts int, backoff time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if maxAttempts > 0 {
			a.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			a.backoff = backoff
		}
	}
}

// WithAnalyzerLogger sets the logger used for degraded calls.
func WithAnalyzerLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAnalyzer(llm Completer, opts ...AnalyzerOption) (*Analyzer, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	a := &Analyzer{
		llm:         llm,
		model:       defaultModel,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		logger:      slog.Default(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Summarize returns a single-paragraph summary of the last 15 window lines.
func (a *Analyzer) Summarize(ctx context.Context, window, phone, aiName, objectives string) string {
	return a.generate(ctx, labelSummary, phone, summaryPrompt(window, phone, aiName, objectives), summaryMaxTokens)
}

// LastActivityDate returns the newest "DD/MM/YY HH:MM:SS" timestamp found in
// the last 8 window lines.
func (a *Analyzer) LastActivityDate(ctx context.Context, window, phone string) string {
	return a.generate(ctx, labelDate, phone, datePrompt(window, phone), shortMaxTokens)
}

// UserName returns the name the user gave, or "Nome não fornecido".
func (a *Analyzer) UserName(ctx context.Context, window, phone, aiName string) string {
	return a.generate(ctx, labelName, phone, namePrompt(window, phone, aiName), shortMaxTokens)
}

// Classify returns one label from taxonomy.
func (a *Analyzer) Classify(ctx context.Context, window, phone, aiName, taxonomy string) string {
	return a.generate(ctx, labelClassify, phone, classifyPrompt(window, phone, aiName, taxonomy), shortMaxTokens)
}

// Analyze runs all four operations for one conversation.
func (a *Analyzer) Analyze(ctx context.Context, window, phone string, s domain.Settings) domain.AnalysisFields {
	return domain.AnalysisFields{
		Summary:      a.Summarize(ctx, window, phone, s.AssistantName, s.Objectives),
		LastActivity: a.LastActivityDate(ctx, window, phone),
		UserName:     a.UserName(ctx, window, phone, s.AssistantName),
		Status:       a.Classify(ctx, window, phone, s.AssistantName, s.Taxonomy),
	}
}

func (a *Analyzer) generate(ctx context.Context, label, phone string, msgs []domain.ChatMessage, maxTokens int) string {
	out, err := a.complete(ctx, openai.CompletionRequest{
		Model:       a.model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: analysisTemperature,
	})
	if err != nil {
		a.logger.Warn("analysis degraded", "field", label, "phone", phone, "err", err)
		return analysisError(label, err)
	}
	return out
}

func (a *Analyzer) complete(ctx context.Context, req openai.CompletionRequest) (string, error) {
	backoff := a.backoff
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter: %w", err)
			}
		}
		out, err := a.llm.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == a.maxAttempts || ctx.Err() != nil || !retryable(err) {
			break
		}
		if err := a.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
	}
	return "", lastErr
}

// retryable reports whether err is a rate limit, a server error or a
// transport failure.
func retryable(err error) bool {
	if code, ok := upstreamStatusCode(err); ok {
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func analysisError(label string, err error) string {
	return analysisErrorPrefix + label + ": " + err.Error()
}

// IsAnalysisError reports whether an analyzer output is a failure string.
func IsAnalysisError(s string) bool {
	return strings.HasPrefix(s, analysisErrorPrefix)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
