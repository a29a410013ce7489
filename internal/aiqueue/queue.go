// Package aiqueue serializes calls to the external generative model. A fixed
// pool of workers (one by default) drains a FIFO channel, so calls complete
// in submission order and the endpoint never sees more concurrency than it
// is rate-limited for.
package aiqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/paperkey/unlock-cli/internal/config"
	"github.com/paperkey/unlock-cli/internal/monitoring"
	"github.com/paperkey/unlock-cli/internal/resilience"
	"github.com/paperkey/unlock-cli/pkg/anthropic"
)

// ErrUpstreamExhausted signals that the model endpoint stayed unavailable
// through all retries (or the breaker is open). Callers fall back to the
// deterministic strategy; this is never a terminal session failure by itself.
var ErrUpstreamExhausted = eris.New("aiqueue: upstream exhausted")

// Prompt is one pending model invocation.
type Prompt struct {
	System string
	User   string
}

type result struct {
	text string
	err  error
}

type call struct {
	ctx    context.Context
	prompt Prompt
	done   chan result // buffered; a worker never blocks on an abandoned caller
}

// Queue owns the submission channel, rate limiter, retry policy and circuit
// breaker for the model endpoint. Construct one per process and pass it by
// reference to all callers.
type Queue struct {
	client    anthropic.Client
	model     string
	maxTokens int64

	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
	metrics *monitoring.Collector

	calls     chan *call
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Queue and starts its workers. metrics may be nil.
func New(cfg config.AIQueueConfig, acfg config.AnthropicConfig, client anthropic.Client, metrics *monitoring.Collector) *Queue {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.InitialBackoffSecs > 0 {
		retry.InitialBackoff = time.Duration(cfg.InitialBackoffSecs) * time.Second
	}
	if cfg.MaxBackoffSecs > 0 {
		retry.MaxBackoff = time.Duration(cfg.MaxBackoffSecs) * time.Second
	}
	if cfg.JitterFraction >= 0 {
		retry.JitterFraction = cfg.JitterFraction
	}

	q := &Queue{
		client:    client,
		model:     acfg.Model,
		maxTokens: acfg.MaxTokens,
		retry:     retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     time.Duration(cfg.BreakerResetSecs) * time.Second,
		}),
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		metrics: metrics,
		calls:   make(chan *call),
	}

	q.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues a prompt and blocks until the model responds or the call
// finally fails. Cancelling ctx abandons the call; the queue keeps serving
// other callers.
func (q *Queue) Submit(ctx context.Context, p Prompt) (string, error) {
	c := &call{ctx: ctx, prompt: p, done: make(chan result, 1)}

	select {
	case q.calls <- c:
	case <-ctx.Done():
		return "", eris.Wrap(ctx.Err(), "aiqueue: submit")
	}

	select {
	case res := <-c.done:
		return res.text, res.err
	case <-ctx.Done():
		return "", eris.Wrap(ctx.Err(), "aiqueue: abandoned")
	}
}

// Close stops accepting calls and waits for in-flight work to drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.calls)
	})
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for c := range q.calls {
		if c.ctx.Err() != nil {
			c.done <- result{err: eris.Wrap(c.ctx.Err(), "aiqueue: cancelled before start")}
			continue
		}
		text, err := q.execute(c.ctx, c.prompt)
		c.done <- result{text: text, err: err}
	}
}

func (q *Queue) execute(ctx context.Context, p Prompt) (string, error) {
	if err := q.breaker.Allow(); err != nil {
		zap.L().Warn("aiqueue: breaker open, failing fast")
		return "", eris.Wrap(ErrUpstreamExhausted, "circuit open")
	}

	if err := q.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "aiqueue: rate limit wait")
	}

	retry := q.retry
	retry.OnRetry = func(n int, err error) {
		if q.metrics != nil {
			q.metrics.AIRetry()
		}
		resilience.RetryLogger("anthropic", "create_message")(n, err)
	}

	text, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		if q.metrics != nil {
			q.metrics.AICall()
		}
		resp, callErr := q.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     q.model,
			MaxTokens: q.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(p.System),
			Messages:  []anthropic.Message{{Role: "user", Content: p.User}},
		})
		if callErr != nil {
			return "", classify(callErr)
		}
		resp.Usage.LogUsage(q.model, "password_guess")
		return resp.Text(), nil
	})

	// A cancelled caller says nothing about upstream health; only genuine
	// call outcomes move the breaker.
	if ctx.Err() == nil {
		q.breaker.Record(err)
	}
	if err != nil {
		if resilience.IsTransient(err) {
			return "", eris.Wrap(ErrUpstreamExhausted, err.Error())
		}
		// Non-retryable (4xx other than 408/429): surface directly.
		return "", err
	}
	return text, nil
}

// classify maps a model-call error onto the retryable/non-retryable split.
// Status 0 means no HTTP response at all, which is a transport-level issue
// and therefore retryable.
func classify(err error) error {
	code := anthropic.StatusCode(err)
	if code == 0 || resilience.IsRetryableStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}

// IsUpstreamExhausted reports whether err is the typed exhaustion failure.
func IsUpstreamExhausted(err error) bool {
	return errors.Is(err, ErrUpstreamExhausted)
}
