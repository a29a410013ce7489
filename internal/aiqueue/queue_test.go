package aiqueue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperkey/unlock-cli/internal/config"
	"github.com/paperkey/unlock-cli/internal/monitoring"
	"github.com/paperkey/unlock-cli/pkg/anthropic"
)

// apiError builds a populated SDK error; Error() formats from the request
// and response, so both must be non-nil.
func apiError(status int) *sdk.Error {
	return &sdk.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

// fakeClient scripts CreateMessage responses in order.
type fakeClient struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     []string
	delay     time.Duration
}

type fakeResponse struct {
	text string
	err  error
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Messages[0].Content)
	if len(f.responses) == 0 {
		return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: "default"}}}, nil
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: r.text}}}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testQueueConfig() config.AIQueueConfig {
	return config.AIQueueConfig{
		Concurrency:       1,
		MaxRetries:        3,
		RequestsPerMinute: 60000,
		BreakerThreshold:  100,
		BreakerResetSecs:  60,
	}
}

func newTestQueue(t *testing.T, cfg config.AIQueueConfig, client anthropic.Client, metrics *monitoring.Collector) *Queue {
	t.Helper()
	q := New(cfg, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 512}, client, metrics)
	// Shrink backoff so retry tests run in milliseconds.
	q.retry.InitialBackoff = 2 * time.Millisecond
	q.retry.MaxBackoff = 10 * time.Millisecond
	q.retry.JitterFraction = 0
	t.Cleanup(q.Close)
	return q
}

func TestSubmit_Success(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "guesses"}}}
	q := newTestQueue(t, testQueueConfig(), client, nil)

	text, err := q.Submit(context.Background(), Prompt{System: "sys", User: "user"})
	require.NoError(t, err)
	assert.Equal(t, "guesses", text)
	assert.Equal(t, 1, client.callCount())
}

func TestSubmit_RetriesOn429ThenSucceeds(t *testing.T) {
	rateLimited := apiError(429)
	client := &fakeClient{responses: []fakeResponse{
		{err: rateLimited},
		{err: rateLimited},
		{text: "third time"},
	}}
	metrics := monitoring.NewCollector()
	q := newTestQueue(t, testQueueConfig(), client, metrics)

	start := time.Now()
	text, err := q.Submit(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "third time", text)
	assert.Equal(t, 3, client.callCount())

	snap := metrics.Snapshot()
	assert.EqualValues(t, 3, snap.AICalls)
	assert.EqualValues(t, 2, snap.AIRetries)
	// Two backoff waits happened before the successful result.
	assert.GreaterOrEqual(t, time.Since(start), 2*2*time.Millisecond)
}

func TestSubmit_NonRetryableFailsImmediately(t *testing.T) {
	badRequest := apiError(400)
	client := &fakeClient{responses: []fakeResponse{{err: badRequest}}}
	q := newTestQueue(t, testQueueConfig(), client, nil)

	_, err := q.Submit(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.False(t, IsUpstreamExhausted(err))
	assert.Equal(t, 1, client.callCount())
}

func TestSubmit_ExhaustedRetriesReturnsTypedError(t *testing.T) {
	overloaded := apiError(529)
	client := &fakeClient{responses: []fakeResponse{
		{err: overloaded}, {err: overloaded}, {err: overloaded}, {err: overloaded},
	}}
	cfg := testQueueConfig()
	cfg.MaxRetries = 3
	q := newTestQueue(t, cfg, client, nil)

	_, err := q.Submit(context.Background(), Prompt{User: "u"})
	require.Error(t, err)
	assert.True(t, IsUpstreamExhausted(err))
	assert.Equal(t, 4, client.callCount())
}

func TestSubmit_TransportErrorIsRetryable(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: errors.New("dial tcp: connection reset by peer")},
		{text: "recovered"},
	}}
	q := newTestQueue(t, testQueueConfig(), client, nil)

	text, err := q.Submit(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
}

func TestSubmit_BreakerFailsFastAfterThreshold(t *testing.T) {
	badRequest := apiError(403)
	client := &fakeClient{responses: []fakeResponse{{err: badRequest}}}
	cfg := testQueueConfig()
	cfg.BreakerThreshold = 1
	q := newTestQueue(t, cfg, client, nil)

	_, err := q.Submit(context.Background(), Prompt{User: "first"})
	require.Error(t, err)

	_, err = q.Submit(context.Background(), Prompt{User: "second"})
	require.Error(t, err)
	assert.True(t, IsUpstreamExhausted(err))
	// The second call never reached the client.
	assert.Equal(t, 1, client.callCount())
}

func TestSubmit_CancelledCallDoesNotTripBreaker(t *testing.T) {
	client := &fakeClient{delay: 30 * time.Millisecond}
	cfg := testQueueConfig()
	cfg.BreakerThreshold = 1
	q := newTestQueue(t, cfg, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Submit(ctx, Prompt{User: "cancelled"})
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.Error(t, <-errCh)

	// The failure was caller-side; the breaker stays closed and the next
	// caller still reaches the client.
	text, err := q.Submit(context.Background(), Prompt{User: "after"})
	require.NoError(t, err)
	assert.Equal(t, "default", text)
	assert.Equal(t, 1, client.callCount())
}

func TestSubmit_FIFOOrdering(t *testing.T) {
	client := &fakeClient{delay: 5 * time.Millisecond}
	q := newTestQueue(t, testQueueConfig(), client, nil)

	var wg sync.WaitGroup
	prompts := []string{"first", "second", "third"}
	for _, p := range prompts {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := q.Submit(context.Background(), Prompt{User: user})
			assert.NoError(t, err)
		}(p)
		time.Sleep(20 * time.Millisecond) // stagger submission order
	}
	wg.Wait()

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, prompts, client.calls)
}

func TestSubmit_AbandonOnCancelKeepsServingOthers(t *testing.T) {
	client := &fakeClient{delay: 30 * time.Millisecond}
	q := newTestQueue(t, testQueueConfig(), client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Submit(ctx, Prompt{User: "abandoned"})
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// Queue is still healthy for the next caller.
	text, err := q.Submit(context.Background(), Prompt{User: "next"})
	require.NoError(t, err)
	assert.Equal(t, "default", text)
}
