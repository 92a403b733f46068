package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type scriptedReply struct {
	text  string
	err   error
	block bool
}

type scriptedProvider struct {
	mu       sync.Mutex
	replies  []scriptedReply
	prompts  []string
	sampling []ai.SamplingConfig
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, cfg ai.SamplingConfig) (string, error) {
	p.mu.Lock()
	index := len(p.prompts)
	p.prompts = append(p.prompts, prompt)
	p.sampling = append(p.sampling, cfg)
	p.mu.Unlock()

	if index >= len(p.replies) {
		return "", errors.New("unexpected provider call")
	}
	reply := p.replies[index]
	if reply.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply.text, reply.err
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

type fakeGradingRecordRepo struct {
	records []models.GradingRecord
	err     error
}

func (f *fakeGradingRecordRepo) Create(ctx context.Context, record *models.GradingRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeGradingRecordRepo) ListByCorrelationID(ctx context.Context, correlationID string) ([]models.GradingRecord, error) {
	var result []models.GradingRecord
	for _, record := range f.records {
		if record.CorrelationID == correlationID {
			result = append(result, record)
		}
	}
	return result, nil
}

type fakeGradeEventPublisher struct {
	events []GradeEvent
	err    error
}

func (f *fakeGradeEventPublisher) Publish(ctx context.Context, event GradeEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func newTestGradingService(provider ai.Provider, records *fakeGradingRecordRepo, events *fakeGradeEventPublisher, cfg GradingConfig) GradingService {
	var repo repository.GradingRecordRepository
	if records != nil {
		repo = records
	}
	var publisher GradeEventPublisher
	if events != nil {
		publisher = events
	}
	return NewGradingService(provider, repo, publisher, testLogger(), cfg)
}

const validReply = `{"finalScore": 85, "feedbackMarkdown": "## Correctness\nSolid."}`

func TestGradingServiceScalesFirstAttempt(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{text: validReply}}}
	svc := newTestGradingService(provider, nil, nil, GradingConfig{})

	result, outcome, err := svc.Grade(context.Background(), GradeCommand{Description: "Sum two numbers", Code: "a+b", MaxScore: 20})
	require.NoError(t, err)
	assert.Equal(t, 85.0, result.FinalScore)
	assert.Equal(t, 17, result.ScaledScore)
	assert.Equal(t, "## Correctness\nSolid.", result.FeedbackMarkdown)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, ai.StrategyDirect, outcome.Strategy)

	require.Equal(t, 1, provider.calls())
	assert.Equal(t, ai.InitialSampling, provider.sampling[0])
	assert.NotContains(t, provider.prompts[0], "could not be parsed")
}

func TestGradingServiceClampsOutOfRangeScore(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{text: `{"finalScore": 150, "feedbackMarkdown": "wow"}`}}}
	svc := newTestGradingService(provider, nil, nil, GradingConfig{})

	result, _, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: 20})
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.FinalScore)
	assert.Equal(t, 20, result.ScaledScore)
}

func TestGradingServiceExtractsFencedReply(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{text: "```json\n{\"finalScore\":60,\"feedbackMarkdown\":\"ok\"}\n```"}}}
	svc := newTestGradingService(provider, nil, nil, GradingConfig{})

	result, outcome, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: 50})
	require.NoError(t, err)
	assert.Equal(t, 30, result.ScaledScore)
	assert.Equal(t, ai.StrategyFenced, outcome.Strategy)
	assert.Equal(t, 1, provider.calls())
}

func TestGradingServiceRetriesOnceWithStrictPrompt(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "I think this deserves a solid B."},
		{text: `{"finalScore": 72, "feedbackMarkdown": "ok"}`},
	}}
	records := &fakeGradingRecordRepo{}
	svc := newTestGradingService(provider, records, nil, GradingConfig{})

	result, outcome, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: 10, CorrelationID: "corr-1"})
	require.NoError(t, err)
	assert.Equal(t, 7, result.ScaledScore)
	assert.Equal(t, 2, outcome.Attempts)

	require.Equal(t, 2, provider.calls())
	assert.Equal(t, ai.StrictSampling, provider.sampling[1])
	assert.Contains(t, provider.prompts[1], "Your previous answer could not be parsed")
	assert.Contains(t, provider.prompts[1], "Do NOT wrap the JSON in markdown code fences")
	assert.Less(t, provider.sampling[1].Temperature, provider.sampling[0].Temperature)

	require.Len(t, records.records, 1)
	assert.Equal(t, true, records.records[0].Details["retried"])
}

func TestGradingServiceFailsAfterSecondUnparseableReply(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		{text: "Looks fine to me."},
		{text: "Still just prose, sorry."},
		{text: validReply},
	}}
	events := &fakeGradeEventPublisher{}
	svc := newTestGradingService(provider, nil, events, GradingConfig{})

	_, outcome, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: 10})
	require.ErrorIs(t, err, ai.ErrInvalidFormat)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 2, provider.calls())

	require.Len(t, events.events, 1)
	assert.Equal(t, GradeEventFailed, events.events[0].Type)
	assert.Equal(t, "invalid_format", events.events[0].Outcome)
	assert.Nil(t, events.events[0].FinalScore)
}

func TestGradingServiceDoesNotRetryTerminalProviderErrors(t *testing.T) {
	tests := map[string]struct {
		reply scriptedReply
		want  error
	}{
		"upstream error": {
			reply: scriptedReply{err: &ai.UpstreamError{Provider: "scripted", StatusCode: 503, Err: errors.New("unavailable")}},
			want:  ai.ErrUpstream,
		},
		"unclassified error": {
			reply: scriptedReply{err: errors.New("connection reset")},
			want:  ai.ErrUpstream,
		},
		"missing content": {
			reply: scriptedReply{err: ai.ErrMissingContent},
			want:  ai.ErrMissingContent,
		},
		"blank text": {
			reply: scriptedReply{text: "   \n"},
			want:  ai.ErrMissingContent,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			provider := &scriptedProvider{replies: []scriptedReply{tc.reply, {text: validReply}}}
			svc := newTestGradingService(provider, nil, nil, GradingConfig{})

			_, outcome, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: 10})
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, 1, outcome.Attempts)
			assert.Equal(t, 1, provider.calls())
		})
	}
}

func TestGradingServiceTimeoutIsUpstream(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{block: true}, {text: validReply}}}
	svc := newTestGradingService(provider, nil, nil, GradingConfig{ProviderTimeout: 20 * time.Millisecond})

	_, _, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: 10})
	require.ErrorIs(t, err, ai.ErrUpstream)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, provider.calls())
}

func TestGradingServiceRejectsInvalidCommandsWithoutCalls(t *testing.T) {
	tests := map[string]struct {
		cmd  GradeCommand
		want error
	}{
		"empty code":          {cmd: GradeCommand{Code: "", MaxScore: 10}, want: ErrInvalidCode},
		"whitespace code":     {cmd: GradeCommand{Code: " \n\t", MaxScore: 10}, want: ErrInvalidCode},
		"zero max score":      {cmd: GradeCommand{Code: "x", MaxScore: 0}, want: ErrInvalidMaxScore},
		"negative max score":  {cmd: GradeCommand{Code: "x", MaxScore: -5}, want: ErrInvalidMaxScore},
		"max score too large": {cmd: GradeCommand{Code: "x", MaxScore: 1e19}, want: ErrInvalidMaxScore},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			provider := &scriptedProvider{replies: []scriptedReply{{text: validReply}}}
			records := &fakeGradingRecordRepo{}
			events := &fakeGradeEventPublisher{}
			svc := newTestGradingService(provider, records, events, GradingConfig{})

			_, _, err := svc.Grade(context.Background(), tc.cmd)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, 0, provider.calls())
			assert.Empty(t, records.records)
			assert.Empty(t, events.events)
		})
	}
}

func TestGradingServiceAcceptsMaxScoreAtCeiling(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{text: `{"finalScore": 100, "feedbackMarkdown": "perfect"}`}}}
	svc := newTestGradingService(provider, nil, nil, GradingConfig{})

	result, _, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: MaxScoreCeiling})
	require.NoError(t, err)
	assert.Equal(t, MaxScoreCeiling, result.ScaledScore)
}

func TestGradingServiceWithoutProviderIsConfigurationError(t *testing.T) {
	records := &fakeGradingRecordRepo{}
	svc := newTestGradingService(nil, records, nil, GradingConfig{})

	_, _, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: 10})
	require.ErrorIs(t, err, ai.ErrConfiguration)
	assert.Equal(t, "", svc.ProviderName())

	require.Len(t, records.records, 1)
	assert.Equal(t, "configuration_error", records.records[0].Outcome)
	assert.Equal(t, 0, records.records[0].Attempts)
}

func TestGradingServiceTruncatesLongCode(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{text: validReply}}}
	records := &fakeGradingRecordRepo{}
	svc := newTestGradingService(provider, records, nil, GradingConfig{MaxCodeChars: 10})

	code := strings.Repeat("a", 25)
	_, outcome, err := svc.Grade(context.Background(), GradeCommand{Code: code, MaxScore: 10})
	require.NoError(t, err)
	assert.True(t, outcome.Truncated)
	assert.NotContains(t, provider.prompts[0], code)
	assert.Contains(t, provider.prompts[0], "[... truncated 15 characters ...]")

	require.Len(t, records.records, 1)
	assert.True(t, records.records[0].Truncated)
	assert.Equal(t, 25, records.records[0].CodeLength)
}

func TestGradingServiceSanitizesDescription(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{text: validReply}}}
	svc := newTestGradingService(provider, nil, nil, GradingConfig{})

	_, _, err := svc.Grade(context.Background(), GradeCommand{
		Description: `<p>Implement <b>binary search</b> &amp; explain</p><script>alert(1)</script>`,
		Code:        "x",
		MaxScore:    10,
	})
	require.NoError(t, err)
	assert.Contains(t, provider.prompts[0], "Implement binary search & explain")
	assert.NotContains(t, provider.prompts[0], "<b>")
	assert.NotContains(t, provider.prompts[0], "alert(1)")
}

func TestGradingServiceRecordsAuditAndEvent(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{text: validReply}}}
	records := &fakeGradingRecordRepo{}
	events := &fakeGradeEventPublisher{}
	svc := newTestGradingService(provider, records, events, GradingConfig{})

	_, _, err := svc.Grade(context.Background(), GradeCommand{Code: "print(1)", MaxScore: 20, UserID: 7, CorrelationID: "corr-42"})
	require.NoError(t, err)

	stored, err := records.ListByCorrelationID(context.Background(), "corr-42")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	record := stored[0]
	assert.Equal(t, models.GradingOutcomeSucceeded, record.Outcome)
	assert.Equal(t, uint(7), record.UserID)
	require.NotNil(t, record.FinalScore)
	require.NotNil(t, record.ScaledScore)
	assert.Equal(t, 85.0, *record.FinalScore)
	assert.Equal(t, 17, *record.ScaledScore)
	assert.Equal(t, "scripted", record.Provider)
	assert.Equal(t, "scripted-model", record.Model)
	assert.Equal(t, string(ai.StrategyDirect), record.Strategy)
	assert.Equal(t, false, record.Details["has_description"])

	require.Len(t, events.events, 1)
	event := events.events[0]
	assert.Equal(t, GradeEventCompleted, event.Type)
	assert.Equal(t, "corr-42", event.CorrelationID)
	require.NotNil(t, event.ScaledScore)
	assert.Equal(t, 17, *event.ScaledScore)
}

func TestGradingServiceSideEffectFailuresDoNotChangeResult(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{text: validReply}}}
	records := &fakeGradingRecordRepo{err: errors.New("db down")}
	events := &fakeGradeEventPublisher{err: errors.New("broker down")}
	svc := newTestGradingService(provider, records, events, GradingConfig{})

	result, _, err := svc.Grade(context.Background(), GradeCommand{Code: "x", MaxScore: 20})
	require.NoError(t, err)
	assert.Equal(t, 17, result.ScaledScore)
}
