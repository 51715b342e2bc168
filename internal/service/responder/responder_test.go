package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhouzirui/z-mentor/backend/internal/config"
	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
	"github.com/zhouzirui/z-mentor/backend/internal/service/ai"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/service/secret"
)

// fakeGenerator records prompts and replays a fixed answer.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   ai.Reply
	err     error
	panics  bool
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (ai.Reply, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.panics {
		panic("generator exploded")
	}
	return g.reply, g.err
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func newTestResponder(t *testing.T, store chatlogservice.Store, gen Generator) (*Responder, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return New(store, gen, config.Defaults().Responder, zap.New(core), nil), logs
}

func generatedEntries(t *testing.T, store chatlogservice.Store) []chatlog.Entry {
	t.Helper()
	entries, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	var out []chatlog.Entry
	for _, e := range entries {
		if e.IsGenerated {
			out = append(out, e)
		}
	}
	return out
}

func TestHandleSkipsWithoutCallingGenerator(t *testing.T) {
	tests := []struct {
		name  string
		entry *chatlog.Entry
	}{
		{name: "generated entry", entry: &chatlog.Entry{Text: "hello", AuthorName: chatlog.GeneratedAuthor, IsGenerated: true}},
		{name: "empty text", entry: &chatlog.Entry{Text: "", AuthorName: "u1"}},
		{name: "nil entry", entry: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := chatlogservice.NewMemoryStore()
			gen := &fakeGenerator{reply: ai.Reply{Text: "never", Outcome: ai.OutcomeOK}}
			r, _ := newTestResponder(t, store, gen)

			result, err := r.Handle(context.Background(), tt.entry)
			require.NoError(t, err)
			assert.Equal(t, ResultSkipped, result)
			assert.Zero(t, gen.calls())
			assert.Zero(t, store.Len())
		})
	}
}

func TestHandleRepliesOnEmptyHistory(t *testing.T) {
	store := chatlogservice.NewMemoryStore()
	gen := &fakeGenerator{reply: ai.Reply{Text: "【結論】小さく試す", Outcome: ai.OutcomeOK}}
	r, logs := newTestResponder(t, store, gen)

	result, err := r.Handle(context.Background(), &chatlog.Entry{ID: "e1", Text: "I want to switch careers", AuthorName: "u1"})
	require.NoError(t, err)
	assert.Equal(t, ResultReplied, result)

	require.Equal(t, 1, gen.calls())
	prompt := gen.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, ai.MentorPersona))
	assert.Contains(t, prompt, "【結論】")
	assert.True(t, strings.HasSuffix(prompt, "I want to switch careers"))

	replies := generatedEntries(t, store)
	require.Len(t, replies, 1)
	assert.Equal(t, "【結論】小さく試す", replies[0].Text)
	assert.Equal(t, chatlog.GeneratedAuthor, replies[0].AuthorName)
	assert.NotNil(t, replies[0].CreatedAt)

	assert.Equal(t, 1, logs.FilterMessage("reply written").Len())
}

func TestHandleFeedsOnlyTheNewestWindow(t *testing.T) {
	seed := make([]chatlog.Entry, 0, 40)
	for i := 0; i < 40; i++ {
		seed = append(seed, chatlog.Entry{Text: fmt.Sprintf("m%02d", i), AuthorName: "u", CreatedAt: ts(int64(1000 + i))})
	}
	store := chatlogservice.NewMemoryStore(seed...)
	gen := &fakeGenerator{reply: ai.Reply{Text: "ok", Outcome: ai.OutcomeOK}}
	r, _ := newTestResponder(t, store, gen)

	result, err := r.Handle(context.Background(), &chatlog.Entry{Text: "latest question", AuthorName: "u"})
	require.NoError(t, err)
	assert.Equal(t, ResultReplied, result)

	prompt := gen.lastPrompt()
	assert.Equal(t, 30, strings.Count(prompt, "USER(u): m"))
	assert.NotContains(t, prompt, "USER(u): m09")
	assert.Contains(t, prompt, "USER(u): m10")
	assert.Contains(t, prompt, "USER(u): m39")
	assert.Less(t, strings.Index(prompt, "m10"), strings.Index(prompt, "m39"))
}

func TestHandleGeneratorFailureWritesNothing(t *testing.T) {
	store := chatlogservice.NewMemoryStore(chatlog.Entry{Text: "earlier", AuthorName: "u"})
	gen := &fakeGenerator{reply: ai.Reply{Outcome: ai.OutcomeFailed}}
	r, _ := newTestResponder(t, store, gen)

	result, err := r.Handle(context.Background(), &chatlog.Entry{Text: "help", AuthorName: "u"})
	require.NoError(t, err)
	assert.Equal(t, ResultGeneratorFailed, result)
	assert.Empty(t, generatedEntries(t, store))
	assert.Equal(t, 1, store.Len())
}

func TestHandleWritesFallback(t *testing.T) {
	store := chatlogservice.NewMemoryStore()
	gen := &fakeGenerator{reply: ai.Reply{Text: ai.FallbackText, Outcome: ai.OutcomeFallback}}
	r, _ := newTestResponder(t, store, gen)

	result, err := r.Handle(context.Background(), &chatlog.Entry{Text: "help", AuthorName: "u"})
	require.NoError(t, err)
	assert.Equal(t, ResultFallback, result)

	replies := generatedEntries(t, store)
	require.Len(t, replies, 1)
	assert.Equal(t, ai.FallbackText, replies[0].Text)
}

func TestHandleHistoryFailureAborts(t *testing.T) {
	gen := &fakeGenerator{reply: ai.Reply{Text: "never", Outcome: ai.OutcomeOK}}
	r, logs := newTestResponder(t, brokenStore{}, gen)

	result, err := r.Handle(context.Background(), &chatlog.Entry{ID: "e9", Text: "help", AuthorName: "u"})
	require.Error(t, err)
	assert.Equal(t, ResultAborted, result)
	assert.Zero(t, gen.calls())

	aborted := logs.FilterMessage("reply pipeline aborted").All()
	require.Len(t, aborted, 1)
	assert.Equal(t, "e9", aborted[0].ContextMap()["entryID"])
}

func TestHandleGeneratorErrorAborts(t *testing.T) {
	store := chatlogservice.NewMemoryStore()
	gen := &fakeGenerator{err: errors.New("dial tcp: connection refused")}
	r, _ := newTestResponder(t, store, gen)

	result, err := r.Handle(context.Background(), &chatlog.Entry{Text: "help", AuthorName: "u"})
	require.Error(t, err)
	assert.Equal(t, ResultAborted, result)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, store.Len())
}

func TestHandleRecoversFromPanic(t *testing.T) {
	store := chatlogservice.NewMemoryStore()
	gen := &fakeGenerator{panics: true}
	r, logs := newTestResponder(t, store, gen)

	var (
		result Result
		err    error
	)
	require.NotPanics(t, func() {
		result, err = r.Handle(context.Background(), &chatlog.Entry{Text: "help", AuthorName: "u"})
	})
	require.Error(t, err)
	assert.Equal(t, ResultAborted, result)
	assert.Equal(t, 1, logs.FilterMessage("reply pipeline panicked").Len())
	assert.Zero(t, store.Len())
}

func TestHandleWriteFailureIsAbsorbed(t *testing.T) {
	gen := &fakeGenerator{reply: ai.Reply{Text: "reply", Outcome: ai.OutcomeOK}}
	store := refusingStore{Store: chatlogservice.NewMemoryStore()}
	r, logs := newTestResponder(t, store, gen)

	result, err := r.Handle(context.Background(), &chatlog.Entry{Text: "help", AuthorName: "u"})
	require.NoError(t, err)
	assert.Equal(t, ResultWriteFailed, result)
	assert.Equal(t, 1, logs.FilterMessage("failed to write reply").Len())
}

func TestHandleRecordsInvocationMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	require.NoError(t, err)

	gen := &fakeGenerator{reply: ai.Reply{Text: "reply", Outcome: ai.OutcomeOK}}
	r := New(chatlogservice.NewMemoryStore(), gen, config.Defaults().Responder, nil, metrics)
	ctx := context.Background()

	_, err = r.Handle(ctx, &chatlog.Entry{Text: "help", AuthorName: "u"})
	require.NoError(t, err)
	_, err = r.Handle(ctx, &chatlog.Entry{Text: "reply", IsGenerated: true})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "zmentor.responder.invocations" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("result"))
				counts[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"replied": 1, "skipped": 1}, counts)
}

// The cases below run the real REST client against a stub provider.

func newGeminiResponder(t *testing.T, store chatlogservice.Store, handler http.HandlerFunc) (*Responder, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	cfg := config.Defaults().Responder
	cfg.BaseURL = srv.URL
	gen := ai.NewGeminiClient(cfg, secret.Static{cfg.APIKeySecret: "k"}, logger, nil, ai.WithHTTPClient(srv.Client()))
	return New(store, gen, cfg, logger, nil), logs
}

func TestHandleWithGeminiNonSuccessStatus(t *testing.T) {
	store := chatlogservice.NewMemoryStore()
	r, logs := newGeminiResponder(t, store, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota"}}`)
	})

	result, err := r.Handle(context.Background(), &chatlog.Entry{Text: "help", AuthorName: "u"})
	require.NoError(t, err)
	assert.Equal(t, ResultGeneratorFailed, result)
	assert.Zero(t, store.Len())

	failures := logs.FilterMessage("generator call failed").All()
	require.Len(t, failures, 1)
	assert.EqualValues(t, http.StatusTooManyRequests, failures[0].ContextMap()["status"])
}

func TestHandleWithGeminiMissingTextWritesFallback(t *testing.T) {
	store := chatlogservice.NewMemoryStore()
	r, _ := newGeminiResponder(t, store, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	})

	result, err := r.Handle(context.Background(), &chatlog.Entry{Text: "help", AuthorName: "u"})
	require.NoError(t, err)
	assert.Equal(t, ResultFallback, result)

	replies := generatedEntries(t, store)
	require.Len(t, replies, 1)
	assert.Equal(t, ai.FallbackText, replies[0].Text)
}
