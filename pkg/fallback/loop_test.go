package fallback

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]openai.ChatCompletionMessage
}

func (s *stubCompleter) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, messages)
	return s.reply, s.err
}

func (s *stubCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestLoop(c Completer, weather WeatherLookup) *Loop {
	return NewLoop(c, weather, Options{
		SystemPrompt: "You are a phone assistant.",
		Language:     "en",
		MaxTurns:     5,
	}, nil)
}

func TestHandleTurnNormal(t *testing.T) {
	stub := &stubCompleter{reply: "Hello! How can I help?"}
	loop := newTestLoop(stub, nil)

	reply, done := loop.HandleTurn(context.Background(), "CA1", "Hi there")
	assert.Equal(t, "Hello! How can I help?", reply)
	assert.False(t, done)
	assert.Equal(t, 1, loop.ActiveSessions())
}

func TestHandleTurnKeepsHistory(t *testing.T) {
	stub := &stubCompleter{reply: "ok"}
	loop := newTestLoop(stub, nil)

	loop.HandleTurn(context.Background(), "CA1", "first question")
	loop.HandleTurn(context.Background(), "CA1", "second question")

	require.Len(t, stub.requests, 2)
	second := stub.requests[1]
	// system + prior user/assistant exchange + new utterance
	require.Len(t, second, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, second[0].Role)
	assert.Equal(t, "first question", second[1].Content)
	assert.Equal(t, "ok", second[2].Content)
	assert.Equal(t, "second question", second[3].Content)
}

func TestHandleTurnHistoryIsolatedPerCall(t *testing.T) {
	stub := &stubCompleter{reply: "ok"}
	loop := newTestLoop(stub, nil)

	loop.HandleTurn(context.Background(), "CA1", "from call one")
	loop.HandleTurn(context.Background(), "CA2", "from call two")

	require.Len(t, stub.requests, 2)
	// Each call starts fresh: system prompt plus its own utterance only.
	assert.Len(t, stub.requests[1], 2)
	assert.Equal(t, "from call two", stub.requests[1][1].Content)
}

func TestHandleTurnClosingPhrase(t *testing.T) {
	stub := &stubCompleter{reply: "should not be used"}
	loop := newTestLoop(stub, nil)

	loop.HandleTurn(context.Background(), "CA1", "hello")
	reply, done := loop.HandleTurn(context.Background(), "CA1", "ok, goodbye")

	assert.True(t, done)
	assert.Contains(t, reply, "Goodbye")
	assert.Equal(t, 0, loop.ActiveSessions(), "history evicted on termination")
}

func TestHandleTurnGermanClosingPhrase(t *testing.T) {
	stub := &stubCompleter{reply: "x"}
	loop := NewLoop(stub, nil, Options{Language: "de", MaxTurns: 5}, nil)

	reply, done := loop.HandleTurn(context.Background(), "CA1", "danke, tschüss")
	assert.True(t, done)
	assert.Contains(t, reply, "Wiedersehen")
}

func TestHandleTurnMaxTurns(t *testing.T) {
	stub := &stubCompleter{reply: "ok"}
	loop := newTestLoop(stub, nil)

	var done bool
	for i := 0; i < 6; i++ {
		_, done = loop.HandleTurn(context.Background(), "CA1", fmt.Sprintf("question %d", i))
	}
	assert.True(t, done, "conversation must end after the turn cap")
	assert.Equal(t, 0, loop.ActiveSessions())
}

func TestHandleTurnCompleterFailure(t *testing.T) {
	stub := &stubCompleter{err: assert.AnError}
	loop := newTestLoop(stub, nil)

	reply, done := loop.HandleTurn(context.Background(), "CA1", "hello")
	assert.False(t, done)
	assert.Contains(t, reply, "Sorry")
}

func TestHandleTurnEmptyUtterance(t *testing.T) {
	stub := &stubCompleter{reply: "x"}
	loop := newTestLoop(stub, nil)

	reply, done := loop.HandleTurn(context.Background(), "CA1", "   ")
	assert.False(t, done)
	assert.Contains(t, reply, "didn't catch")
	assert.Equal(t, 0, stub.calls())
}

func TestHandleTurnWeatherShortCircuit(t *testing.T) {
	stub := &stubCompleter{reply: "model reply"}
	weather := func(ctx context.Context, location string) (string, error) {
		assert.Equal(t, "Berlin", location)
		return "Sunny, 21 degrees in Berlin.", nil
	}
	loop := newTestLoop(stub, weather)

	reply, done := loop.HandleTurn(context.Background(), "CA1", "What's the weather in Berlin?")
	assert.False(t, done)
	assert.Equal(t, "Sunny, 21 degrees in Berlin.", reply)
	assert.Equal(t, 0, stub.calls(), "weather questions bypass the model")
}

func TestHandleTurnWeatherWithoutLocation(t *testing.T) {
	weather := func(ctx context.Context, location string) (string, error) {
		t.Fatal("weather must not be called without a location")
		return "", nil
	}
	loop := newTestLoop(&stubCompleter{}, weather)

	reply, done := loop.HandleTurn(context.Background(), "CA1", "how is the weather")
	assert.False(t, done)
	assert.Contains(t, reply, "Which city")
}

func TestHandleTurnWeatherFailure(t *testing.T) {
	weather := func(ctx context.Context, location string) (string, error) {
		return "", assert.AnError
	}
	loop := newTestLoop(&stubCompleter{}, weather)

	reply, done := loop.HandleTurn(context.Background(), "CA1", "weather in Hamburg please")
	assert.False(t, done)
	assert.Contains(t, reply, "Sorry")
}

func TestExtractLocation(t *testing.T) {
	cases := map[string]string{
		"What's the weather in Berlin?":          "Berlin",
		"weather in New York today":              "New York",
		"wie ist das Wetter in München heute":    "München",
		"tell me the weather in San Francisco.":  "San Francisco",
		"how is the weather":                     "",
		"weather please":                         "",
	}
	for utterance, want := range cases {
		assert.Equal(t, want, extractLocation(utterance), "utterance: %s", utterance)
	}
}
