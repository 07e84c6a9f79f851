package fallback

import (
	"context"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// WeatherLookup resolves a spoken weather question for a location.
type WeatherLookup func(ctx context.Context, location string) (string, error)

// closingPhrases end the conversation when the caller says any of them.
var closingPhrases = []string{
	"goodbye", "bye bye", "that's all", "thank you, goodbye",
	"tschüss", "auf wiedersehen", "das war's", "das wars", "danke, tschüss",
	"ciao", "arrivederci",
	"au revoir",
}

// Options configures a conversation loop.
type Options struct {
	SystemPrompt string
	Language     string
	MaxTurns     int
}

// Loop runs turn-based conversations for calls that did not get a realtime
// session. Each webhook turn carries one caller utterance; the loop keeps the
// per-call history and produces the spoken reply.
type Loop struct {
	completer Completer
	weather   WeatherLookup
	opts      Options
	logger    *logrus.Logger

	mu        sync.Mutex
	histories map[string][]openai.ChatCompletionMessage
	turns     map[string]int
}

// NewLoop creates a conversation loop. weather may be nil to disable the
// keyword short-circuit.
func NewLoop(completer Completer, weather WeatherLookup, opts Options, logger *logrus.Logger) *Loop {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 20
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		completer: completer,
		weather:   weather,
		opts:      opts,
		logger:    logger,
		histories: make(map[string][]openai.ChatCompletionMessage),
		turns:     make(map[string]int),
	}
}

// HandleTurn processes one caller utterance and returns the reply plus
// whether the conversation is over. Failures never surface to the caller as
// errors, they hear an apology and the call continues.
func (l *Loop) HandleTurn(ctx context.Context, callID, utterance string) (string, bool) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return l.reprompt(), false
	}

	if l.isClosing(utterance) {
		l.logger.WithField("callID", callID).Info("caller said goodbye, ending conversation")
		l.EndSession(callID)
		return l.farewell(), true
	}

	l.mu.Lock()
	l.turns[callID]++
	turn := l.turns[callID]
	l.mu.Unlock()

	if turn > l.opts.MaxTurns {
		l.logger.WithFields(logrus.Fields{
			"callID": callID,
			"turns":  turn,
		}).Info("turn cap reached, ending conversation")
		l.EndSession(callID)
		return l.farewell(), true
	}

	// Weather questions bypass the model entirely.
	if l.weather != nil && l.isWeatherQuestion(utterance) {
		reply := l.answerWeather(ctx, callID, utterance)
		l.appendExchange(callID, utterance, reply)
		return reply, false
	}

	messages := l.messagesFor(callID, utterance)
	reply, err := l.completer.Complete(ctx, messages)
	if err != nil {
		l.logger.WithError(err).WithField("callID", callID).Error("completion failed")
		return l.apology(), false
	}

	l.appendExchange(callID, utterance, reply)
	return reply, false
}

// EndSession drops the conversation state for a call.
func (l *Loop) EndSession(callID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.histories, callID)
	delete(l.turns, callID)
}

// ActiveSessions reports how many conversations hold state.
func (l *Loop) ActiveSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.histories)
}

// messagesFor builds the completion request: system prompt, prior history,
// then the new utterance.
func (l *Loop) messagesFor(callID, utterance string) []openai.ChatCompletionMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.histories[callID]
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: l.opts.SystemPrompt,
	})
	messages = append(messages, history...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: utterance,
	})
	return messages
}

func (l *Loop) appendExchange(callID, utterance, reply string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.histories[callID] = append(l.histories[callID],
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: utterance},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)
}

func (l *Loop) isClosing(utterance string) bool {
	lowered := strings.ToLower(utterance)
	for _, phrase := range closingPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

func (l *Loop) isWeatherQuestion(utterance string) bool {
	lowered := strings.ToLower(utterance)
	return strings.Contains(lowered, "weather") || strings.Contains(lowered, "wetter")
}

// answerWeather extracts the location ("weather in <city>") and asks the
// weather service. Without a recognizable location the caller is asked for
// one.
func (l *Loop) answerWeather(ctx context.Context, callID, utterance string) string {
	location := extractLocation(utterance)
	if location == "" {
		if l.opts.Language == "de" {
			return "Für welche Stadt möchten Sie das Wetter wissen?"
		}
		return "Which city would you like the weather for?"
	}

	reply, err := l.weather(ctx, location)
	if err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"callID":   callID,
			"location": location,
		}).Error("weather lookup failed")
		return l.apology()
	}
	return reply
}

// extractLocation pulls the city out of phrases like "what's the weather in
// Berlin" or "wie ist das Wetter in München heute".
func extractLocation(utterance string) string {
	lowered := strings.ToLower(utterance)
	idx := strings.LastIndex(lowered, " in ")
	if idx < 0 {
		return ""
	}
	location := strings.TrimSpace(utterance[idx+4:])
	location = strings.TrimRight(location, ".,!?")
	for _, suffix := range []string{" today", " right now", " heute", " gerade", " jetzt"} {
		if strings.HasSuffix(strings.ToLower(location), suffix) {
			location = strings.TrimSpace(location[:len(location)-len(suffix)])
		}
	}
	return location
}

func (l *Loop) apology() string {
	if l.opts.Language == "de" {
		return "Entschuldigung, da ist gerade etwas schiefgelaufen. Können Sie das bitte wiederholen?"
	}
	return "Sorry, something went wrong on my end. Could you please repeat that?"
}

func (l *Loop) reprompt() string {
	if l.opts.Language == "de" {
		return "Entschuldigung, das habe ich nicht verstanden. Können Sie das bitte wiederholen?"
	}
	return "Sorry, I didn't catch that. Could you please repeat it?"
}

func (l *Loop) farewell() string {
	if l.opts.Language == "de" {
		return "Vielen Dank für Ihren Anruf. Auf Wiedersehen!"
	}
	return "Thank you for calling. Goodbye!"
}
