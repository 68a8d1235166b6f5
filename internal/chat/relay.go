// Package chat relays shopper questions to a conversational model that is
// restricted to health topics.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Instruction is installed once at the start of every conversation.
const Instruction = "You are a chat assistant in a pharmacy website. Only answer questions related to medicines and health. " +
	"If the user asks about anything else, politely say that you can only help with medicines and health related questions. " +
	"Do not give a diagnosis; recommend consulting a doctor or pharmacist for serious symptoms."

const (
	DefaultMaxTurns  = 50
	DefaultIdleTTL   = 30 * time.Minute
	MaxPromptLength  = 4000
	defaultSessionID = "default"
)

var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrPromptTooLong = errors.New("prompt is too long")
)

// Session is one ongoing conversation with the model.
type Session interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// Model opens conversations that start with the given instruction.
type Model interface {
	NewSession(instruction string) Session
}

type conversation struct {
	mu       sync.Mutex
	session  Session
	turns    int
	lastUsed time.Time
}

// Relay keeps one conversation per session key. A conversation is
// restarted, with the instruction sent again, after MaxTurns exchanges.
type Relay struct {
	model    Model
	maxTurns int
	idleTTL  time.Duration
	now      func() time.Time

	mu            sync.Mutex
	conversations map[string]*conversation
}

func NewRelay(model Model, maxTurns int, idleTTL time.Duration) *Relay {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Relay{
		model:         model,
		maxTurns:      maxTurns,
		idleTTL:       idleTTL,
		now:           time.Now,
		conversations: make(map[string]*conversation),
	}
}

type sessionKey struct{}

// WithSession scopes Ask calls made with ctx to the conversation named key.
func WithSession(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKey{}, key)
}

func sessionFrom(ctx context.Context) string {
	if k, ok := ctx.Value(sessionKey{}).(string); ok && k != "" {
		return k
	}
	return defaultSessionID
}

// Ask sends prompt in the conversation selected by ctx and returns the reply.
func (r *Relay) Ask(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return "", ErrPromptTooLong
	}

	c := r.conversation(sessionFrom(ctx))
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.turns >= r.maxTurns {
		c.session = r.model.NewSession(Instruction)
		c.turns = 0
	}
	reply, err := c.session.Send(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.turns++
	return reply, nil
}

// Forget drops the conversation for key.
func (r *Relay) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, key)
}

func (r *Relay) conversation(key string) *conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for k, c := range r.conversations {
		if k != key && now.Sub(c.lastUsed) > r.idleTTL {
			delete(r.conversations, k)
		}
	}

	c, ok := r.conversations[key]
	if !ok {
		c = &conversation{}
		r.conversations[key] = c
	}
	c.lastUsed = now
	return c
}
