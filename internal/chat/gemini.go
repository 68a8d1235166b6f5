package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/fjod/go_pharmacy/internal/config"
)

var ErrNoReply = errors.New("model returned no text")

// Gemini opens chat sessions on a Gemini model. The API key is resolved
// when the first message is sent.
type Gemini struct {
	apiKey    config.SecretFunc
	modelName string

	mu     sync.Mutex
	client *genai.Client
}

func NewGemini(apiKey config.SecretFunc, modelName string) *Gemini {
	return &Gemini{apiKey: apiKey, modelName: modelName}
}

func (g *Gemini) NewSession(instruction string) Session {
	return &geminiSession{gemini: g, instruction: instruction}
}

func (g *Gemini) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) model(ctx context.Context, instruction string) (*genai.GenerativeModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		key, err := g.apiKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("chat model is not configured: %w", err)
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		g.client = client
	}

	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(1)
	m.SetTopP(0.95)
	m.SetTopK(64)
	m.SetMaxOutputTokens(8192)
	m.ResponseMIMEType = "text/plain"
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(instruction)}}
	return m, nil
}

type geminiSession struct {
	gemini      *Gemini
	instruction string
	chat        *genai.ChatSession
}

func (s *geminiSession) Send(ctx context.Context, prompt string) (string, error) {
	if s.chat == nil {
		m, err := s.gemini.model(ctx, s.instruction)
		if err != nil {
			return "", err
		}
		s.chat = m.StartChat()
	}

	resp, err := s.chat.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini send failed: %w", err)
	}
	return replyText(resp)
}

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	var b strings.Builder
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					b.WriteString(string(t))
				}
			}
			if b.Len() > 0 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "", ErrNoReply
	}
	return b.String(), nil
}
