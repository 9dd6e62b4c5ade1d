package gemini

import (
	"context"
	"fmt"
	"io"

	"github.com/advicehub/counsel/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(apiKey, model string) *Provider {
	return &Provider{
		apiKey: apiKey,
		model:  model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-1.5-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(p.DefaultModel())
	var temperature float32 = 0.0
	model.Temperature = &temperature

	session := model.StartChat()
	for _, ex := range req.History {
		session.History = append(session.History,
			&genai.Content{Role: "user", Parts: []genai.Part{genai.Text(ex.Prompt)}},
			&genai.Content{Role: "model", Parts: []genai.Part{genai.Text(ex.Answer)}},
		)
	}

	iter := session.SendMessageStream(ctx, genai.Text(req.Prompt))

	return &stream{client: client, iter: iter}, nil
}

type stream struct {
	client *genai.Client
	iter   *genai.GenerateContentResponseIterator
}

func (s *stream) Next() (llm.Fragment, error) {
	resp, err := s.iter.Next()
	if err == iterator.Done {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("gemini stream error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return llm.Fragment{}, nil
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	return llm.Fragment{llm.FieldAnswer: text}, nil
}

func (s *stream) Close() error {
	return s.client.Close()
}
