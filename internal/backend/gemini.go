package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	genai "google.golang.org/genai"

	"vcanalyst/internal/card"
	"vcanalyst/internal/util/jsonutil"
)

var errEmptyCompletion = errors.New("gemini: empty completion")

const chatPrompt = `You are a venture capital analyst assistant. Answer the user's question
about the company described in research_data, taking the conversation history into account.
Respond with JSON only: {"reply": string, "cards": [card, ...]}.
Each card is {"title": string, "type": "text"|"list"|"stat"|"people"|"bar-chart"|"line-chart"|"pie-chart",
"size": "small"|"medium"|"large", "data": object}. Use cards only for facts worth pinning to the dashboard.`

// GeminiResponder answers chat turns with a Gemini model.
type GeminiResponder struct {
	cli   *genai.Client
	model string
}

func NewGeminiResponder(ctx context.Context, apiKey, model string) (*GeminiResponder, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiResponder{cli: cli, model: model}, nil
}

func (g *GeminiResponder) Name() string { return "Gemini:" + g.model }

func (g *GeminiResponder) Respond(ctx context.Context, turn Turn) (Reply, error) {
	in, _ := json.MarshalIndent(map[string]any{
		"message":       turn.Message,
		"history":       turn.History,
		"research_data": turn.Record,
	}, "", "  ")
	full := chatPrompt + "\n\n[INPUT JSON]\n" + string(in)

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return Reply{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Reply{}, errEmptyCompletion
	}
	return parseReply([]byte(resp.Candidates[0].Content.Parts[0].Text))
}

type modelReply struct {
	Reply string            `json:"reply"`
	Cards []json.RawMessage `json:"cards"`
}

// parseReply decodes the model's JSON. Cards that fail validation are
// dropped; the reply text is kept.
func parseReply(raw []byte) (Reply, error) {
	var mr modelReply
	if err := jsonutil.UnmarshalFlex(raw, &mr); err != nil {
		return Reply{}, fmt.Errorf("gemini: decode reply: %w", err)
	}
	out := Reply{Text: strings.TrimSpace(mr.Reply)}
	for i, rawCard := range mr.Cards {
		c, err := card.Decode(rawCard)
		if err != nil {
			log.Printf("backend: gemini: skipping card %d: %v", i, err)
			continue
		}
		out.Cards = append(out.Cards, c)
	}
	if out.Text == "" && len(out.Cards) == 0 {
		return Reply{}, errEmptyCompletion
	}
	return out, nil
}
