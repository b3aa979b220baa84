// Package classifier turns RM reply text into a workflow decision using a
// Gemini model.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/internal/workflow/domain"

	"google.golang.org/genai"
)

const (
	labelNotInterested = "Dealer Not Interested"
	labelAdminReview   = "Admin Review"
	labelFollowUp      = "FollowUp"
	labelNone          = "None"

	maxReplyRunes = 4000
)

const systemInstruction = `You classify replies written by relationship managers about a sales lead.
Pick exactly one decision:
- "Dealer Not Interested": the dealer or customer has declined or chosen someone else.
- "Admin Review": the reply asks for a manager, reports a data problem or needs a human decision.
- "FollowUp": the RM is actively working the lead and names a next step.
- "None": none of the above applies.
Also write a one sentence summary of the reply in English.`

// generator is the part of the genai client the classifier uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini classifies replies with a Gemini model.
type Gemini struct {
	models generator
	model  string
}

// NewGemini creates a classifier backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{models: client.Models, model: model}, nil
}

type verdict struct {
	Decision string `json:"decision"`
	Summary  string `json:"summary"`
}

// Classify implements the workflow service's ReplyClassifier.
func (g *Gemini) Classify(ctx context.Context, leadID, text string) (domain.AIAssessment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.AIAssessment{}, errors.New("empty reply")
	}
	if runes := []rune(text); len(runes) > maxReplyRunes {
		text = string(runes[:maxReplyRunes])
	}

	resp, err := g.models.GenerateContent(ctx, g.model,
		genai.Text(fmt.Sprintf("Lead %s. RM reply:\n\n%s", leadID, text)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    verdictSchema(),
		},
	)
	if err != nil {
		return domain.AIAssessment{}, fmt.Errorf("classify reply: %w", err)
	}

	var v verdict
	if err := json.Unmarshal([]byte(resp.Text()), &v); err != nil {
		return domain.AIAssessment{}, fmt.Errorf("decode classifier verdict: %w", err)
	}

	assessment := domain.AIAssessment{
		Summary:  strings.TrimSpace(v.Summary),
		Decision: domain.ParseDecision(v.Decision),
		Label:    v.Decision,
	}
	if resp.UsageMetadata != nil {
		assessment.TokensConsumed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return assessment, nil
}

func verdictSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"decision": {
				Type: genai.TypeString,
				Enum: []string{labelNotInterested, labelAdminReview, labelFollowUp, labelNone},
			},
			"summary": {Type: genai.TypeString},
		},
		Required: []string{"decision", "summary"},
	}
}
