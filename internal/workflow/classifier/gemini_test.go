package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"leadflow_backend/internal/workflow/domain"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	reply  string
	tokens int32
	err    error
	prompt string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: f.tokens},
	}, nil
}

func TestClassifyMapsLabels(t *testing.T) {
	tests := []struct {
		reply string
		want  domain.Decision
	}{
		{`{"decision":"Dealer Not Interested","summary":"Signed elsewhere."}`, domain.DecisionNotInterested},
		{`{"decision":"Admin Review","summary":"Wrong dealer address."}`, domain.DecisionNeedsAdminReview},
		{`{"decision":"FollowUp","summary":"Visit on Friday."}`, domain.DecisionFollowUp},
		{`{"decision":"None","summary":"Out of office."}`, domain.DecisionUnclassified},
	}

	for _, tc := range tests {
		gen := &fakeGenerator{reply: tc.reply, tokens: 57}
		c := &Gemini{models: gen, model: "test-model"}
		got, err := c.Classify(context.Background(), "L-1", "some reply")
		if err != nil {
			t.Fatalf("%s: %v", tc.reply, err)
		}
		if got.Decision != tc.want || got.TokensConsumed != 57 || got.Summary == "" {
			t.Errorf("%s: unexpected assessment %+v", tc.reply, got)
		}
		if !strings.Contains(gen.prompt, "L-1") {
			t.Errorf("expected lead id in prompt, got %q", gen.prompt)
		}
	}
}

func TestClassifyErrors(t *testing.T) {
	c := &Gemini{models: &fakeGenerator{err: errors.New("quota")}, model: "m"}
	if _, err := c.Classify(context.Background(), "L-1", "reply"); err == nil {
		t.Fatalf("expected API error to surface")
	}

	c = &Gemini{models: &fakeGenerator{reply: "not json"}, model: "m"}
	if _, err := c.Classify(context.Background(), "L-1", "reply"); err == nil {
		t.Fatalf("expected decode error")
	}

	if _, err := c.Classify(context.Background(), "L-1", "   "); err == nil {
		t.Fatalf("expected empty reply to be rejected")
	}
}
