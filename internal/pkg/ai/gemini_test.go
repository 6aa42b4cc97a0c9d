package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mkarst/CertForge/internal/pkg/progress"
)

type fakeGenerator struct {
	response string
	err      error
	prompt   string
}

func (f *fakeGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func TestAnalyzeAttempt(t *testing.T) {
	gen := &fakeGenerator{
		response: `{"summary":"Solid run.","weak_topics":["IAM","VPC"],"recommendation":"Drill IAM policies."}`,
	}
	analyzer := NewAnalyzer(gen)

	topics := []progress.TopicAccuracy{
		{Topic: "IAM", Answered: 10, Correct: 4},
		{Topic: "S3", Answered: 8, Correct: 8},
	}
	result, err := analyzer.AnalyzeAttempt(context.Background(), "AWS Solutions Architect", 72, topics)
	if err != nil {
		t.Fatalf("AnalyzeAttempt: %v", err)
	}
	if result.Summary != "Solid run." {
		t.Fatalf("summary = %q", result.Summary)
	}
	if len(result.WeakTopics) != 2 || result.WeakTopics[0] != "IAM" {
		t.Fatalf("weak topics = %v", result.WeakTopics)
	}
	if !strings.Contains(gen.prompt, "72%") || !strings.Contains(gen.prompt, "IAM: 4/10 correct (40%)") {
		t.Fatalf("prompt missing attempt data:\n%s", gen.prompt)
	}
}

func TestAnalyzeAttempt_GeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	analyzer := NewAnalyzer(gen)

	if _, err := analyzer.AnalyzeAttempt(context.Background(), "Exam", 50, nil); err == nil {
		t.Fatalf("expected generator error to propagate")
	}
}

func TestParseAnalysisResponse(t *testing.T) {
	fenced := "```json\n{\"summary\":\"ok\",\"weak_topics\":[],\"recommendation\":\"more reps\"}\n```"
	result, err := ParseAnalysisResponse(fenced)
	if err != nil {
		t.Fatalf("fenced response should parse: %v", err)
	}
	if result.Recommendation != "more reps" {
		t.Fatalf("recommendation = %q", result.Recommendation)
	}

	if _, err := ParseAnalysisResponse("not json at all"); err == nil {
		t.Fatalf("expected error for non-JSON response")
	}
	if _, err := ParseAnalysisResponse(`{"weak_topics":[]}`); err == nil {
		t.Fatalf("expected error for missing summary")
	}
}
