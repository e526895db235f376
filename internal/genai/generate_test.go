package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fitsched/internal/config"
)

func chainModels() []config.ModelRef {
	return []config.ModelRef{
		{Name: "primary", Provider: "ollama"},
		{Name: "secondary", Provider: "openai"},
	}
}

func TestGenerateUsesPrimary(t *testing.T) {
	client := &ScriptedClient{Responses: map[string]string{"primary": goodBody}}
	g := &Generator{Client: client, Models: chainModels()}

	plan, meta, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if meta.Degraded || meta.Model != "primary" {
		t.Fatalf("expected primary model, got %+v", meta)
	}
	if plan.OptionA.Title == "" {
		t.Fatal("plan should parse")
	}
	if calls := client.CallLog(); len(calls) != 1 {
		t.Fatalf("expected 1 call, got %v", calls)
	}
}

func TestGenerateFallsBackOnError(t *testing.T) {
	client := &ScriptedClient{
		Errs:      map[string]error{"primary": errors.New("dial timeout")},
		Responses: map[string]string{"secondary": goodBody},
	}
	g := &Generator{Client: client, Models: chainModels()}

	_, meta, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if meta.Degraded {
		t.Fatal("fallback success is not degraded")
	}
	if meta.Model != "secondary" {
		t.Fatalf("expected secondary, got %q", meta.Model)
	}
	if len(meta.Attempts) != 1 || meta.Attempts[0].Model != "primary" {
		t.Fatalf("primary failure should be recorded: %+v", meta.Attempts)
	}
}

func TestGenerateFallsBackOnUnparseableBody(t *testing.T) {
	client := &ScriptedClient{
		Responses: map[string]string{
			"primary":   "I'd be happy to help you plan a workout!",
			"secondary": goodBody,
		},
	}
	g := &Generator{Client: client, Models: chainModels()}

	_, meta, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if meta.Model != "secondary" {
		t.Fatalf("unparseable body must advance the chain, got %q", meta.Model)
	}
}

func TestGenerateDegradesWhenAllFail(t *testing.T) {
	client := &ScriptedClient{
		Errs: map[string]error{
			"primary":   errors.New("timeout"),
			"secondary": errors.New("quota exceeded"),
		},
	}
	g := &Generator{Client: client, Models: chainModels()}

	plan, meta, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("degraded mode is not an error: %v", err)
	}
	if !meta.Degraded {
		t.Fatal("expected degraded flag")
	}
	if len(meta.Attempts) != 2 {
		t.Fatalf("both failures recorded, got %+v", meta.Attempts)
	}
	// The template fallback still honors the parse contract.
	for _, want := range []string{"Option A", "Option B", "Backup"} {
		if !strings.Contains(plan.Description, want) {
			t.Fatalf("template fallback missing %q:\n%s", want, plan.Description)
		}
	}
	if !strings.Contains(plan.Description, "steady run") {
		t.Fatal("template fallback should render the template verbatim")
	}
}

func TestGenerateNoModelsConfigured(t *testing.T) {
	g := &Generator{Client: &ScriptedClient{}, Models: nil}
	plan, meta, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !meta.Degraded {
		t.Fatal("no models means template-only output")
	}
	if plan.OptionA.Title == "" {
		t.Fatal("template plan should be complete")
	}
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := &Generator{Client: &ScriptedClient{Responses: map[string]string{"primary": goodBody}}, Models: chainModels()}
	if _, _, err := g.Generate(ctx, testRequest()); err == nil {
		t.Fatal("cancelled context must surface")
	}
}

func TestRenderPromptSectionOrder(t *testing.T) {
	prompt := renderPrompt(testRequest())
	sections := []string{
		"workout planning assistant",
		"## Weekly goals",
		"## Today's health",
		"## Recent activity",
		"## Assignment",
		"## Required output",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(prompt, section)
		if idx < 0 {
			t.Fatalf("prompt missing section %q", section)
		}
		if idx < last {
			t.Fatalf("section %q out of order", section)
		}
		last = idx
	}
}
