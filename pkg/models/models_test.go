package models

import (
	"context"
	"strings"
	"testing"
)

func TestDummyLLMEchoesLastPromptLine(t *testing.T) {
	llm := NewDummyLLM("")
	out, err := llm.Generate(context.Background(), "first line\n\nlast line\n\n")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !strings.Contains(out, "last line") {
		t.Fatalf("expected the last non-empty line echoed, got %q", out)
	}
}

func TestDummyLLMStreamAssemblesFullText(t *testing.T) {
	llm := NewDummyLLM("")
	stream, err := llm.GenerateStream(context.Background(), "hello streaming world")
	if err != nil {
		t.Fatalf("GenerateStream returned error: %v", err)
	}

	var assembled strings.Builder
	var full string
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		if chunk.Done {
			full = chunk.FullText
			continue
		}
		assembled.WriteString(chunk.Delta)
	}
	if full == "" {
		t.Fatalf("final chunk carried no full text")
	}
	if assembled.String() != full {
		t.Fatalf("deltas %q do not assemble the full text %q", assembled.String(), full)
	}
}

func TestNewProviderDummy(t *testing.T) {
	gen, err := NewProvider(context.Background(), "dummy", "", "")
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}
	if gen == nil {
		t.Fatalf("expected a generator")
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider(context.Background(), "carrier-pigeon", "", ""); err == nil {
		t.Fatalf("expected an error for an unknown provider")
	}
}
