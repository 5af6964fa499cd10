package provider

import (
	"strings"
	"testing"
)

func TestBuildPromptTitleCasesNames(t *testing.T) {
	prompt := BuildPrompt("engineering offsite", []string{"alice smith", " bob ", ""}, "rooftop bar")
	if !strings.Contains(prompt, "Alice Smith, Bob") {
		t.Fatalf("prompt missing title-cased names:\n%s", prompt)
	}
	if !strings.Contains(prompt, "2 individual people") {
		t.Fatalf("prompt should count only non-empty names:\n%s", prompt)
	}
	if !strings.Contains(prompt, "rooftop bar") {
		t.Fatalf("prompt missing scene name:\n%s", prompt)
	}
}

func TestBuildPromptDefaultScene(t *testing.T) {
	prompt := BuildPrompt("team", []string{"a", "b"}, "")
	if !strings.Contains(prompt, "a modern clean setting") {
		t.Fatalf("prompt missing default scene:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Photorealistic") {
		t.Fatalf("prompt missing style line:\n%s", prompt)
	}
}
