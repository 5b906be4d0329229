package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("OPENAI_MODEL_ID", "")
	os.Setenv("DEEPGRAM_MODEL_ID", "")
	os.Setenv("SQLITE_PATH", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.OpenAIModel == "" {
		t.Fatalf("expected default openai model id")
	}
	if cfg.DeepgramModel == "" {
		t.Fatalf("expected default deepgram model id")
	}
	if cfg.SQLitePath == "" {
		t.Fatalf("expected default sqlite path")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", ":9999")
	os.Setenv("OPENAI_MODEL_ID", "custom-model")
	defer func() {
		os.Unsetenv("HTTP_ADDRESS")
		os.Unsetenv("OPENAI_MODEL_ID")
	}()
	cfg := Load()
	if cfg.HTTPAddress != ":9999" {
		t.Fatalf("http address override lost: %q", cfg.HTTPAddress)
	}
	if cfg.OpenAIModel != "custom-model" {
		t.Fatalf("model override lost: %q", cfg.OpenAIModel)
	}
}
