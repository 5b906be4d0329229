package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	AuthToken     string
	OpenAIKey     string
	OpenAIModel   string
	DeepgramKey   string
	DeepgramModel string
	SQLitePath    string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	authToken := os.Getenv("AUTH_TOKEN")
	if authToken == "" {
		log.Println("Warning: AUTH_TOKEN not set - websocket connections are unauthenticated")
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	openAIModel := os.Getenv("OPENAI_MODEL_ID")
	if openAIModel == "" {
		openAIModel = "gpt-4o-mini"
	}
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - coaching runs in demo mode")
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	deepgramModel := os.Getenv("DEEPGRAM_MODEL_ID")
	if deepgramModel == "" {
		deepgramModel = "nova-2"
	}
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription will not work")
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "salesgpt.db"
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:   addr,
		AuthToken:     authToken,
		OpenAIKey:     openAIKey,
		OpenAIModel:   openAIModel,
		DeepgramKey:   deepgramKey,
		DeepgramModel: deepgramModel,
		SQLitePath:    sqlitePath,
	}
}
