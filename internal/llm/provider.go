package llm

import (
	"fmt"
	"os"
)

// Engine identifies a model backend.
type Engine string

const (
	EngineAnthropic   Engine = "anthropic"
	EngineOpenAI      Engine = "openai"
	EngineDeepSeek    Engine = "deepseek"
	EngineSiliconFlow Engine = "siliconflow"
	EngineVLLM        Engine = "vllm"
	EngineOllama      Engine = "ollama"
)

// NewClientForEngine creates the appropriate client for an engine.
//
// Environment variables used:
//
//	ANTHROPIC_API_KEY  Anthropic API key (read by the SDK automatically)
//	API_KEY            key for the OpenAI-compatible engines
func NewClientForEngine(engine Engine, baseURL string) (Client, error) {
	apiKey := os.Getenv("API_KEY")

	switch engine {
	case EngineAnthropic:
		return NewAnthropicClient(), nil
	case EngineOpenAI:
		return NewOpenAIClient(apiKey), nil
	case EngineDeepSeek:
		return NewDeepSeekClient(apiKey), nil
	case EngineSiliconFlow:
		return NewSiliconFlowClient(apiKey), nil
	case EngineVLLM:
		if baseURL == "" {
			baseURL = "http://127.0.0.1:7778"
		}
		return NewVLLMClient(baseURL), nil
	case EngineOllama:
		return NewOllamaClient(baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported engine %q", engine)
	}
}
