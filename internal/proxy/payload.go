package proxy

import "github.com/Orion-Gemini/ORION-WEBCAM/internal/conversation"

// DefaultModel is the model requested from the proxy unless configured otherwise.
const DefaultModel = "gemini-2.5-flash"

// Payload is the proxy request envelope. Args is forwarded to the model
// as-is by the proxy.
type Payload struct {
	Model string `json:"model"`
	Args  Args   `json:"args"`
}

// Args mirrors the generateContent request body.
type Args struct {
	Contents         []conversation.Turn `json:"contents"`
	GenerationConfig *GenerationConfig   `json:"generationConfig,omitempty"`
	SafetySettings   []SafetySetting     `json:"safetySettings,omitempty"`
}

type GenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
}

type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}
