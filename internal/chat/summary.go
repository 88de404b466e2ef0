package chat

import (
	"encoding/json"
	"strings"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/llm"
)

// summarizeToolResults joins the messages of tool results. It stands in
// for the reply when the model answers a tool round with no text.
func summarizeToolResults(msgs []llm.Message) string {
	var lines []string
	for _, m := range msgs {
		var res struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(m.Content), &res); err == nil && res.Message != "" {
			lines = append(lines, res.Message)
		}
	}
	return strings.Join(lines, "\n")
}
