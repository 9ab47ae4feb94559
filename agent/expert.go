// Package agent asks Gemini models for the data public sources could not provide.
package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const model = "gemini-2.5-flash"

// Expert is a model configured for one kind of question.
type Expert struct {
	Name        string                       `json:"name"`
	Description string                       `json:"description"`
	ModelName   string                       `json:"model_name"`
	Config      *genai.GenerateContentConfig `json:"config"`
}

// Ask sends a single question to the expert and returns the text of its answer.
func (e *Expert) Ask(ctx context.Context, client *genai.Client, question string) (string, error) {
	resp, err := client.Models.GenerateContent(ctx, e.ModelName, genai.Text(question), e.Config)
	if err != nil {
		return "", fmt.Errorf("expert %s failed: %w", e.Name, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from expert %s", e.Name)
	}
	var answer strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		answer.WriteString(part.Text)
	}
	return answer.String(), nil
}
