package generator

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts/v1/*.txt
var promptsFS embed.FS

// PromptVersion represents a prompt version.
type PromptVersion string

const (
	PromptVersionV1 PromptVersion = "v1"
)

// PromptTemplate holds a loaded prompt template.
type PromptTemplate struct {
	Version  PromptVersion
	Name     string
	Template string
}

// LoadPrompt loads a prompt template by name and version.
func LoadPrompt(name string, version PromptVersion) (*PromptTemplate, error) {
	filename := fmt.Sprintf("prompts/%s/%s.txt", version, name)
	data, err := promptsFS.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("load prompt %s/%s: %w", version, name, err)
	}
	return &PromptTemplate{
		Version:  version,
		Name:     name,
		Template: string(data),
	}, nil
}

// Render renders the template with the given variables.
func (p *PromptTemplate) Render(vars map[string]string) string {
	result := p.Template
	for k, v := range vars {
		placeholder := "{{" + k + "}}"
		result = strings.ReplaceAll(result, placeholder, v)
	}
	return result
}

const mcqRules = `Each question must be an object with:
- "text": the question text
- "options": an array of exactly 4 answer options
- "correctAnswer": the option that best answers the question`

const shortAnswerRules = `Each question must be an object with a single field:
- "text": the question text`
