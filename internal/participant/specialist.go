package participant

import (
	"context"
	"fmt"
	"strings"

	"github.com/szaher/mdtboard/internal/llm"
)

// ModelParams carries the generation parameters shared by all participants.
type ModelParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Specialist is a discussion member with a fixed clinical specialty.
type Specialist struct {
	name         string
	role         string
	instructions string
	client       llm.Client
	params       ModelParams
}

// NewSpecialist builds a specialist participant. Instructions may be empty,
// in which case a generic directive for the role is used.
func NewSpecialist(name, role, instructions string, client llm.Client, params ModelParams) *Specialist {
	return &Specialist{
		name:         name,
		role:         role,
		instructions: instructions,
		client:       client,
		params:       params,
	}
}

func (s *Specialist) Name() string { return s.name }
func (s *Specialist) Role() string { return s.role }

// Generate produces a round opinion, or a direct answer when the request
// carries an operator question.
func (s *Specialist) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	temp := s.params.Temperature
	resp, err := s.client.Chat(ctx, llm.ChatRequest{
		Model:       s.params.Model,
		System:      s.systemPrompt(),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: s.userPrompt(req)}},
		MaxTokens:   s.params.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.name, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (s *Specialist) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s representative on a clinical multi-disciplinary team reviewing a patient case.\n", s.role)
	b.WriteString("Ground every statement in the case facts. Flag uncertainty explicitly rather than guessing.\n")
	if s.instructions != "" {
		b.WriteString(s.instructions)
	} else {
		fmt.Fprintf(&b, "Contribute the assessment, risks, and recommendations that fall within %s.", s.role)
	}
	return b.String()
}

func (s *Specialist) userPrompt(req GenerateRequest) string {
	var b strings.Builder
	b.WriteString("Case:\n")
	b.WriteString(req.CaseText)
	b.WriteString("\n")

	if len(req.Digest) > 0 {
		b.WriteString("\nRecent discussion:\n")
		for _, line := range req.Digest {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	switch {
	case req.Question != "":
		fmt.Fprintf(&b, "\nThe moderator asks you directly: %s\nAnswer concisely from your specialty's standpoint.", req.Question)
	case req.Directive != "":
		fmt.Fprintf(&b, "\n%s", req.Directive)
	default:
		b.WriteString("\nGive your opinion for this round. Build on the discussion so far instead of repeating it.")
	}
	return b.String()
}

// Custom is an operator-defined participant with a free-form persona prompt.
type Custom struct {
	*Specialist
}

// NewCustom builds a participant from an operator-supplied persona. The
// persona text replaces the specialty instructions wholesale.
func NewCustom(name, persona string, client llm.Client, params ModelParams) *Custom {
	return &Custom{
		Specialist: NewSpecialist(name, name, persona, client, params),
	}
}
