package participant

import (
	"context"
	"fmt"
	"strings"

	"github.com/szaher/mdtboard/internal/llm"
)

// Decision is the chairperson participant that distills the whole
// discussion into a final recommendation. It never speaks during rounds.
type Decision struct {
	name   string
	client llm.Client
	params ModelParams
}

// NewDecision builds the decision participant.
func NewDecision(client llm.Client, params ModelParams) *Decision {
	return &Decision{name: "chair", client: client, params: params}
}

func (d *Decision) Name() string { return d.name }
func (d *Decision) Role() string { return "multi-disciplinary team chair" }

// Generate synthesizes the final recommendation. The request's Digest must
// carry the full set of contributions to weigh, oldest first.
func (d *Decision) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var b strings.Builder
	b.WriteString("Case:\n")
	b.WriteString(req.CaseText)
	b.WriteString("\n\nTeam opinions:\n")
	for _, line := range req.Digest {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if req.Question != "" {
		fmt.Fprintf(&b, "\nThe team was asked to resolve: %s\n", req.Question)
	}
	b.WriteString("\nWrite the team's final recommendation: the agreed plan, the points of disagreement and how you weighed them, and concrete next steps.")

	temp := d.params.Temperature
	resp, err := d.client.Chat(ctx, llm.ChatRequest{
		Model: d.params.Model,
		System: "You chair a clinical multi-disciplinary team. Synthesize the specialists' opinions " +
			"into one actionable recommendation. Do not introduce findings no specialist raised.",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		MaxTokens:   d.params.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", d.name, err)
	}
	return strings.TrimSpace(resp.Content), nil
}
