// Package outreach generates personalized outreach copy for stored leads and
// records every generated message against the lead.
package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/sdr/internal/completion"
	"github.com/kalambet/sdr/internal/prompt"
	"github.com/kalambet/sdr/internal/storage"
)

const (
	maxTokens   = 800
	temperature = 0.7
)

// Store is the persistence a Generator needs.
type Store interface {
	GetLead(id int64) (storage.Lead, error)
	AddMessage(m storage.Message) (storage.Message, error)
}

type Completer interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (completion.Result, error)
}

type Generator struct {
	store Store
	llm   Completer
}

func NewGenerator(store Store, llm Completer) *Generator {
	return &Generator{store: store, llm: llm}
}

// envelope is what gets kept of the completion beyond its text.
type envelope struct {
	Model string            `json:"model"`
	Usage *completion.Usage `json:"usage"`
}

// Generate writes a message of messageType for the lead and stores it. The
// model's text is stored trimmed but otherwise verbatim.
func (g *Generator) Generate(ctx context.Context, leadID int64, messageType, customInstructions string) (storage.Message, error) {
	lead, err := g.store.GetLead(leadID)
	if err != nil {
		return storage.Message{}, fmt.Errorf("lead %d: %w", leadID, err)
	}

	p := prompt.Message(prompt.Snapshot(lead), messageType, customInstructions)
	res, err := g.llm.Generate(ctx, p, maxTokens, temperature)
	if err != nil {
		return storage.Message{}, fmt.Errorf("generating %s message for lead %d: %w", messageType, leadID, err)
	}

	instructions := "None"
	if strings.TrimSpace(customInstructions) != "" {
		instructions = customInstructions
	}

	var raw *string
	if b, err := json.Marshal(envelope{Model: res.Model, Usage: res.Usage}); err == nil {
		s := string(b)
		raw = &s
	}

	msg, err := g.store.AddMessage(storage.Message{
		LeadID:        leadID,
		MessageType:   messageType,
		Content:       strings.TrimSpace(res.Content),
		PromptUsed:    fmt.Sprintf("Generated %s message with custom instructions: %s", messageType, instructions),
		RawCompletion: raw,
	})
	if err != nil {
		return storage.Message{}, fmt.Errorf("saving message: %w", err)
	}

	slog.Info("outreach message generated", "lead_id", leadID, "type", messageType, "message_id", msg.ID)
	return msg, nil
}
