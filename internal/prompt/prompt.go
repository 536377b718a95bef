// Package prompt renders the text prompts sent to the completion API for lead
// qualification, outreach messages and criteria-based scoring.
//
// Rendering is deterministic: the same lead snapshot always produces the same
// prompt, and every attribute slot is always present. Unknown values render
// as "N/A".
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/sdr/internal/storage"
)

// NotAvailable is rendered in place of an absent attribute.
const NotAvailable = "N/A"

// Field is an optional lead attribute with an explicit present/absent state.
type Field struct {
	value string
	set   bool
}

// Absent is the zero Field.
var Absent = Field{}

// Value returns a present Field, or Absent when s is blank.
func Value(s string) Field {
	if strings.TrimSpace(s) == "" {
		return Absent
	}
	return Field{value: s, set: true}
}

// Opt converts a nullable column into a Field.
func Opt(s *string) Field {
	if s == nil {
		return Absent
	}
	return Value(*s)
}

func (f Field) Present() bool { return f.set }

func (f Field) String() string {
	if !f.set {
		return NotAvailable
	}
	return f.value
}

// Lead is the attribute snapshot a prompt is rendered from.
type Lead struct {
	FirstName   string
	LastName    string
	Email       string
	CompanyName string
	JobTitle    Field
	Industry    Field
	CompanySize Field
	Website     Field
}

// Snapshot captures the prompt-relevant attributes of a stored lead.
func Snapshot(l storage.Lead) Lead {
	return Lead{
		FirstName:   l.FirstName,
		LastName:    l.LastName,
		Email:       l.Email,
		CompanyName: l.CompanyName,
		JobTitle:    Opt(l.JobTitle),
		Industry:    Opt(l.Industry),
		CompanySize: Opt(l.CompanySize),
		Website:     Opt(l.CompanyWebsite),
	}
}

// Criterion is one scoring dimension as presented to the model.
type Criterion struct {
	Name        string
	Description Field
	Weight      float64
	Rules       Field
}

// Criteria converts stored criteria, preserving order.
func Criteria(cs []storage.ScoringCriterion) []Criterion {
	out := make([]Criterion, len(cs))
	for i, c := range cs {
		out[i] = Criterion{
			Name:        c.Name,
			Description: Opt(c.Description),
			Weight:      c.Weight,
			Rules:       Value(c.Rules),
		}
	}
	return out
}

const analystRole = "You are an expert Sales Development Representative (SDR) AI assistant."

const qualificationSchema = `Please provide your assessment in the following JSON format:
{
    "qualification_score": <number between 0-100>,
    "qualification_reasons": [
        "reason 1",
        "reason 2"
    ],
    "recommended_stage": "<new|qualified|contacted>",
    "next_actions": [
        "action 1",
        "action 2"
    ],
    "pain_points": [
        "potential pain point 1",
        "potential pain point 2"
    ]
}

Focus on factors like company size, industry fit, job title relevance, and potential budget/decision-making authority.`

const scoringSchema = `Please provide your assessment in the following JSON format:
{
    "total_score": <calculated weighted total score>,
    "criteria_scores": {
        "criteria_name_1": <score for this criteria>,
        "criteria_name_2": <score for this criteria>
    },
    "recommendations": [
        "recommendation 1",
        "recommendation 2"
    ]
}

Score each criteria from 0-10, then calculate the weighted total score.`

// Qualification asks for a 0-100 qualification assessment with a
// recommended stage.
func Qualification(l Lead) string {
	var sb strings.Builder
	sb.WriteString(analystRole)
	sb.WriteString(" Analyze the following lead information and provide a qualification assessment.\n\n")
	writeLead(&sb, l, true)
	sb.WriteString("\n")
	sb.WriteString(qualificationSchema)
	sb.WriteString("\n")
	return sb.String()
}

// Message asks for free-text outreach copy of the given type. Non-empty
// custom instructions are appended verbatim.
func Message(l Lead, messageType, customInstructions string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert Sales Development Representative (SDR) writing personalized outreach messages.\n\n")
	writeLead(&sb, l, false)
	fmt.Fprintf(&sb, "\nMessage Type: %s\n\n", messageType)
	fmt.Fprintf(&sb, "Write a personalized %s message that:\n", messageType)
	sb.WriteString("1. Addresses the lead by name\n")
	sb.WriteString("2. Shows you've researched their company/role\n")
	sb.WriteString("3. Identifies a relevant pain point or opportunity\n")
	sb.WriteString("4. Offers clear value proposition\n")
	sb.WriteString("5. Has a specific call-to-action\n")
	sb.WriteString("6. Maintains a professional but friendly tone\n")
	fmt.Fprintf(&sb, "7. Keeps it concise (%s)\n", LengthRule(messageType))

	if strings.TrimSpace(customInstructions) != "" {
		fmt.Fprintf(&sb, "\nAdditional Instructions: %s\n", customInstructions)
	}

	sb.WriteString("\nGenerate ONLY the message content, no subject line or signatures unless specifically requested.\n")
	return sb.String()
}

// LengthRule returns the length constraint for a message type: a character
// cap for LinkedIn-like channels and a word cap for everything else.
func LengthRule(messageType string) string {
	if IsLinkedIn(messageType) {
		return "under 300 characters"
	}
	return "under 150 words"
}

// IsLinkedIn reports whether messageType names a LinkedIn-like channel.
func IsLinkedIn(messageType string) bool {
	t := strings.ToLower(strings.TrimSpace(messageType))
	return t == "inmail" || strings.HasPrefix(t, "linkedin")
}

// Scoring asks the model to score each criterion 0-10 and report the
// weighted total.
func Scoring(l Lead, criteria []Criterion) string {
	var sb strings.Builder
	sb.WriteString(analystRole)
	sb.WriteString(" Score the following lead based on the provided criteria.\n\n")
	writeLead(&sb, l, true)
	sb.WriteString("\nScoring Criteria:\n")
	for _, c := range criteria {
		fmt.Fprintf(&sb, "- %s (Weight: %s): %s\n", c.Name, formatWeight(c.Weight), c.Description)
		fmt.Fprintf(&sb, "  Rules: %s\n", c.Rules)
	}
	sb.WriteString("\n")
	sb.WriteString(scoringSchema)
	sb.WriteString("\n")
	return sb.String()
}

func writeLead(sb *strings.Builder, l Lead, withEmail bool) {
	sb.WriteString("Lead Information:\n")
	fmt.Fprintf(sb, "- Name: %s %s\n", l.FirstName, l.LastName)
	if withEmail {
		fmt.Fprintf(sb, "- Email: %s\n", l.Email)
	}
	fmt.Fprintf(sb, "- Company: %s\n", l.CompanyName)
	fmt.Fprintf(sb, "- Job Title: %s\n", l.JobTitle)
	fmt.Fprintf(sb, "- Industry: %s\n", l.Industry)
	fmt.Fprintf(sb, "- Company Size: %s\n", l.CompanySize)
	fmt.Fprintf(sb, "- Website: %s\n", l.Website)
}

func formatWeight(w float64) string {
	if w == float64(int64(w)) {
		return strconv.FormatFloat(w, 'f', 1, 64)
	}
	return strconv.FormatFloat(w, 'f', -1, 64)
}
