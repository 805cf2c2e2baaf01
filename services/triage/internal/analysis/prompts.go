package analysis

import (
	"fmt"
	"strings"

	"medilink/pkg/domain"
)

// prompts.go defines the system prompts used by the triage assistant.
// Keeping them in a separate file makes them easy to tweak without
// touching the orchestration code.

const basePrompt = `You are MediAssist, a warm and careful virtual health assistant for the MediLink clinic.

Rules you must always follow:
- Never give a direct diagnosis. Your role is to gather information and guide the patient.
- Ask exactly one question at a time. When asking about a symptom, ask the patient to rate it on a 0-5 severity scale (0 = none, 5 = unbearable).
- Take the patient's medical history into account when it is provided.
- Be empathetic and use plain language; avoid medical jargon.`

const initialInstruction = `The patient has just described their concern. Acknowledge it briefly, then ask exactly one follow-up question about their main symptom, formatted as a 0-5 severity-scale question.`

const questioningInstruction = `You are in the middle of gathering information. Continue asking one focused question at a time, using 0-5 severity scales where a rating makes sense. After 3-5 questions you should have enough to move toward an assessment, so keep each question purposeful.`

const analysisInstruction = `You now have enough information. Produce a structured response with these sections:
1. Symptom summary - what the patient reported, with their severity ratings.
2. Possible causes - cross-referenced with the patient's medical history where relevant.
3. Recommendations - self-care steps and whether to book a consultation.
4. When to seek immediate care - explicit warning signs that warrant urgent attention.`

// systemPrompt renders the deterministic per-phase prompt.
func systemPrompt(phase domain.ConversationPhase, history *domain.MedicalHistory) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	if history != nil {
		sb.WriteString("\n\n")
		sb.WriteString(renderMedicalHistory(history))
	}
	sb.WriteString("\n\n")
	switch phase {
	case domain.PhaseQuestioning:
		sb.WriteString(questioningInstruction)
	case domain.PhaseAnalysis:
		sb.WriteString(analysisInstruction)
	default:
		sb.WriteString(initialInstruction)
	}
	return sb.String()
}

func renderMedicalHistory(h *domain.MedicalHistory) string {
	return fmt.Sprintf(`Patient medical history:
- Chronic diseases: %s
- Allergies: %s
- Past medications: %s
- Prescription scans on file: %d`,
		listOrNone(h.ChronicDiseases),
		listOrNone(h.Allergies),
		listOrNone(h.PastMedications),
		len(h.Scans),
	)
}

func listOrNone(items []string) string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			cleaned = append(cleaned, item)
		}
	}
	if len(cleaned) == 0 {
		return "None reported"
	}
	return strings.Join(cleaned, ", ")
}
