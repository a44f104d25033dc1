// Package intelligence provides the reasoning layer for memory management:
// fact extraction, memory update decisions, duplicate and contradiction
// detection, and retention scoring based on the Ebbinghaus forgetting curve.
package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// MemoryAction represents a single action decided by the LLM for one memory.
type MemoryAction struct {
	// ID identifies the target memory. For ADD actions this is assigned by
	// the caller; for UPDATE and DELETE it must resolve through the IDMap.
	ID string `json:"id"`

	// Text is the memory content after the action is applied.
	Text string `json:"text"`

	// Memory is an alternative field name some models emit instead of Text.
	Memory string `json:"memory,omitempty"`

	// Event is one of ADD, UPDATE, DELETE, or NONE.
	Event string `json:"event"`

	// OldMemory holds the previous content for UPDATE events.
	OldMemory string `json:"old_memory,omitempty"`
}

// Content returns the action's memory text, falling back to the Memory
// field when Text is empty.
func (a *MemoryAction) Content() string {
	if a.Text != "" {
		return a.Text
	}
	return a.Memory
}

// IDMap maps the short numeric identifiers shown to the LLM back to the
// real memory IDs. Real IDs are UUIDs; sending them verbatim wastes tokens
// and invites transcription errors, so existing memories are numbered 0..n-1
// in the prompt and resolved back after the model responds.
type IDMap struct {
	toReal map[string]string
	toTemp map[string]string
}

// NewIDMap builds an IDMap over the given memories, assigning temporary
// identifiers in list order.
func NewIDMap(memories []*storage.Memory) *IDMap {
	m := &IDMap{
		toReal: make(map[string]string, len(memories)),
		toTemp: make(map[string]string, len(memories)),
	}
	for i, mem := range memories {
		temp := strconv.Itoa(i)
		m.toReal[temp] = mem.ID
		m.toTemp[mem.ID] = temp
	}
	return m
}

// Resolve returns the real memory ID for a temporary identifier.
// The second return value is false when the identifier is unknown,
// which usually means the model hallucinated an ID.
func (m *IDMap) Resolve(tempID string) (string, bool) {
	real, ok := m.toReal[tempID]
	return real, ok
}

// TempID returns the temporary identifier assigned to a real memory ID.
func (m *IDMap) TempID(realID string) (string, bool) {
	temp, ok := m.toTemp[realID]
	return temp, ok
}

// Len returns the number of mapped memories.
func (m *IDMap) Len() int {
	return len(m.toReal)
}

// DecisionMaker decides how newly extracted facts should be merged into
// the existing memory set. It presents the facts and the relevant existing
// memories to an LLM and parses the returned action list.
type DecisionMaker struct {
	llm llm.Provider
}

// NewDecisionMaker creates a DecisionMaker backed by the given LLM provider.
func NewDecisionMaker(provider llm.Provider) *DecisionMaker {
	return &DecisionMaker{llm: provider}
}

// Decide determines the actions to take for the given facts against the
// existing memories.
//
// Existing memories are numbered through an IDMap so the prompt carries
// short identifiers. The returned actions reference temporary IDs; callers
// resolve them with the returned IDMap and should downgrade UPDATE or
// DELETE actions with unresolvable IDs to ADD or NONE respectively.
//
// Parameters:
//   - ctx: Context for the LLM call
//   - facts: Newly extracted facts to reconcile
//   - existing: Current memories relevant to the facts
//
// Returns the decided actions, the IDMap used for numbering, and any error.
func (d *DecisionMaker) Decide(ctx context.Context, facts []string, existing []*storage.Memory) ([]MemoryAction, *IDMap, error) {
	idMap := NewIDMap(existing)

	if len(facts) == 0 {
		return nil, idMap, nil
	}

	prompt := buildDecisionPrompt(facts, existing, idMap)

	response, err := d.llm.Generate(ctx, prompt,
		llm.WithTemperature(0.1),
		llm.WithMaxTokens(2000),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("Decide: LLM generation failed: %w", err)
	}

	actions, err := parseActionsResponse(response)
	if err != nil {
		return nil, nil, fmt.Errorf("Decide: %w", err)
	}

	return actions, idMap, nil
}

// buildDecisionPrompt builds the memory update decision prompt. Existing
// memories are rendered with their temporary numeric identifiers.
func buildDecisionPrompt(facts []string, existing []*storage.Memory, idMap *IDMap) string {
	var sb strings.Builder

	sb.WriteString("You are a smart memory manager which controls the memory of a system.\n")
	sb.WriteString("You can perform four operations: (1) add into the memory, (2) update the memory, (3) delete from the memory, and (4) no change.\n\n")
	sb.WriteString("Based on the above four operations, the memory will change.\n\n")
	sb.WriteString("Compare newly retrieved facts with the existing memory. For each new fact, decide whether to:\n")
	sb.WriteString("- ADD: Add it to the memory as a new element\n")
	sb.WriteString("- UPDATE: Update an existing memory element\n")
	sb.WriteString("- DELETE: Delete an existing memory element\n")
	sb.WriteString("- NONE: Make no change (if the fact is already present or irrelevant)\n\n")

	sb.WriteString("Guidelines:\n")
	sb.WriteString("1. ADD: If the retrieved facts contain new information not present in the memory, add it.\n")
	sb.WriteString("2. UPDATE: If the retrieved facts contain information that refines or corrects an existing memory, update that memory. Keep the same ID.\n")
	sb.WriteString("3. DELETE: If the retrieved facts contradict an existing memory, delete the contradicted memory.\n")
	sb.WriteString("4. NONE: If the retrieved facts are already present in the memory, make no change.\n\n")

	sb.WriteString("Current memory:\n")
	if len(existing) == 0 {
		sb.WriteString("(empty)\n")
	} else {
		for _, mem := range existing {
			temp, _ := idMap.TempID(mem.ID)
			sb.WriteString(fmt.Sprintf("- ID: %s, Content: %s\n", temp, mem.Content))
		}
	}

	sb.WriteString("\nNew facts:\n")
	for _, fact := range facts {
		sb.WriteString(fmt.Sprintf("- %s\n", fact))
	}

	sb.WriteString("\nRespond ONLY with a JSON object in the following format:\n")
	sb.WriteString(`{"memory": [{"id": "<memory id>", "text": "<memory content>", "event": "<ADD|UPDATE|DELETE|NONE>", "old_memory": "<previous content, only for UPDATE>"}]}`)
	sb.WriteString("\n\nFor ADD events use an empty string as the id. For UPDATE and DELETE events use the ID from the current memory list. Do not return anything except the JSON object.")

	return sb.String()
}

// parseActionsResponse parses the LLM's JSON action list. Code fences are
// stripped first since some models wrap JSON output despite instructions.
func parseActionsResponse(response string) ([]MemoryAction, error) {
	cleaned := removeCodeBlocks(response)

	var result struct {
		Memory []MemoryAction `json:"memory"`
	}
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		embedded, ok := extractJSONObject(cleaned)
		if !ok {
			return nil, fmt.Errorf("parseActionsResponse: invalid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(embedded), &result); err != nil {
			return nil, fmt.Errorf("parseActionsResponse: invalid JSON: %w", err)
		}
	}

	actions := make([]MemoryAction, 0, len(result.Memory))
	for _, action := range result.Memory {
		action.Event = strings.ToUpper(strings.TrimSpace(action.Event))
		if action.Text == "" {
			action.Text = action.Memory
		}
		switch action.Event {
		case "ADD", "UPDATE", "DELETE", "NONE":
			actions = append(actions, action)
		}
	}

	return actions, nil
}

// extractJSONObject slices out the first-{ to last-} span of a response.
// Fallback for replies that surround their JSON with prose.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// removeCodeBlocks strips markdown code fences from a response.
func removeCodeBlocks(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
