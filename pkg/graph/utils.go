package graph

import (
	"fmt"
	"regexp"
	"strings"
)

const extractRelationsPrompt = `
You are an advanced algorithm designed to extract structured information from text to construct knowledge graphs. Your goal is to capture comprehensive and accurate information. Follow these key principles:

1. Extract only explicitly stated information from the text.
2. Establish relationships among the entities provided.
3. Use "USER_ID" as the source entity for any self-references (e.g., "I," "me," "my," etc.) in user messages.
CUSTOM_PROMPT

Relationships:
    - Use consistent, general, and timeless relationship types.
    - Example: Prefer "professor" over "became_professor."
    - Relationships should only be established among the entities explicitly mentioned in the user message.

Entity Consistency:
    - Ensure that relationships are coherent and logically align with the context of the message.
    - Maintain consistent naming for entities across the extracted data.

Strive to construct a coherent and easily understandable knowledge graph by establishing all the relationships among the entities and adherence to the user's context.

Adhere strictly to these guidelines to ensure high-quality knowledge graph extraction.`

const deleteRelationsSystemPrompt = `
You are a graph memory manager specializing in identifying, managing, and optimizing relationships within graph-based memories. Your primary task is to analyze a list of existing relationships and determine which ones should be deleted based on the new information provided.
Input:
1. Existing Graph Memories: A list of current graph memories, each containing source, relationship, and destination information.
2. New Text: The new information to be integrated into the existing graph structure.
3. Use "USER_ID" as node for any self-references (e.g., "I," "me," "my," etc.) in user messages.

Guidelines:
1. Identification: Use the new information to evaluate existing relationships in the memory graph.
2. Deletion Criteria: Delete a relationship only if it meets at least one of these conditions:
   - Outdated or Inaccurate: The new information is more recent or accurate.
   - Contradictory: The new information conflicts with or negates the existing information.
3. DO NOT DELETE if there is a possibility of same type of relationship but different destination nodes.
4. Comprehensive Analysis:
   - Thoroughly examine each existing relationship against the new information and delete as necessary.
   - Multiple deletions may be required based on the new information.
5. Semantic Integrity:
   - Ensure that deletions maintain or improve the overall semantic structure of the graph.
   - Avoid deleting relationships that are NOT contradictory/outdated to the new information.
6. Temporal Awareness: Prioritize recency when timestamps are available.
7. Necessity Principle: Only DELETE relationships that must be deleted and are contradictory/outdated to the new information to maintain an accurate and coherent memory graph.

Note: DO NOT DELETE if there is a possibility of same type of relationship but different destination nodes.

For example:
Existing Memory: alice -- loves_to_eat -- pizza
New Information: Alice also loves to eat burger.

Do not delete in the above example because there is a possibility that Alice loves to eat both pizza and burger.

Memory Format:
source -- relationship -- destination

Provide a list of deletion instructions, each specifying the relationship to be deleted.
`

// extractEntitiesSystemPrompt builds the system prompt for entity extraction.
// Self-references in the text resolve to the scope identity.
func extractEntitiesSystemPrompt(identity string) string {
	return fmt.Sprintf("You are a smart assistant who understands entities and their types in a given text. "+
		"If user message contains self reference such as 'I', 'me', 'my' etc. then use %s as the source entity. "+
		"Extract all the entities from the text. ***DO NOT*** answer the question itself if the given text is a question.", identity)
}

// buildRelationsPrompt builds the system prompt for relationship extraction.
func buildRelationsPrompt(identity, customPrompt string) string {
	prompt := strings.ReplaceAll(extractRelationsPrompt, "USER_ID", identity)
	if customPrompt != "" {
		prompt = strings.Replace(prompt, "CUSTOM_PROMPT", "4. "+customPrompt, 1)
	} else {
		prompt = strings.Replace(prompt, "CUSTOM_PROMPT", "", 1)
	}
	return prompt
}

// buildDeleteMessages builds the system and user prompts for the deletion pass.
func buildDeleteMessages(existingMemories, data, identity string) (string, string) {
	system := strings.ReplaceAll(deleteRelationsSystemPrompt, "USER_ID", identity)
	user := fmt.Sprintf("Here are the existing memories: %s \n\n New Information: %s", existingMemories, data)
	return system, user
}

// formatRelations renders relations as "source -- relationship -- destination"
// lines for prompt consumption.
func formatRelations(relations []*Relation) string {
	if len(relations) == 0 {
		return ""
	}

	lines := make([]string, len(relations))
	for i, rel := range relations {
		lines[i] = fmt.Sprintf("%s -- %s -- %s", rel.Source, rel.Relationship, rel.Destination)
	}

	return strings.Join(lines, "\n")
}

// normalizeEntity lowercases an entity name and replaces spaces with
// underscores, so extraction variants collapse to one node name.
func normalizeEntity(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// normalizeRelations applies entity normalization to every field of each triple.
func normalizeRelations(relations []*Relation) []*Relation {
	for _, rel := range relations {
		rel.Source = normalizeEntity(rel.Source)
		rel.Relationship = normalizeEntity(rel.Relationship)
		rel.Destination = normalizeEntity(rel.Destination)
	}
	return relations
}

var underscoreRuns = regexp.MustCompile(`_+`)

// relationshipCharMap replaces characters that break Cypher relationship
// labels. Multi-character sequences must be replaced before single characters.
var relationshipCharMap = []struct {
	old string
	new string
}{
	{"...", "_ellipsis_"},
	{"…", "_ellipsis_"},
	{"-", "_"},
	{"'", "_apostrophe_"},
	{`"`, "_quote_"},
	{`\`, "_backslash_"},
	{"/", "_slash_"},
	{"|", "_pipe_"},
	{"&", "_ampersand_"},
	{"=", "_equals_"},
	{"+", "_plus_"},
	{"*", "_asterisk_"},
	{"^", "_caret_"},
	{"%", "_percent_"},
	{"$", "_dollar_"},
	{"#", "_hash_"},
	{"@", "_at_"},
	{"!", "_bang_"},
	{"?", "_question_"},
	{"(", "_lparen_"},
	{")", "_rparen_"},
	{"[", "_lbracket_"},
	{"]", "_rbracket_"},
	{"{", "_lbrace_"},
	{"}", "_rbrace_"},
	{"<", "_langle_"},
	{">", "_rangle_"},
}

// SanitizeRelationship rewrites a relationship label so it is safe to embed
// in a Cypher query, collapsing underscore runs and trimming the edges.
func SanitizeRelationship(relationship string) string {
	sanitized := relationship
	for _, pair := range relationshipCharMap {
		sanitized = strings.ReplaceAll(sanitized, pair.old, pair.new)
	}

	return strings.Trim(underscoreRuns.ReplaceAllString(sanitized, "_"), "_")
}
