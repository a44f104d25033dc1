package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

// FactExtractor extracts discrete, memorable facts from conversation messages
// using an LLM. Each fact is a short standalone statement suitable for
// storage and later retrieval.
type FactExtractor struct {
	llm          llm.Provider
	customPrompt string
}

// NewFactExtractor creates a FactExtractor backed by the given LLM provider.
//
// If customPrompt is non-empty it replaces the default extraction system
// prompt entirely.
func NewFactExtractor(provider llm.Provider, customPrompt string) *FactExtractor {
	return &FactExtractor{
		llm:          provider,
		customPrompt: customPrompt,
	}
}

// Extract extracts facts from a list of conversation messages.
//
// Parameters:
//   - ctx: Context for the LLM call
//   - messages: Conversation messages to extract facts from
//
// Returns the extracted facts in order of appearance. An empty slice with
// a nil error means the conversation contained nothing worth remembering.
func (f *FactExtractor) Extract(ctx context.Context, messages []llm.Message) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	conversation := formatConversation(messages)
	if strings.TrimSpace(conversation) == "" {
		return nil, nil
	}

	systemPrompt := f.customPrompt
	if systemPrompt == "" {
		systemPrompt = factExtractionPrompt()
	}

	response, err := f.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: conversation},
	},
		llm.WithTemperature(0.1),
		llm.WithMaxTokens(2000),
	)
	if err != nil {
		return nil, fmt.Errorf("Extract: LLM generation failed: %w", err)
	}

	facts, err := parseFactsResponse(response)
	if err != nil {
		return nil, fmt.Errorf("Extract: %w", err)
	}

	return facts, nil
}

// ExtractFromText extracts facts from a single block of text, treating it
// as one user message.
func (f *FactExtractor) ExtractFromText(ctx context.Context, text string) ([]string, error) {
	return f.Extract(ctx, []llm.Message{{Role: "user", Content: text}})
}

// formatConversation renders messages as "role: content" lines.
func formatConversation(messages []llm.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// factExtractionPrompt returns the default fact extraction system prompt.
func factExtractionPrompt() string {
	today := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`You are a Personal Information Organizer, specialized in accurately storing facts, user memories, and preferences. Your primary role is to extract relevant pieces of information from conversations and organize them into distinct, manageable facts.

Types of information to remember:
1. Personal preferences: likes, dislikes, and specific preferences for food, products, activities, and entertainment.
2. Personal details: names, relationships, and important dates.
3. Plans and intentions: upcoming events, trips, goals, and any plans the user has shared.
4. Activity and service preferences: dining, travel, hobbies, and other services.
5. Health and wellness preferences: dietary restrictions, fitness routines, and other wellness-related information.
6. Professional details: job titles, work habits, career goals, and other professional information.
7. Miscellaneous information: favorite books, movies, brands, and other details the user shares.

Here are some few-shot examples:

Input: Hi.
Output: {"facts": []}

Input: The weather is nice today.
Output: {"facts": []}

Input: Hi, I am looking for a restaurant in San Francisco.
Output: {"facts": ["Looking for a restaurant in San Francisco"]}

Input: Yesterday, I had a meeting with John at 3pm. We discussed the new project.
Output: {"facts": ["Had a meeting with John at 3pm", "Discussed the new project"]}

Input: Hi, my name is John. I am a software engineer.
Output: {"facts": ["Name is John", "Is a software engineer"]}

Input: My favourite movies are Inception and Interstellar.
Output: {"facts": ["Favourite movies are Inception and Interstellar"]}

Return the facts and preferences in a JSON format as shown above.

Remember the following:
- Today's date is %s.
- Do not return anything from the few-shot example prompts provided above.
- If you do not find anything relevant in the conversation, return an empty list for the "facts" key.
- Create the facts based on the user and assistant messages only. Do not pick anything from the system messages.
- Make sure to return the response in the JSON format mentioned above. The response should be a JSON object with a single key "facts" whose value is a list of strings.

Following is a conversation. Extract the relevant facts and preferences about the user, if any, and return them in the JSON format shown above.`, today)
}

// parseFactsResponse parses the LLM's JSON fact list.
func parseFactsResponse(response string) ([]string, error) {
	cleaned := removeCodeBlocks(response)

	var result struct {
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		embedded, ok := extractJSONObject(cleaned)
		if !ok {
			return nil, fmt.Errorf("parseFactsResponse: invalid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(embedded), &result); err != nil {
			return nil, fmt.Errorf("parseFactsResponse: invalid JSON: %w", err)
		}
	}

	facts := make([]string, 0, len(result.Facts))
	for _, fact := range result.Facts {
		fact = strings.TrimSpace(fact)
		if fact != "" {
			facts = append(facts, fact)
		}
	}
	return facts, nil
}
