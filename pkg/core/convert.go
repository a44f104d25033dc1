package core

import (
	"strings"

	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// ContentHash returns the SHA-256 hex digest of the given text.
//
// The hash scopes idempotent inserts: adding content whose hash already
// exists for the same user resolves the action to NONE instead of creating
// a second record. Storage backends refresh the same digest when an update
// rewrites content, so it always matches the stored text.
func ContentHash(text string) string {
	return storage.ContentHash(text)
}

// toStorageMemory converts a core Memory to a storage Memory.
func toStorageMemory(m *Memory) *storage.Memory {
	return &storage.Memory{
		ID:                m.ID,
		UserID:            m.UserID,
		AgentID:           m.AgentID,
		RunID:             m.RunID,
		ActorID:           m.ActorID,
		Role:              m.Role,
		IsKey:             m.IsKey,
		Hash:              m.Hash,
		Content:           m.Content,
		Embedding:         m.Embedding,
		Metadata:          m.Metadata,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		RetentionStrength: m.RetentionStrength,
		Score:             m.Score,
	}
}

// fromStorageMemory converts a storage Memory to a core Memory.
func fromStorageMemory(m *storage.Memory) *Memory {
	if m == nil {
		return nil
	}
	return &Memory{
		ID:                m.ID,
		UserID:            m.UserID,
		AgentID:           m.AgentID,
		RunID:             m.RunID,
		ActorID:           m.ActorID,
		Role:              m.Role,
		IsKey:             m.IsKey,
		Hash:              m.Hash,
		Content:           m.Content,
		Embedding:         m.Embedding,
		Metadata:          m.Metadata,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		RetentionStrength: m.RetentionStrength,
		Score:             m.Score,
	}
}

// fromStorageMemories converts a slice of storage Memories to core Memories.
func fromStorageMemories(memories []*storage.Memory) []*Memory {
	result := make([]*Memory, 0, len(memories))
	for _, m := range memories {
		result = append(result, fromStorageMemory(m))
	}
	return result
}

// messagesToText renders conversation messages as plain text, one
// "role: content" line per message. System messages are dropped since
// facts are only extracted from user and assistant turns.
func messagesToText(messages []llm.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if msg.Role == "system" || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
	}
	return sb.String()
}

// copyMetadata creates a shallow copy of metadata.
func copyMetadata(metadata map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// truncate truncates a string to the specified length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
