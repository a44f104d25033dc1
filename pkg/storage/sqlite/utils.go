package sqlite

import (
	"sort"
	"strings"

	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// scopeFilter carries the scope columns a query should match on.
// Empty fields are skipped.
type scopeFilter struct {
	UserID  string
	AgentID string
	RunID   string
	ActorID string
}

// buildWhereClause builds a WHERE clause from scope fields and metadata filters.
func buildWhereClause(scope scopeFilter, filters map[string]interface{}) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if scope.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, scope.UserID)
	}
	if scope.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, scope.AgentID)
	}
	if scope.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, scope.RunID)
	}
	if scope.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, scope.ActorID)
	}

	if isKey, ok := filters["is_key"].(bool); ok && isKey {
		conditions = append(conditions, "is_key = 1")
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// sortByScore sorts memories by score (descending) and limits the number of results.
func sortByScore(memories []*storage.Memory, limit int) []*storage.Memory {
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Score > memories[j].Score
	})

	if limit > 0 && len(memories) > limit {
		return memories[:limit]
	}

	return memories
}
