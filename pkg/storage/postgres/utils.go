package postgres

import (
	"fmt"
	"strings"
)

// scopeFilter carries the scope columns a query should match on.
// Empty fields are skipped.
type scopeFilter struct {
	UserID  string
	AgentID string
	RunID   string
	ActorID string
}

// buildWhereClauseWithOffset builds a WHERE clause whose placeholders start
// at $startIdx. Needed when earlier positional args (like the query vector)
// already occupy the low placeholder numbers.
func buildWhereClauseWithOffset(scope scopeFilter, filters map[string]interface{}, startIdx int) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	appendCond := func(column, value string) {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, startIdx+len(args)))
		args = append(args, value)
	}

	if scope.UserID != "" {
		appendCond("user_id", scope.UserID)
	}
	if scope.AgentID != "" {
		appendCond("agent_id", scope.AgentID)
	}
	if scope.RunID != "" {
		appendCond("run_id", scope.RunID)
	}
	if scope.ActorID != "" {
		appendCond("actor_id", scope.ActorID)
	}

	if isKey, ok := filters["is_key"].(bool); ok && isKey {
		conditions = append(conditions, "is_key = TRUE")
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}
