package oceanbase

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

// vectorToString converts a vector to OceanBase VECTOR literal format.
func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}

	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%f", v)
	}

	return "[" + strings.Join(parts, ",") + "]"
}

// parseVectorString parses an OceanBase VECTOR string.
func parseVectorString(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))

	for i, part := range parts {
		var val float64
		_, err := fmt.Sscanf(strings.TrimSpace(part), "%f", &val)
		if err != nil {
			return nil, err
		}
		result[i] = val
	}

	return result, nil
}
