// Package core provides the main mnemo client and memory management functionality.
package core

// AddOption is a function type for configuring Add operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type AddOption func(*AddOptions)

// AddOptions contains configuration options for Add operations.
type AddOptions struct {
	// UserID identifies the user who owns this memory.
	UserID string

	// AgentID identifies the agent associated with this memory.
	AgentID string

	// RunID identifies the run/session associated with this memory.
	RunID string

	// ActorID identifies the conversation participant the memory is about.
	ActorID string

	// Role is the conversational role of the actor.
	Role string

	// Metadata contains additional metadata about the memory.
	Metadata map[string]interface{}

	// IsKey pins the resulting memories as key facts.
	IsKey bool

	// Infer enables the intelligent pipeline: fact extraction, LLM merge
	// decisions, and the post-write ingest gate. When false, the raw
	// content is stored as a single memory.
	Infer bool
}

// WithUserID sets the user ID for Add operations.
//
// Example:
//
//	result, _ := client.Add(ctx, messages, core.WithUserID("user_001"))
func WithUserID(userID string) AddOption {
	return func(opts *AddOptions) {
		opts.UserID = userID
	}
}

// WithAgentID sets the agent ID for Add operations.
func WithAgentID(agentID string) AddOption {
	return func(opts *AddOptions) {
		opts.AgentID = agentID
	}
}

// WithRunID sets the run ID for Add operations.
//
// RunID identifies a specific run or session, useful for grouping related memories.
func WithRunID(runID string) AddOption {
	return func(opts *AddOptions) {
		opts.RunID = runID
	}
}

// WithActorID sets the actor ID for Add operations.
func WithActorID(actorID string) AddOption {
	return func(opts *AddOptions) {
		opts.ActorID = actorID
	}
}

// WithRole sets the conversational role for Add operations.
func WithRole(role string) AddOption {
	return func(opts *AddOptions) {
		opts.Role = role
	}
}

// WithMetadata sets metadata for Add operations.
//
// Metadata can be used for filtering and additional context.
//
// Example:
//
//	result, _ := client.Add(ctx, messages,
//	    core.WithUserID("user_001"),
//	    core.WithMetadata(map[string]interface{}{
//	        "source": "conversation",
//	    }),
//	)
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(opts *AddOptions) {
		opts.Metadata = metadata
	}
}

// WithIsKey pins the resulting memories as key facts.
func WithIsKey(isKey bool) AddOption {
	return func(opts *AddOptions) {
		opts.IsKey = isKey
	}
}

// WithInfer enables or disables the intelligent pipeline for Add operations.
//
// Enabled by default. When disabled, the raw content is stored verbatim
// without fact extraction or merge decisions.
func WithInfer(infer bool) AddOption {
	return func(opts *AddOptions) {
		opts.Infer = infer
	}
}

// SearchOption is a function type for configuring Search operations.
type SearchOption func(*SearchOptions)

// SearchOptions contains configuration options for Search operations.
type SearchOptions struct {
	// UserID filters results to a specific user.
	UserID string

	// AgentID filters results to a specific agent.
	AgentID string

	// RunID filters results to a specific run/session.
	RunID string

	// Limit sets the maximum number of results to return.
	// Default: 10
	Limit int

	// Filters provides additional metadata filters.
	Filters map[string]interface{}

	// MinScore sets the minimum similarity score for results.
	// Results with scores below this threshold are excluded.
	// Default: 0.0 (no minimum)
	MinScore float64
}

// WithUserIDForSearch sets the user ID for Search operations.
func WithUserIDForSearch(userID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.UserID = userID
	}
}

// WithAgentIDForSearch sets the agent ID for Search operations.
func WithAgentIDForSearch(agentID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.AgentID = agentID
	}
}

// WithRunIDForSearch sets the run ID for Search operations.
func WithRunIDForSearch(runID string) SearchOption {
	return func(opts *SearchOptions) {
		opts.RunID = runID
	}
}

// WithLimit sets the maximum number of results for Search operations.
//
// Example:
//
//	results, _ := client.Search(ctx, "query", core.WithLimit(20))
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = limit
	}
}

// WithFilters sets metadata filters for Search operations.
//
// Filters allow searching by custom metadata fields.
func WithFilters(filters map[string]interface{}) SearchOption {
	return func(opts *SearchOptions) {
		opts.Filters = filters
	}
}

// WithMinScore sets the minimum similarity score for Search results.
//
// Only results with similarity scores >= minScore are returned.
func WithMinScore(score float64) SearchOption {
	return func(opts *SearchOptions) {
		opts.MinScore = score
	}
}

// GetAllOption is a function type for configuring GetAll operations.
type GetAllOption func(*GetAllOptions)

// GetAllOptions contains configuration options for GetAll operations.
type GetAllOptions struct {
	// UserID filters results to a specific user.
	UserID string

	// AgentID filters results to a specific agent.
	AgentID string

	// RunID filters results to a specific run/session.
	RunID string

	// Limit sets the maximum number of results to return.
	// Default: 100
	Limit int

	// Offset sets the number of results to skip (for pagination).
	Offset int
}

// WithUserIDForGetAll sets the user ID for GetAll operations.
func WithUserIDForGetAll(userID string) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.UserID = userID
	}
}

// WithAgentIDForGetAll sets the agent ID for GetAll operations.
func WithAgentIDForGetAll(agentID string) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.AgentID = agentID
	}
}

// WithRunIDForGetAll sets the run ID for GetAll operations.
func WithRunIDForGetAll(runID string) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.RunID = runID
	}
}

// WithLimitForGetAll sets the maximum number of results for GetAll operations.
func WithLimitForGetAll(limit int) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.Limit = limit
	}
}

// WithOffset sets the offset for GetAll operations (for pagination).
func WithOffset(offset int) GetAllOption {
	return func(opts *GetAllOptions) {
		opts.Offset = offset
	}
}

// GetOption is a function type for configuring Get operations.
type GetOption func(*GetOptions)

// GetOptions contains configuration options for Get operations with access control.
type GetOptions struct {
	// UserID restricts access to memories belonging to this user (multi-tenant isolation).
	UserID string

	// AgentID restricts access to memories belonging to this agent.
	AgentID string
}

// WithUserIDForGet sets the user ID for Get operations (access control).
func WithUserIDForGet(userID string) GetOption {
	return func(opts *GetOptions) {
		opts.UserID = userID
	}
}

// WithAgentIDForGet sets the agent ID for Get operations (access control).
func WithAgentIDForGet(agentID string) GetOption {
	return func(opts *GetOptions) {
		opts.AgentID = agentID
	}
}

// UpdateOption is a function type for configuring Update operations.
type UpdateOption func(*UpdateOptions)

// UpdateOptions contains configuration options for Update operations with access control.
type UpdateOptions struct {
	// UserID restricts updates to memories belonging to this user.
	UserID string

	// AgentID restricts updates to memories belonging to this agent.
	AgentID string
}

// WithUserIDForUpdate sets the user ID for Update operations (access control).
func WithUserIDForUpdate(userID string) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.UserID = userID
	}
}

// WithAgentIDForUpdate sets the agent ID for Update operations (access control).
func WithAgentIDForUpdate(agentID string) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.AgentID = agentID
	}
}

// DeleteOption is a function type for configuring Delete operations.
type DeleteOption func(*DeleteOptions)

// DeleteOptions contains configuration options for Delete operations with access control.
type DeleteOptions struct {
	// UserID restricts deletions to memories belonging to this user.
	UserID string

	// AgentID restricts deletions to memories belonging to this agent.
	AgentID string
}

// WithUserIDForDelete sets the user ID for Delete operations (access control).
func WithUserIDForDelete(userID string) DeleteOption {
	return func(opts *DeleteOptions) {
		opts.UserID = userID
	}
}

// WithAgentIDForDelete sets the agent ID for Delete operations (access control).
func WithAgentIDForDelete(agentID string) DeleteOption {
	return func(opts *DeleteOptions) {
		opts.AgentID = agentID
	}
}

// DeleteAllOption is a function type for configuring DeleteAll operations.
type DeleteAllOption func(*DeleteAllOptions)

// DeleteAllOptions contains configuration options for DeleteAll operations.
//
// At least one of UserID, AgentID, or RunID must be set; an unscoped
// DeleteAll is refused.
type DeleteAllOptions struct {
	// UserID filters deletions to a specific user.
	UserID string

	// AgentID filters deletions to a specific agent.
	AgentID string

	// RunID filters deletions to a specific run/session.
	RunID string
}

// WithUserIDForDeleteAll sets the user ID for DeleteAll operations.
func WithUserIDForDeleteAll(userID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) {
		opts.UserID = userID
	}
}

// WithAgentIDForDeleteAll sets the agent ID for DeleteAll operations.
func WithAgentIDForDeleteAll(agentID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) {
		opts.AgentID = agentID
	}
}

// WithRunIDForDeleteAll sets the run ID for DeleteAll operations.
func WithRunIDForDeleteAll(runID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) {
		opts.RunID = runID
	}
}

// applyAddOptions applies Add options to create AddOptions.
func applyAddOptions(opts []AddOption) *AddOptions {
	options := &AddOptions{
		Infer:    true,
		Metadata: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applySearchOptions applies Search options to create SearchOptions.
func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		Limit:    10,
		MinScore: 0.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyGetAllOptions applies GetAll options to create GetAllOptions.
func applyGetAllOptions(opts []GetAllOption) *GetAllOptions {
	options := &GetAllOptions{
		Limit:  100,
		Offset: 0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyGetOptions applies Get options to create GetOptions.
func applyGetOptions(opts []GetOption) *GetOptions {
	options := &GetOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyUpdateOptions applies Update options to create UpdateOptions.
func applyUpdateOptions(opts []UpdateOption) *UpdateOptions {
	options := &UpdateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyDeleteOptions applies Delete options to create DeleteOptions.
func applyDeleteOptions(opts []DeleteOption) *DeleteOptions {
	options := &DeleteOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyDeleteAllOptions applies DeleteAll options to create DeleteAllOptions.
func applyDeleteAllOptions(opts []DeleteAllOption) *DeleteAllOptions {
	options := &DeleteAllOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
