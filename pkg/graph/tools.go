package graph

import "github.com/mnemo-labs/mnemo-go/pkg/llm"

// extractEntitiesTool asks the LLM to list entities with their types.
var extractEntitiesTool = llm.Tool{
	Name:        "extract_entities",
	Description: "Extract entities and their types from the text.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entities": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"entity": map[string]interface{}{
							"type":        "string",
							"description": "The name or identifier of the entity.",
						},
						"entity_type": map[string]interface{}{
							"type":        "string",
							"description": "The type or category of the entity.",
						},
					},
					"required":             []string{"entity", "entity_type"},
					"additionalProperties": false,
				},
				"description": "An array of entities with their types.",
			},
		},
		"required":             []string{"entities"},
		"additionalProperties": false,
	},
}

// establishRelationshipsTool asks the LLM to connect previously extracted
// entities into triples.
var establishRelationshipsTool = llm.Tool{
	Name:        "establish_relationships",
	Description: "Establish relationships among the entities based on the provided text.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entities": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"source": map[string]interface{}{
							"type":        "string",
							"description": "The source entity of the relationship.",
						},
						"relationship": map[string]interface{}{
							"type":        "string",
							"description": "The relationship between the source and destination entities.",
						},
						"destination": map[string]interface{}{
							"type":        "string",
							"description": "The destination entity of the relationship.",
						},
					},
					"required":             []string{"source", "relationship", "destination"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"entities"},
		"additionalProperties": false,
	},
}

// deleteGraphMemoryTool asks the LLM to name triples that new information
// has made stale.
var deleteGraphMemoryTool = llm.Tool{
	Name:        "delete_graph_memory",
	Description: "Delete the relationship between two nodes. This function deletes the existing relationship.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{
				"type":        "string",
				"description": "The identifier of the source node in the relationship.",
			},
			"relationship": map[string]interface{}{
				"type":        "string",
				"description": "The existing relationship between the source and destination nodes that needs to be deleted.",
			},
			"destination": map[string]interface{}{
				"type":        "string",
				"description": "The identifier of the destination node in the relationship.",
			},
		},
		"required":             []string{"source", "relationship", "destination"},
		"additionalProperties": false,
	},
}
