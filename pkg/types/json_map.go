package types

// JSONMap holds free-form provider payloads persisted as jsonb.
type JSONMap map[string]any
