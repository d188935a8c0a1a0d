package model

// StructuredResponse is the normalized form extracted from free-form model
// output by the parser.
type StructuredResponse struct {
	Response     string            `json:"response"`
	Actions      []Action          `json:"actions,omitempty"`
	StateUpdates map[string]any    `json:"stateUpdates,omitempty"`
	Metadata     *ResponseMetadata `json:"metadata,omitempty"`
}

// Action is a structured instruction the tutor asks the client to perform.
type Action struct {
	Type   string         `json:"type"`
	Target string         `json:"target"`
	Data   map[string]any `json:"data"`
}

// ResponseMetadata carries optional model-reported hints.
type ResponseMetadata struct {
	Confidence        float64 `json:"confidence,omitempty"`
	SuggestedNextStep string  `json:"suggestedNextStep,omitempty"`
}
