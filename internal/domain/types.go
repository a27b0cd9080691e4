package domain

// Message is one chat turn handed to an LLM provider.
type Message struct {
	Role    string
	Content string
}

type LLMRequest struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider to constrain output to a JSON object when it can.
	JSONMode bool
}

type LLMResponse struct {
	Content string
}

// QueryRequest is one natural-language query submitted against a session.
type QueryRequest struct {
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// MQTT payloads

type QueryMessage struct {
	RequestID string `json:"request_id,omitempty"`
	Query     string `json:"query"`
}

type StageMessage struct {
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id"`
	Stage      StageName `json:"stage"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Detail     string    `json:"detail,omitempty"`
}
