package core

// Conversation roles used on prompt messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged entry in an outgoing prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the hook-boundary conversation shape. Injection strategies may
// only add messages to it; existing messages are never removed or reordered.
type Prompt struct {
	Messages []Message `json:"messages"`
}

// Clone returns a copy whose message slice can be mutated independently.
func (p *Prompt) Clone() *Prompt {
	if p == nil {
		return &Prompt{}
	}
	msgs := make([]Message, len(p.Messages))
	copy(msgs, p.Messages)
	return &Prompt{Messages: msgs}
}

// Response carries the assistant output handed to AfterResponse.
type Response struct {
	Text string `json:"text"`
}

// Metadata accompanies every hook call. Feature toggles mirror the optional
// integrations; zero values mean "use the bootstrap configuration".
type Metadata struct {
	SessionID    string         `json:"session_id,omitempty"`
	TurnID       string         `json:"turn_id,omitempty"`
	UserMessage  string         `json:"user_message,omitempty"`
	EnableSearch *bool          `json:"enable_search,omitempty"`
	EnableMCP    *bool          `json:"enable_mcp,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// SearchEnabled resolves the per-turn search toggle against a default.
func (m *Metadata) SearchEnabled(def bool) bool {
	if m == nil || m.EnableSearch == nil {
		return def
	}
	return *m.EnableSearch
}

// MCPEnabled resolves the per-turn external-integration toggle against a default.
func (m *Metadata) MCPEnabled(def bool) bool {
	if m == nil || m.EnableMCP == nil {
		return def
	}
	return *m.EnableMCP
}
