package mcp

// SendMessageInput is the input for the send_message MCP tool.
type SendMessageInput struct {
	ChatID  string   `json:"chat_id" jsonschema:"Chat to send into"`
	Content string   `json:"content" jsonschema:"Message text"`
	Models  []string `json:"models,omitempty" jsonschema:"Model ids to request completions from. Empty uses the server default"`
}

// SendMessageOutput is the output for the send_message MCP tool.
type SendMessageOutput struct {
	Status string `json:"status" jsonschema:"Result status: accepted"`
	TurnID string `json:"turn_id,omitempty" jsonschema:"ID of the dispatched completion turn, empty when no model ran"`
}

// ListChatsInput is the input for the list_chats MCP tool. Identity is
// resolved at server startup, so the client passes nothing.
type ListChatsInput struct{}

// ChatInfo represents a single chat returned by list_chats.
type ChatInfo struct {
	ChatID    string `json:"chat_id"`
	Title     string `json:"title"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

// ListChatsOutput is the output for the list_chats MCP tool.
type ListChatsOutput struct {
	Chats []ChatInfo `json:"chats"`
	Count int        `json:"count"`
}

// GetHistoryInput is the input for the get_history MCP tool.
type GetHistoryInput struct {
	ChatID string `json:"chat_id" jsonschema:"Chat to read"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Max messages to return, newest kept. Default 50"`
}

// HistoryMessage represents a single message returned by get_history.
type HistoryMessage struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	Model     string `json:"model,omitempty"`
	Timestamp string `json:"timestamp"`
}

// GetHistoryOutput is the output for the get_history MCP tool.
type GetHistoryOutput struct {
	Messages []HistoryMessage `json:"messages"`
	Count    int              `json:"count"`
}
