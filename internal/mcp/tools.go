package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

// handleSendMessage submits a prompt through the coordinator. Completions
// arrive in the durable history; use get_history to read them.
func (s *Server) handleSendMessage(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input SendMessageInput,
) (*gomcp.CallToolResult, SendMessageOutput, error) {
	if input.ChatID == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("'chat_id' is required")
	}
	if input.Content == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("'content' is required")
	}

	turnID, err := s.coord.Submit(ctx, s.userID, input.ChatID, input.Content, input.Models)
	if err != nil {
		return nil, SendMessageOutput{}, fmt.Errorf("send message: %s", cherr.Public(err))
	}

	return nil, SendMessageOutput{
		Status: "accepted",
		TurnID: turnID,
	}, nil
}

// handleListChats lists the chats this user belongs to.
func (s *Server) handleListChats(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ListChatsInput,
) (*gomcp.CallToolResult, ListChatsOutput, error) {
	chats, err := s.store.ChatsForUser(ctx, s.userID)
	if err != nil {
		return nil, ListChatsOutput{}, fmt.Errorf("list chats: %w", err)
	}

	out := ListChatsOutput{Chats: make([]ChatInfo, 0, len(chats))}
	for _, c := range chats {
		out.Chats = append(out.Chats, ChatInfo{
			ChatID:    c.ID,
			Title:     c.Title,
			CreatedBy: c.CreatedBy,
			CreatedAt: c.CreatedAt,
		})
	}
	out.Count = len(out.Chats)
	return nil, out, nil
}

// handleGetHistory reads a chat's history. Membership gates reads the same
// way it gates subscriptions; non-members see "not found".
func (s *Server) handleGetHistory(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input GetHistoryInput,
) (*gomcp.CallToolResult, GetHistoryOutput, error) {
	if input.ChatID == "" {
		return nil, GetHistoryOutput{}, fmt.Errorf("'chat_id' is required")
	}

	member, err := s.store.IsMember(ctx, input.ChatID, s.userID)
	if err != nil {
		return nil, GetHistoryOutput{}, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, GetHistoryOutput{}, fmt.Errorf("chat %s not found", input.ChatID)
	}

	msgs, err := s.store.Messages(ctx, input.ChatID)
	if err != nil {
		return nil, GetHistoryOutput{}, fmt.Errorf("read history: %w", err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := GetHistoryOutput{Messages: make([]HistoryMessage, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, HistoryMessage{
			MessageID: m.ID,
			UserID:    m.UserID,
			Content:   m.Content,
			Role:      m.Role,
			Model:     m.Model,
			Timestamp: m.CreatedAt,
		})
	}
	out.Count = len(out.Messages)
	return nil, out, nil
}
