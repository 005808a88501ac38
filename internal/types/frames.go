// Package types defines the JSON frames exchanged over a chat connection.
// One frame = one JSON object; the "type" field selects the variant.
package types

import (
	"encoding/json"
	"fmt"
)

// Client frame types.
const (
	ClientSubscribe   = "subscribe"
	ClientUnsubscribe = "unsubscribe"
	ClientMessage     = "message"
	ClientTyping      = "typing"
)

// Server frame types.
const (
	ServerHello        = "hello"
	ServerSubscribed   = "subscribed"
	ServerUnsubscribed = "unsubscribed"
	ServerMessage      = "message"
	ServerTyping       = "typing"
	ServerError        = "error"
)

// ClientFrame is an inbound frame. Fields beyond Type are populated
// depending on the frame type; dispatch validates them.
type ClientFrame struct {
	Type     string    `json:"type"`
	ChatID   string    `json:"chat_id,omitempty"`
	Content  string    `json:"content,omitempty"`
	Models   ModelList `json:"models,omitempty"`
	IsTyping bool      `json:"is_typing,omitempty"`
}

// ModelList accepts either a JSON array of model ids or a single string,
// since older clients send `"models": "gpt-x"` for a single model.
type ModelList []string

func (m *ModelList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*m = ModelList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("models must be a string or list of strings: %w", err)
	}
	*m = list
	return nil
}

// HelloFrame is sent once after a connection is authenticated and registered.
type HelloFrame struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	UserID  string `json:"user_id"`
}

// SubscribedFrame acks a subscribe.
type SubscribedFrame struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// UnsubscribedFrame acks an unsubscribe.
type UnsubscribedFrame struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// MessageFrame carries one persisted message. Model is set only for
// assistant messages and tags which provider produced it.
type MessageFrame struct {
	Type        string `json:"type"`
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
	UserID      string `json:"user_id"`
	Content     string `json:"content"`
	Model       string `json:"model,omitempty"`
	Timestamp   string `json:"timestamp"`
	MessageType string `json:"message_type"`
}

// TypingFrame relays typing state to a chat's subscribers. Not persisted.
type TypingFrame struct {
	Type     string `json:"type"`
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// ErrorFrame reports a rejected frame or a failed model call to one client.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Hello builds a hello frame.
func Hello(version, userID string) HelloFrame {
	return HelloFrame{Type: ServerHello, Version: version, UserID: userID}
}

// Subscribed builds a subscribe ack.
func Subscribed(chatID string) SubscribedFrame {
	return SubscribedFrame{Type: ServerSubscribed, ChatID: chatID}
}

// Unsubscribed builds an unsubscribe ack.
func Unsubscribed(chatID string) UnsubscribedFrame {
	return UnsubscribedFrame{Type: ServerUnsubscribed, ChatID: chatID}
}

// Typing builds a typing relay frame.
func Typing(chatID, userID string, isTyping bool) TypingFrame {
	return TypingFrame{Type: ServerTyping, ChatID: chatID, UserID: userID, IsTyping: isTyping}
}

// Error builds an error frame.
func Error(message string) ErrorFrame {
	return ErrorFrame{Type: ServerError, Message: message}
}
