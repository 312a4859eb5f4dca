// Package chat persists conversation turns around the engine.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/store"
)

const (
	historyLimit  = 20
	titleMaxRunes = 100
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidRequest       = errors.New("user_id and message are required")
)

// Processor answers one message. *engine.Engine implements it.
type Processor interface {
	Process(ctx context.Context, input *engine.Input) *engine.Output
}

// Request is an incoming chat message.
type Request struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// Response is returned to the client.
type Response struct {
	Response       string                `json:"response"`
	ConversationID string                `json:"conversation_id"`
	ToolCalls      []core.ToolInvocation `json:"tool_calls"`
	Error          string                `json:"error,omitempty"`
}

// Service handles chat requests.
type Service struct {
	conversations store.ConversationStore
	processor     Processor
}

// NewService creates a chat service.
func NewService(conversations store.ConversationStore, processor Processor) *Service {
	return &Service{conversations: conversations, processor: processor}
}

// Send stores the user turn, runs the engine and stores the assistant turn.
// A new conversation is started when req.ConversationID is empty.
func (s *Service) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.UserID == "" || req.Message == "" {
		return nil, ErrInvalidRequest
	}

	conv, err := s.conversation(ctx, req)
	if err != nil {
		return nil, err
	}

	// History is read before the new turn is stored; the engine appends
	// the message itself.
	recent, err := s.conversations.RecentMessages(ctx, conv.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if _, err := s.conversations.AppendMessage(ctx, conv.ID, core.RoleUser, req.Message, nil); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	out := s.processor.Process(ctx, &engine.Input{
		Message:        req.Message,
		ConversationID: conv.ID,
		OwnerID:        req.UserID,
		History:        store.Turns(recent),
	})

	if _, err := s.conversations.AppendMessage(ctx, conv.ID, core.RoleAssistant, out.Response, out.ToolCalls); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	if out.Error != "" {
		log.Printf("[CHAT] Conversation %s answered with error: %s", conv.ID, out.Error)
	}
	return &Response{
		Response:       out.Response,
		ConversationID: conv.ID,
		ToolCalls:      out.ToolCalls,
		Error:          out.Error,
	}, nil
}

func (s *Service) conversation(ctx context.Context, req *Request) (*store.Conversation, error) {
	if req.ConversationID == "" {
		conv, err := s.conversations.CreateConversation(ctx, req.UserID, Title(req.Message))
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := s.conversations.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	// Conversations are private to their owner.
	if conv.UserID != req.UserID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// ListConversations returns userID's conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	convs, err := s.conversations.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	return convs, nil
}

// Messages returns a conversation in sequence order.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]store.Message, error) {
	if _, err := s.conversations.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	msgs, err := s.conversations.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return msgs, nil
}

// Title derives a conversation title from its first message.
func Title(message string) string {
	runes := []rune(message)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes])
	}
	return message
}
