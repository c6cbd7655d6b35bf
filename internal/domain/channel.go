package domain

import "context"

// ChatConnector opens authenticated sessions on the chat platform.
type ChatConnector interface {
	Connect(ctx context.Context, as AgentIdentity) (ChatSession, error)
}

// ChatSession is one live connection to the chat platform. Close must be called
// exactly once, whatever happened on the session.
type ChatSession interface {
	Channel(channelType, channelID string) ChatChannel
	Close() error
}

// ChatChannel is a conversation attached through a ChatSession.
type ChatChannel interface {
	Watch(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
	SendReaction(ctx context.Context, messageID, reactionType string) error
}

// Deliverer posts the agent's output into a conversation.
type Deliverer interface {
	SendMessage(ctx context.Context, channelType, channelID, text string) error
	SendReaction(ctx context.Context, channelType, channelID, messageID string) error
}
