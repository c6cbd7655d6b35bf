package domain

// EventMessageNew is the only webhook event type the agent acts on.
const EventMessageNew = "message.new"

// InboundEvent is the subset of a chat-platform webhook payload the agent consumes.
type InboundEvent struct {
	Type        string          `json:"type"`
	ChannelType string          `json:"channel_type"`
	ChannelID   string          `json:"channel_id"`
	Message     *InboundMessage `json:"message,omitempty"`
	User        *EventUser      `json:"user,omitempty"`
}

// InboundMessage is the message carried by a message.new event.
type InboundMessage struct {
	ID   string     `json:"id"`
	Text string     `json:"text"`
	User *EventUser `json:"user,omitempty"`
}

// EventUser identifies the author of an event.
type EventUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuthorID returns the event author's id, falling back to the message author.
func (e *InboundEvent) AuthorID() string {
	if e.User != nil && e.User.ID != "" {
		return e.User.ID
	}
	if e.Message != nil && e.Message.User != nil {
		return e.Message.User.ID
	}
	return ""
}

// AuthorName returns the display name of the event author, or "".
func (e *InboundEvent) AuthorName() string {
	if e.User != nil && e.User.Name != "" {
		return e.User.Name
	}
	if e.Message != nil && e.Message.User != nil {
		return e.Message.User.Name
	}
	return ""
}

// MessageText returns the message text, or "" when the event has no message.
func (e *InboundEvent) MessageText() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Text
}

// MessageID returns the message id, or "" when the event has no message.
func (e *InboundEvent) MessageID() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.ID
}

// ExtractedQuestion is the message text with every trigger mention removed.
// An empty Question is meaningful: the agent was addressed with nothing to answer.
type ExtractedQuestion struct {
	Raw      string
	Question string
}

// Empty reports whether nothing but mentions and whitespace was sent.
func (q ExtractedQuestion) Empty() bool { return q.Question == "" }

// GeneratedReply is the text the agent posts back. Never empty.
type GeneratedReply struct {
	Text string
}

// AgentIdentity is the synthetic chat participant the agent speaks as.
type AgentIdentity struct {
	ID   string
	Name string
}

// Authored reports whether the event was produced by this identity.
func (a AgentIdentity) Authored(e *InboundEvent) bool {
	return a.ID != "" && e.AuthorID() == a.ID
}

// Ack is the JSON body answered to every processed webhook delivery.
// Optional fields are omitted when they do not apply to the outcome.
type Ack struct {
	Received    bool   `json:"received"`
	Triggered   *bool  `json:"triggered,omitempty"`
	Empty       bool   `json:"empty,omitempty"`
	WebSearched *bool  `json:"webSearched,omitempty"`
	Ignored     string `json:"ignored,omitempty"`
}
