package stream

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mojobot/internal/domain"
)

const closeWriteTimeout = time.Second

// Session is one authenticated socket plus the REST credentials bound to it.
type Session struct {
	client       *Client
	conn         *websocket.Conn
	userID       string
	token        string
	connectionID string

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newSession(c *Client, conn *websocket.Conn, userID, token, connectionID string) *Session {
	s := &Session{
		client:       c,
		conn:         conn,
		userID:       userID,
		token:        token,
		connectionID: connectionID,
		done:         make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// ConnectionID returns the id the server assigned to this socket.
func (s *Session) ConnectionID() string { return s.connectionID }

// readLoop discards server events so control frames keep being answered.
func (s *Session) readLoop() {
	defer close(s.done)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close says goodbye on the socket and releases it. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		s.closeErr = s.conn.Close()
		<-s.done
		s.client.logger.Debug("stream session closed", "user_id", s.userID, "connection_id", s.connectionID)
	})
	return s.closeErr
}

func (s *Session) Channel(channelType, channelID string) domain.ChatChannel {
	return &Channel{session: s, channelType: channelType, channelID: channelID}
}

// Channel is a conversation addressed through a Session.
type Channel struct {
	session     *Session
	channelType string
	channelID   string
}

func (ch *Channel) path(suffix string) string {
	return fmt.Sprintf("/channels/%s/%s%s", url.PathEscape(ch.channelType), url.PathEscape(ch.channelID), suffix)
}

func (ch *Channel) call(ctx context.Context, path string, in, out any) error {
	s := ch.session
	return s.client.do(ctx, "POST", path, s.token, s.connectionID, in, out)
}

// Watch subscribes the session to the channel.
func (ch *Channel) Watch(ctx context.Context) error {
	body := map[string]any{"state": true, "watch": true, "presence": false}
	if err := ch.call(ctx, ch.path("/query"), body, nil); err != nil {
		return fmt.Errorf("watch %s:%s: %w", ch.channelType, ch.channelID, err)
	}
	return nil
}

type messageRequest struct {
	Message outboundMessage `json:"message"`
}

type outboundMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SendMessage posts text as the session user.
func (ch *Channel) SendMessage(ctx context.Context, text string) error {
	req := messageRequest{Message: outboundMessage{ID: uuid.NewString(), Text: text}}
	if err := ch.call(ctx, ch.path("/message"), req, nil); err != nil {
		return fmt.Errorf("send message to %s:%s: %w", ch.channelType, ch.channelID, err)
	}
	return nil
}

type reactionRequest struct {
	Reaction reaction `json:"reaction"`
}

type reaction struct {
	Type string `json:"type"`
}

// SendReaction adds a reaction of reactionType to messageID.
func (ch *Channel) SendReaction(ctx context.Context, messageID, reactionType string) error {
	path := "/messages/" + url.PathEscape(messageID) + "/reaction"
	if err := ch.call(ctx, path, reactionRequest{Reaction: reaction{Type: reactionType}}, nil); err != nil {
		return fmt.Errorf("react to %s: %w", messageID, err)
	}
	return nil
}
