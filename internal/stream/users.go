package stream

import (
	"context"
	"errors"
	"fmt"
)

// User is a platform user record as sent to the upsert endpoint.
type User struct {
	ID     string         `json:"id"`
	Role   string         `json:"role,omitempty"`
	Name   string         `json:"name,omitempty"`
	Custom map[string]any `json:"custom,omitempty"`
}

// UpsertUsers creates or updates users with a server token.
func (c *Client) UpsertUsers(ctx context.Context, users ...User) error {
	if !c.Configured() {
		return errors.New("stream: API key and secret are required")
	}
	if len(users) == 0 {
		return nil
	}
	token, err := ServerToken(c.apiSecret)
	if err != nil {
		return err
	}
	byID := make(map[string]User, len(users))
	for _, u := range users {
		if u.ID == "" {
			return errors.New("stream: user id is required")
		}
		byID[u.ID] = u
	}
	if err := c.do(ctx, "POST", "/users", token, "", map[string]any{"users": byID}, nil); err != nil {
		return fmt.Errorf("upsert users: %w", err)
	}
	return nil
}
