package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// publish writes ev as JSON to the configured Redis channel.
func (n *Notifier) publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.redis.Publish(ctx, n.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", n.channel, err)
	}
	return nil
}
