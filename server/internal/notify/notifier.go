package notify

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/config"
)

const webhookTimeout = 10 * time.Second

// Event is one alert as delivered to webhooks and Redis subscribers.
type Event struct {
	AgentID     string           `json:"agent_id"`
	ReportID    string           `json:"report_id"`
	Level       types.AlertLevel `json:"level"`
	Domain      string           `json:"domain"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	FleetScore  float64          `json:"fleet_score"`
	FleetStatus types.Status     `json:"fleet_status"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Observer is told the outcome of every delivery attempt. target is
// the webhook type or "redis".
type Observer interface {
	Delivery(target string, err error)
}

// Notifier fans the alerts of each received report out to the configured
// webhooks and, when enabled, a Redis pub/sub channel. Repeat alerts for the
// same (agent, domain, level) are suppressed within the cooldown; a zero
// cooldown delivers every cycle.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	webhooks []config.WebhookConfig
	cooldown time.Duration
	client   *http.Client
	redis    publisher
	channel  string
	observer Observer
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time // key: agent:domain:level

	wg sync.WaitGroup
}

// publisher is the subset of *redis.Client the notifier uses.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// New creates a Notifier from the server notify configuration. It opens a
// Redis client when cfg.Redis.Addr is set. observer may be nil.
func New(cfg config.NotifyConfig, observer Observer) *Notifier {
	n := &Notifier{
		webhooks: cfg.Webhooks,
		cooldown: cfg.Cooldown,
		client:   &http.Client{Timeout: webhookTimeout},
		channel:  cfg.Redis.Channel,
		observer: observer,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
	if cfg.Redis.Addr != "" {
		n.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
		})
	}
	return n
}

// Ping checks the Redis connection when one is configured.
func (n *Notifier) Ping(ctx context.Context) error {
	if c, ok := n.redis.(*redis.Client); ok {
		return c.Ping(ctx).Err()
	}
	return nil
}

// Notify selects the alerts of r that are outside their cooldown and
// delivers them in the background. It never blocks on the network.
func (n *Notifier) Notify(ctx context.Context, r *types.Report) {
	events := n.admit(r)
	if len(events) == 0 {
		return
	}
	if len(n.webhooks) == 0 && n.redis == nil {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		// Delivery outlives the RPC that carried the report.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout*2)
		defer cancel()
		for _, ev := range events {
			n.deliver(dctx, ev)
		}
	}()
}

// admit applies the cooldown and returns the events that should go out.
func (n *Notifier) admit(r *types.Report) []Event {
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()

	var out []Event
	for _, a := range r.Alerts {
		key := r.AgentID + ":" + a.Domain + ":" + string(a.Level)
		if n.cooldown > 0 {
			if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.cooldown {
				continue
			}
		}
		n.lastSent[key] = now
		out = append(out, Event{
			AgentID:     r.AgentID,
			ReportID:    r.ID,
			Level:       a.Level,
			Domain:      a.Domain,
			Title:       a.Title,
			Description: a.Description,
			FleetScore:  r.Health.OverallScore,
			FleetStatus: r.Health.Status,
			GeneratedAt: r.GeneratedAt,
		})
	}
	return out
}

// Forget drops cooldown state for agents that left the store, so an agent
// coming back alerts immediately.
func (n *Notifier) Forget(agentIDs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range agentIDs {
		prefix := id + ":"
		for key := range n.lastSent {
			if strings.HasPrefix(key, prefix) {
				delete(n.lastSent, key)
			}
		}
	}
}

// Wait blocks until all in-flight deliveries have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close waits for in-flight deliveries and closes the Redis client.
func (n *Notifier) Close() error {
	n.Wait()
	if c, ok := n.redis.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}

func (n *Notifier) observe(target string, err error) {
	if n.observer != nil {
		n.observer.Delivery(target, err)
	}
}

// deliver sends ev to every target that accepts its level. Errors are logged
// and reported to the observer but never returned.
func (n *Notifier) deliver(ctx context.Context, ev Event) {
	for _, wh := range n.webhooks {
		if wh.MinLevel == string(types.LevelCritical) && ev.Level != types.LevelCritical {
			continue
		}
		url := wh.URL()
		if url == "" {
			continue
		}
		err := n.sendWebhook(ctx, wh.Type, url, ev)
		n.observe(wh.Type, err)
		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"agent_id", ev.AgentID,
				"domain", ev.Domain,
				"err", err,
			)
			continue
		}
		slog.Debug("notify: webhook delivered",
			"type", wh.Type,
			"agent_id", ev.AgentID,
			"domain", ev.Domain,
			"level", ev.Level,
		)
	}

	if n.redis != nil {
		err := n.publish(ctx, ev)
		n.observe("redis", err)
		if err != nil {
			slog.Error("notify: redis publish failed", "channel", n.channel, "err", err)
		}
	}
}
