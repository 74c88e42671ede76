// Package announcer publishes reachability changes as signed nostr events,
// one parameterized replaceable event per target.
package announcer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/dispatch"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

// DefaultKind is the NIP-78 application-specific data kind.
const DefaultKind = 30078

var logger = logrus.WithField("module", "announcer")

// RelayPublisher sends one event to one relay.
type RelayPublisher interface {
	Publish(ctx context.Context, relayURL string, event nostr.Event) error
}

// poolPublisher publishes through a shared relay pool.
type poolPublisher struct {
	pool *nostr.SimplePool
}

func (p poolPublisher) Publish(ctx context.Context, relayURL string, event nostr.Event) error {
	relay, err := p.pool.EnsureRelay(relayURL)
	if err != nil {
		return fmt.Errorf("failed to connect to relay %s: %w", relayURL, err)
	}
	return relay.Publish(ctx, event)
}

// content is the JSON body of an announcement.
type content struct {
	Target string              `json:"target"`
	Status reachability.Status `json:"status"`
	Label  string              `json:"label"`
}

// Announcer signs and publishes status changes off the caller's goroutine.
type Announcer struct {
	privateKey string
	publicKey  string
	relays     []string
	kind       int
	timeout    time.Duration
	publisher  RelayPublisher
	queue      *dispatch.SerialQueue
	cancel     context.CancelFunc

	mu   sync.Mutex
	last map[string]reachability.Status
}

// New creates an announcer. A nil publisher connects to the relays through
// a nostr.SimplePool owned by the announcer.
func New(cfg config_manager.AnnounceConfig, publisher RelayPublisher) (*Announcer, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("announce private key is not set")
	}
	pub, err := nostr.GetPublicKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid announce private key: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if publisher == nil {
		publisher = poolPublisher{pool: nostr.NewSimplePool(ctx)}
	}

	kind := cfg.Kind
	if kind == 0 {
		kind = DefaultKind
	}
	timeout := cfg.PublishTimeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Announcer{
		privateKey: cfg.PrivateKey,
		publicKey:  pub,
		relays:     cfg.Relays,
		kind:       kind,
		timeout:    timeout,
		publisher:  publisher,
		queue:      dispatch.NewSerialQueue("announcer"),
		cancel:     cancel,
		last:       make(map[string]reachability.Status),
	}, nil
}

// PublicKey returns the hex public key events are signed with.
func (a *Announcer) PublicKey() string {
	return a.publicKey
}

// Observer returns an observer that announces every status of target.
func (a *Announcer) Observer(target string) reachability.Observer {
	return func(status reachability.Status) {
		a.Announce(target, status)
	}
}

// Announce schedules publication of status for target. Repeats of the last
// announced status are skipped. It reports whether anything was scheduled.
func (a *Announcer) Announce(target string, status reachability.Status) bool {
	a.mu.Lock()
	if prev, ok := a.last[target]; ok && prev == status {
		a.mu.Unlock()
		return false
	}
	a.last[target] = status
	a.mu.Unlock()

	return a.queue.Async(func() {
		event, err := a.BuildEvent(target, status, time.Now())
		if err != nil {
			logger.WithError(err).WithField("target", target).Error("Failed to build announcement")
			return
		}
		a.publish(event)
	})
}

// BuildEvent creates the signed announcement for target.
func (a *Announcer) BuildEvent(target string, status reachability.Status, at time.Time) (nostr.Event, error) {
	body, err := json.Marshal(content{Target: target, Status: status, Label: status.String()})
	if err != nil {
		return nostr.Event{}, err
	}

	event := nostr.Event{
		PubKey:    a.publicKey,
		CreatedAt: nostr.Timestamp(at.Unix()),
		Kind:      a.kind,
		Tags: nostr.Tags{
			{"d", target},
			{"status", status.Key()},
			{"t", "reachability"},
		},
		Content: string(body),
	}
	if err := event.Sign(a.privateKey); err != nil {
		return nostr.Event{}, fmt.Errorf("failed to sign announcement: %w", err)
	}
	return event, nil
}

func (a *Announcer) publish(event nostr.Event) {
	published := 0
	for _, relayURL := range a.relays {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.publisher.Publish(ctx, relayURL, event)
		cancel()

		if err != nil {
			logger.WithError(err).WithField("relay", relayURL).Warn("Failed to publish announcement")
			continue
		}
		published++
	}

	entry := logger.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"published": published,
		"relays":    len(a.relays),
	})
	if published == 0 {
		entry.Warn("Announcement reached no relay")
		return
	}
	entry.Debug("Announcement published")
}

// Close waits for queued announcements and releases relay connections.
func (a *Announcer) Close() {
	a.queue.Close()
	a.cancel()
}
