package announcer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OpenTollGate/tollgate-module-reachability-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-module-reachability-go/src/reachability"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

type published struct {
	relay string
	event nostr.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	fail   map[string]bool
}

func (p *fakePublisher) Publish(_ context.Context, relayURL string, event nostr.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[relayURL] {
		return errors.New("connection refused")
	}
	p.events = append(p.events, published{relay: relayURL, event: event})
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func testConfig() config_manager.AnnounceConfig {
	return config_manager.AnnounceConfig{
		Enabled:    true,
		PrivateKey: testKey,
		Relays:     []string{"wss://relay.one", "wss://relay.two"},
	}
}

func TestBuildEventIsSigned(t *testing.T) {
	a, err := New(testConfig(), &fakePublisher{})
	require.NoError(t, err)
	defer a.Close()

	at := time.Unix(1700000000, 0)
	event, err := a.BuildEvent("internet", reachability.Cellular4G, at)
	require.NoError(t, err)

	ok, err := event.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, DefaultKind, event.Kind)
	assert.Equal(t, nostr.Timestamp(1700000000), event.CreatedAt)
	assert.Equal(t, a.PublicKey(), event.PubKey)

	d := event.Tags.GetFirst([]string{"d"})
	require.NotNil(t, d)
	assert.Equal(t, "internet", (*d)[1])
	status := event.Tags.GetFirst([]string{"status"})
	require.NotNil(t, status)
	assert.Equal(t, "4g", (*status)[1])

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(event.Content), &body))
	assert.Equal(t, "4g", body["status"])
	assert.Equal(t, "4G cellular network", body["label"])
}

func TestAnnouncePublishesToEveryRelay(t *testing.T) {
	pub := &fakePublisher{}
	a, err := New(testConfig(), pub)
	require.NoError(t, err)

	assert.True(t, a.Announce("internet", reachability.WiFi))
	a.Close()

	events := pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, "wss://relay.one", events[0].relay)
	assert.Equal(t, "wss://relay.two", events[1].relay)
	assert.Equal(t, events[0].event.ID, events[1].event.ID)
}

func TestAnnounceSkipsRepeats(t *testing.T) {
	pub := &fakePublisher{}
	a, err := New(testConfig(), pub)
	require.NoError(t, err)

	observe := a.Observer("internet")
	observe(reachability.WiFi)
	observe(reachability.WiFi)
	observe(reachability.NotReachable)
	assert.True(t, a.Announce("other", reachability.WiFi))
	a.Close()

	assert.Len(t, pub.all(), 6)
}

func TestAnnounceSurvivesRelayFailure(t *testing.T) {
	pub := &fakePublisher{fail: map[string]bool{"wss://relay.one": true}}
	a, err := New(testConfig(), pub)
	require.NoError(t, err)

	a.Announce("internet", reachability.Cellular3G)
	a.Close()

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, "wss://relay.two", events[0].relay)
}

func TestAnnounceAfterClose(t *testing.T) {
	a, err := New(testConfig(), &fakePublisher{})
	require.NoError(t, err)
	a.Close()

	assert.False(t, a.Announce("internet", reachability.WiFi))
}

func TestNewRejectsBadKeys(t *testing.T) {
	cfg := testConfig()
	cfg.PrivateKey = ""
	_, err := New(cfg, &fakePublisher{})
	assert.Error(t, err)

	cfg.PrivateKey = "not-hex"
	_, err = New(cfg, &fakePublisher{})
	assert.Error(t, err)
}
