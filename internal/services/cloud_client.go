package services

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/listsync/server/internal/observability"
)

// Cloud relay frame types
const (
	cloudTypeChanged       = "changed"
	cloudTypeRemoteChanged = "remote_changed"
	cloudTypeSynced        = "synced"
)

type cloudFrame struct {
	Type   string    `json:"type"`
	SentAt time.Time `json:"sentAt"`
}

// CloudClient maintains the websocket link to the cloud relay and
// implements CloudTransport. Outbound "changed" notifications are
// coalesced through a one-slot channel so a burst of local writes
// produces a single frame; the relay answers with "remote_changed"
// frames when another replica pushed.
type CloudClient struct {
	url    string
	engine *SyncEngine

	mu       sync.Mutex
	lastSync *time.Time

	notify chan struct{}
}

// NewCloudClient creates a cloud relay client. An empty URL disables it.
func NewCloudClient(url string, engine *SyncEngine) *CloudClient {
	return &CloudClient{
		url:    url,
		engine: engine,
		notify: make(chan struct{}, 1),
	}
}

// NotifyChanged tells the relay that local data changed. Never blocks;
// repeated calls before the frame goes out collapse into one.
func (c *CloudClient) NotifyChanged() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// LastSyncTimestamp returns when the relay last confirmed a sync
func (c *CloudClient) LastSyncTimestamp() *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSync == nil {
		return nil
	}
	t := *c.lastSync
	return &t
}

func (c *CloudClient) markSynced() {
	now := time.Now().UTC()
	c.mu.Lock()
	c.lastSync = &now
	c.mu.Unlock()
}

// Run dials the relay and keeps the link alive with exponential backoff
// until ctx is cancelled
func (c *CloudClient) Run(ctx context.Context) {
	if c.url == "" {
		observability.Info("Cloud relay disabled: no URL configured")
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := policy.NextBackOff()
			observability.Warnf("Cloud relay dial failed: %v (retrying in %s)", err, wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		policy.Reset()
		observability.Infof("Cloud relay connected: %s", c.url)
		c.serve(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		observability.Warn("Cloud relay connection lost, reconnecting")
	}
}

func (c *CloudClient) serve(ctx context.Context, conn *websocket.Conn) {
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			return nil
		})
		for {
			var frame cloudFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					observability.Warnf("Cloud relay read error: %v", err)
				}
				return
			}
			switch frame.Type {
			case cloudTypeRemoteChanged:
				c.markSynced()
				c.engine.NotifyRemoteChange(SourceCloud)
			case cloudTypeSynced:
				c.markSynced()
			default:
				observability.Debugf("Cloud relay sent unknown frame type %q", frame.Type)
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-readerDone:
			return

		case <-c.notify:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(cloudFrame{Type: cloudTypeChanged, SentAt: time.Now().UTC()}); err != nil {
				observability.Warnf("Cloud relay write failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
