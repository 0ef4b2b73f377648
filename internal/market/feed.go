package market

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mft-core/internal/events"
	"mft-core/internal/persistence"
	"mft-core/pkg/db"
)

// Feed streams ticks from an external websocket source, appends them to
// the observation store and publishes them on the bus. When Batch is
// set, appends are coalesced instead of hitting the store per tick.
type Feed struct {
	URL    string
	DB     *db.Database
	Bus    *events.Bus
	Batch  *persistence.BatchWriter
	dialer *websocket.Dialer
}

// NewFeed builds a websocket ingestion client for the given endpoint.
func NewFeed(url string, database *db.Database, bus *events.Bus) *Feed {
	return &Feed{
		URL:    url,
		DB:     database,
		Bus:    bus,
		dialer: websocket.DefaultDialer,
	}
}

// Start consumes the feed until the context is canceled, reconnecting
// with backoff after any connection failure.
func (f *Feed) Start(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.consume(ctx); err != nil {
			log.Printf("⚠️ feed disconnected: %v (retrying in %s)", err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// consume handles a single connection lifetime.
func (f *Feed) consume(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	log.Printf("✓ feed connected: %s", f.URL)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}

		tick, err := ParseTick(msg)
		if err != nil {
			log.Printf("⚠️ feed: bad tick skipped: %v", err)
			continue
		}
		f.store(ctx, tick)
	}
}

func (f *Feed) store(ctx context.Context, tick Tick) {
	if tick.Symbol == "" || tick.Last <= 0 {
		log.Printf("⚠️ feed: tick without symbol/price skipped")
		return
	}
	if f.Batch != nil {
		f.Batch.Append(tick.Observation())
	} else if err := f.DB.AppendObservation(ctx, tick.Observation()); err != nil {
		log.Printf("⚠️ feed: observation not stored: %v", err)
		return
	}
	if f.Bus != nil {
		f.Bus.Publish(events.EventObservation, tick)
	}
}
