package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mft-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents are the topics relayed to websocket clients.
var streamedEvents = []events.Event{
	events.EventDecision,
	events.EventQualityIssue,
	events.EventOrderSubmitted,
	events.EventOrderRejected,
	events.EventOrderFailed,
	events.EventPositionClosed,
	events.EventRiskAlert,
}

type wsEnvelope struct {
	Event   events.Event `json:"event"`
	At      time.Time    `json:"at"`
	Payload any          `json:"payload"`
}

// websocket relays pipeline events to the connected client until it
// goes away. Slow clients lose events rather than blocking the bus.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan wsEnvelope, 100)
	done := make(chan struct{})
	defer close(done)

	for _, e := range streamedEvents {
		stream, unsub := s.Bus.Subscribe(e, 100)
		defer unsub()

		event := e
		go func() {
			for payload := range stream {
				env := wsEnvelope{Event: event, At: time.Now().UTC(), Payload: payload}
				select {
				case merged <- env:
				case <-done:
					return
				default:
				}
			}
		}()
	}

	// Read pump: the client sends nothing we care about, but the read
	// failing is how a dropped connection is noticed between events.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case env := <-merged:
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-clientGone:
			return
		}
	}
}
