package ws

import (
	"time"
)

// MessageKind is the frame type of a message
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindBinary MessageKind = "binary"
	KindPing   MessageKind = "ping"
	KindPong   MessageKind = "pong"
)

// Direction tells whether a message was sent or received
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

// Message is a recorded frame. Messages are never modified after recording;
// accessors hand out copies.
type Message struct {
	ID        string
	Kind      MessageKind
	Direction Direction
	Payload   []byte
	Timestamp time.Time
	SizeBytes int
}

// Text returns the payload as a string
func (m Message) Text() string {
	return string(m.Payload)
}

func (m Message) clone() Message {
	if m.Payload != nil {
		m.Payload = append([]byte(nil), m.Payload...)
	}
	return m
}

// Counter tracks message count and payload bytes in one direction
type Counter struct {
	Count int64
	Bytes int64
}

func (c *Counter) add(size int) {
	c.Count++
	c.Bytes += int64(size)
}

// Info is a snapshot of a session's bookkeeping
type Info struct {
	URL               string
	State             State
	ConnectedAt       time.Time
	LastActivityAt    time.Time
	Sent              Counter
	Received          Counter
	PingsSent         int64
	ReconnectAttempts int
	LastCloseCode     int
	LastCloseReason   string
}
