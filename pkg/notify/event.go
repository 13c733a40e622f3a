// Package notify carries realtime change notifications from the server to
// signed-in clients over a websocket.
//
// The server side is a [Hub]: every authenticated connection is registered
// under its user, and [Hub.Publish] fans an [Event] out to all of that user's
// connections. Frames are binary CBOR.
//
// The client side is a [Watcher]. It keeps one connection open, reconnecting
// every CheckInterval after a drop, and reports "connected" as its
// reachability value. A topics_changed event invokes the watcher's change
// callback, which the client wires to a pull.
package notify

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EventType names an event.
type EventType string

const (
	// EventHello is the first frame on every connection.
	EventHello EventType = "hello"
	// EventTopicsChanged is sent after the user's topics were written or deleted.
	EventTopicsChanged EventType = "topics_changed"
)

// Event is one notification frame.
type Event struct {
	Type EventType `cbor:"type"`
	// IDs lists the affected topics when known.
	IDs []string `cbor:"ids,omitempty"`
	// Deleted is set when the change removed the topics in IDs.
	Deleted bool `cbor:"deleted,omitempty"`
	// At is the server time in Unix seconds.
	At int64 `cbor:"at"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(fmt.Sprintf("notify: cbor encoder: %v", err))
	}
	if decMode, err = (cbor.DecOptions{MaxArrayElements: 1 << 16}).DecMode(); err != nil {
		panic(fmt.Sprintf("notify: cbor decoder: %v", err))
	}
}

// Marshal encodes e as CBOR.
func Marshal(e Event) ([]byte, error) {
	return encMode.Marshal(e)
}

// Unmarshal decodes a CBOR frame.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := decMode.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, nil
}
