package helpers

import (
	"context"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/hbomb79/Mediadesk/internal/http/websocket"
	"github.com/hbomb79/Mediadesk/internal/ingest"
	"github.com/hbomb79/go-chanassert"
)

// MatchSocketMessage returns a matcher which will match messages which have
// the title and message type provided.
func MatchSocketMessage(title string, typ websocket.SocketMessageType) chanassert.Matcher[websocket.SocketMessage] {
	return chanassert.MatchStructPartial(websocket.SocketMessage{Title: title, Type: typ})
}

// MatchIngestUpdate returns a chanassert matcher which will
// match any websocket messages regarding ingestion updates
// which contain the given ingest.
func MatchIngestUpdate(path string, state ingest.IngestItemState) chanassert.Matcher[websocket.SocketMessage] {
	return chanassert.MatchPredicate(func(message websocket.SocketMessage) bool {
		if message.Title != "INGEST_UPDATE" {
			return false
		}

		updatedIngest, ok := message.Body["ingest"].(map[string]any)
		if !ok {
			return false
		}

		return updatedIngest["path"] == path && updatedIngest["state"] == state.String()
	})
}

// MatchMediaUpdate matches media updates for the given media ID. When
// deleted is true, only updates reporting the media as gone match.
func MatchMediaUpdate(mediaID int64, deleted bool) chanassert.Matcher[websocket.SocketMessage] {
	return chanassert.MatchPredicate(func(message websocket.SocketMessage) bool {
		if message.Title != "MEDIA_UPDATE" {
			return false
		}

		// JSON numbers decode as float64
		if id, ok := message.Body["mediaId"].(float64); !ok || int64(id) != mediaID {
			return false
		}

		return (message.Body["media"] == nil) == deleted
	})
}

// ActivityMessages dials the activity socket at the URL given and returns
// a channel of the messages received, with the connection welcome already
// consumed. The socket is closed when the test completes.
func ActivityMessages(t *testing.T, serverURL string) chan websocket.SocketMessage {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	var conn *gorilla.Conn
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for conn == nil {
		c, _, err := gorilla.DefaultDialer.DialContext(dialCtx, wsURL, nil)
		if err == nil {
			conn = c
			break
		}

		// The hub refuses upgrades until it has started
		select {
		case <-dialCtx.Done():
			t.Fatalf("failed to connect to activity socket %s: %s", wsURL, err)
		case <-time.After(20 * time.Millisecond):
		}
	}

	var welcome websocket.SocketMessage
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != websocket.Welcome {
		t.Fatalf("expected welcome message from activity socket, got %#v (err %v)", welcome, err)
	}

	messages := make(chan websocket.SocketMessage, 16)
	go func() {
		defer close(messages)
		for {
			var message websocket.SocketMessage
			if err := conn.ReadJSON(&message); err != nil {
				return
			}

			messages <- message
		}
	}()
	t.Cleanup(func() { conn.Close() })

	return messages
}
