package restapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/openmined/cloudsync/internal/syncmsg"
	"github.com/openmined/cloudsync/internal/version"
)

const (
	eventsBufferSize  = 16
	eventsMaxMsgSize  = 64 * 1024
	eventsCloseReason = "shutdown"
)

// Changes subscribes to the server's change feed and reports the ids of
// entries written or deleted by any device of the signed in user. The
// channel is closed when ctx is done or the connection drops.
func (p *Provider) Changes(ctx context.Context) (<-chan string, error) {
	token := p.Token()
	if token == "" {
		return nil, ErrNoToken
	}

	wsURL, err := eventsURL(p.config.ServerURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization":    {"Bearer " + token},
			HeaderUserAgent:    {version.UserAgent()},
			HeaderCloudVersion: {version.Version},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("restapi: events: connect %s: %w", wsURL, err)
	}
	conn.SetReadLimit(eventsMaxMsgSize)
	slog.Info("cloud events connected")

	out := make(chan string, eventsBufferSize)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, eventsCloseReason)

		for {
			var msg syncmsg.Message
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				if !isExpectedCloseError(err) {
					slog.Warn("cloud events read", "error", err)
				}
				return
			}

			id := msg.FileID()
			if id == "" {
				slog.Debug("cloud events rx", "type", msg.Type, "id", msg.Id)
				continue
			}

			select {
			case out <- id:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func eventsURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("restapi: invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("restapi: unsupported scheme %q", u.Scheme)
	}
	u.Path += v1Events
	return u.String(), nil
}

func isExpectedCloseError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
