package connection

import (
	"context"
	"net/url"

	"github.com/gorilla/websocket"
)

// WebsocketTransport dials the relay's /init endpoint, identifying the user
// via query parameter.
type WebsocketTransport struct {
	Host string
}

func NewWebsocketTransport(host string) *WebsocketTransport {
	return &WebsocketTransport{
		Host: host,
	}
}

func (t *WebsocketTransport) Dial(ctx context.Context, userID string) (Conn, error) {
	params := url.Values{
		"userID": []string{userID},
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     t.Host,
		Path:     "/init",
		RawQuery: params.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
