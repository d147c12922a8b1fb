package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"qs_chat/internal/model"
)

// PeerKeys resolves a peer's published public keys through the relay,
// caching the result for the lifetime of the session.
func (s *Session) PeerKeys(ctx context.Context, name string) (*model.PeerKeys, error) {
	s.keysMu.RLock()
	if pk, ok := s.peerCache[name]; ok {
		s.keysMu.RUnlock()
		return pk, nil
	}
	s.keysMu.RUnlock()

	u := url.URL{
		Scheme: "http",
		Host:   s.relayHost,
		Path:   fmt.Sprintf("/keys/%s", name),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keys lookup for %q: status %d", name, resp.StatusCode)
	}

	var pk model.PeerKeys
	err = json.NewDecoder(resp.Body).Decode(&pk)
	if err != nil {
		return nil, err
	}

	s.keysMu.Lock()
	s.peerCache[name] = &pk
	s.keysMu.Unlock()

	return &pk, nil
}
