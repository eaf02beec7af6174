package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kitchain/kitchain/internal/domain"
)

// maxChainResponseBytes caps a peer's chain export to keep a misbehaving peer
// from exhausting memory during sync.
const maxChainResponseBytes = 64 << 20

// Client is the HTTP client used to talk to other ledger nodes. Every call is
// bounded by the client timeout so gossip never stalls the local commit path.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a peer Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

func peerURL(address, path string) string {
	addr := strings.TrimSuffix(address, "/")
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return addr + path
}

// PushBlock delivers one block to a peer's receive endpoint.
func (c *Client) PushBlock(ctx context.Context, address string, b domain.Block) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("gossip: encode block %d: %w", b.Index, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		peerURL(address, "/api/peers/receive"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gossip: build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gossip: push to %s: %w: %v", address, domain.ErrPeerUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gossip: push to %s: peer returned %d", address, resp.StatusCode)
	}
	return nil
}

// FetchChain downloads a peer's full chain.
func (c *Client) FetchChain(ctx context.Context, address string) ([]domain.Block, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		peerURL(address, "/api/chain"), nil)
	if err != nil {
		return nil, fmt.Errorf("gossip: build fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gossip: fetch from %s: %w: %v", address, domain.ErrPeerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gossip: fetch from %s: peer returned %d", address, resp.StatusCode)
	}

	var payload struct {
		Chain []domain.Block `json:"chain"`
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxChainResponseBytes))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("gossip: decode chain from %s: %w", address, err)
	}
	return payload.Chain, nil
}

// AnnounceSelf registers this node's address with a peer so gossip flows both
// ways.
func (c *Client) AnnounceSelf(ctx context.Context, address, self string) error {
	body, err := json.Marshal(map[string]string{"address": self})
	if err != nil {
		return fmt.Errorf("gossip: encode announce: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		peerURL(address, "/api/peers/register"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gossip: build announce request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gossip: announce to %s: %w: %v", address, domain.ErrPeerUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gossip: announce to %s: peer returned %d", address, resp.StatusCode)
	}
	return nil
}
