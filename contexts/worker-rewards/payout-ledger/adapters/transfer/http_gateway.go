package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

// HTTPGateway talks to a payment gateway that accepts idempotent transfer
// requests and reports finality per transfer reference.
type HTTPGateway struct {
	baseURL string
	token   string
	source  string
	client  *http.Client
}

// NewHTTPGateway builds a client; source names the funding wallet and may be
// empty when the gateway has a single configured source.
func NewHTTPGateway(baseURL string, token string, source string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		source:  strings.TrimSpace(source),
		client:  &http.Client{Timeout: timeout},
	}
}

type transferRequest struct {
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

type transferResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (g *HTTPGateway) Transfer(ctx context.Context, req ports.TransferRequest) (string, error) {
	body, err := json.Marshal(transferRequest{Source: g.source, Destination: req.Destination, Amount: req.Amount})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	g.authorize(httpReq)

	var resp transferResponse
	status, err := g.do(httpReq, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("transfer request failed: status %d: %s", status, resp.Error)
	}
	if strings.EqualFold(resp.Status, "failed") {
		return "", fmt.Errorf("transfer rejected by gateway: %s", resp.Error)
	}
	if resp.Reference == "" {
		return "", fmt.Errorf("transfer response missing reference")
	}
	return resp.Reference, nil
}

func (g *HTTPGateway) Confirm(ctx context.Context, reference string) (ports.TransferOutcome, error) {
	endpoint := g.baseURL + "/v1/transfers/" + url.PathEscape(reference)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ports.TransferUnknown, err
	}
	g.authorize(httpReq)

	var resp transferResponse
	status, err := g.do(httpReq, &resp)
	if err != nil {
		return ports.TransferUnknown, err
	}
	if status == http.StatusNotFound {
		return ports.TransferRejected, nil
	}
	if status != http.StatusOK {
		return ports.TransferUnknown, fmt.Errorf("transfer status request failed: status %d", status)
	}
	switch strings.ToLower(resp.Status) {
	case "confirmed", "finalized":
		return ports.TransferConfirmed, nil
	case "failed", "rejected":
		return ports.TransferRejected, nil
	case "pending", "processing", "submitted", "queued":
		return ports.TransferPending, nil
	default:
		return ports.TransferUnknown, nil
	}
}

func (g *HTTPGateway) authorize(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}

func (g *HTTPGateway) do(req *http.Request, out *transferResponse) (int, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, out); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("decode transfer response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

var _ ports.TransferGateway = (*HTTPGateway)(nil)
var _ ports.TransferConfirmer = (*HTTPGateway)(nil)
