package relay

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

	"wallet-provider/pkg/logger"

	"go.uber.org/zap"
)

// HTTPRelay 外部中继服务
//
//	POST {base}/v1/transactions        -> SubmitResult
//	GET  {base}/v1/transactions/{id}   -> Status
type HTTPRelay struct {
	base   string
	client *http.Client
}

func NewHTTPRelay(base string, timeout time.Duration) *HTTPRelay {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRelay{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRelay) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SubmitResult{}, err
	}

	var res SubmitResult
	if err := r.do(ctx, http.MethodPost, r.base+"/v1/transactions", body, &res); err != nil {
		return SubmitResult{}, err
	}
	if res.PushStatus == "" {
		res.PushStatus = PushAccepted
	}
	if res.Failed() {
		logger.Warn("relay rejected submission",
			zap.Uint64("chain_id", req.ChainID),
			zap.Uint64("nonce", req.Nonce),
			zap.String("reason", res.Reason))
		return res, nil
	}
	logger.Info("relay accepted submission",
		zap.Uint64("chain_id", req.ChainID),
		zap.String("tracking_id", res.TrackingID),
		zap.String("push_status", string(res.PushStatus)))
	return res, nil
}

func (r *HTTPRelay) Status(ctx context.Context, trackingID string) (Status, error) {
	var st Status
	if err := r.do(ctx, http.MethodGet, r.base+"/v1/transactions/"+url.PathEscape(trackingID), nil, &st); err != nil {
		return Status{}, err
	}
	if st.TrackingID == "" {
		st.TrackingID = trackingID
	}
	return st, nil
}

func (r *HTTPRelay) do(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("relay read body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("relay %s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("relay decode response: %w", err)
	}
	return nil
}
