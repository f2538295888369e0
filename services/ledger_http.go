// services/ledger_http.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"quest-service/utils"
)

// HTTPLedger credits a remote reward ledger service.
type HTTPLedger struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type creditPayload struct {
	UserID     string `json:"user_id"`
	Points     int64  `json:"points"`
	Experience int64  `json:"experience"`
	Reference  string `json:"reference,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Quest      bool   `json:"quest"`
}

func NewHTTPLedger(baseURL, token string) *HTTPLedger {
	return &HTTPLedger{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  utils.HTTPClient,
	}
}

// Credit calls POST /ledger/credit. The reference doubles as Idempotency-Key.
func (l *HTTPLedger) Credit(ctx context.Context, req CreditRequest) error {
	url := fmt.Sprintf("%s/ledger/credit", l.BaseURL)

	jsonData, err := json.Marshal(creditPayload{
		UserID:     req.UserID,
		Points:     req.Points,
		Experience: req.Experience,
		Reference:  req.Reference,
		Reason:     req.Reason,
		Quest:      req.Quest,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if l.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+l.Token)
	}
	if req.Reference != "" {
		httpReq.Header.Set("Idempotency-Key", req.Reference)
	}

	resp, err := l.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[LEDGER] /ledger/credit returned %d: %s", resp.StatusCode, string(body))
		return fmt.Errorf("ledger credit failed: %d", resp.StatusCode)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
