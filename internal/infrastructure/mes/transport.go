package mes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/resilience"
)

const maxErrorBody = 64 << 10

type envelope[T any] struct {
	Sucesso  bool   `json:"sucesso"`
	Mensagem string `json:"mensagem"`
	Retorno  T      `json:"retorno"`
}

type request struct {
	method    string
	path      string
	query     url.Values
	payload   any
	out       any
	operation string
	// idempotent requests may be retried by the executor.
	idempotent bool
	// anonymous requests carry no bearer token.
	anonymous bool
}

func (c *Client) send(ctx context.Context, req request) error {
	call := func(ctx context.Context) error {
		return c.roundTrip(ctx, req)
	}
	if c.executor == nil {
		return call(ctx)
	}

	return c.executor.Do(ctx, resilience.Call{
		Operation:  "mes." + req.operation,
		Idempotent: req.idempotent,
		Classify:   classifyMESError,
	}, call)
}

func (c *Client) roundTrip(ctx context.Context, req request) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("mes %s rate limit: %w", req.operation, err)
		}
	}

	var body io.Reader
	if req.payload != nil {
		raw, err := json.Marshal(req.payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", req.operation, err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", req.operation, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if !req.anonymous {
		if token := c.currentToken(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("mes %s request: %w", req.operation, ctxErr)
		}
		return domain.WrapError(domain.ErrTransport, "mes "+req.operation, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("mes_request",
		"operation", req.operation,
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
	)

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("mes %s status %d: %w", req.operation, resp.StatusCode, errUnauthorized)
	}
	if resp.StatusCode >= 300 {
		return remoteError(req.operation, resp)
	}

	if req.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
		return domain.WrapError(domain.ErrTransport, "decode "+req.operation+" response", err)
	}
	return nil
}

func remoteError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))

	var payload envelope[json.RawMessage]
	if err := json.Unmarshal(raw, &payload); err == nil && strings.TrimSpace(payload.Mensagem) != "" {
		msg = strings.TrimSpace(payload.Mensagem)
	}
	if msg == "" {
		msg = resp.Status
	}

	kind := domain.RemoteRejected
	if isAlreadyFinalizedMessage(msg) {
		kind = domain.RemoteAlreadyFinalized
	}
	return &domain.RemoteError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    msg,
		Kind:       kind,
	}
}
