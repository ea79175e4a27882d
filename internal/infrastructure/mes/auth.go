package mes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

var errUnauthorized = errors.New("unauthorized")

// Login opens a new session and stores its token.
func (c *Client) Login(ctx context.Context) (string, error) {
	payload := map[string]string{
		"user":     c.user,
		"password": c.password,
	}

	var out envelope[struct {
		Key string `json:"key"`
	}]
	err := c.send(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/login",
		payload:   payload,
		out:       &out,
		operation: "login",
		anonymous: true,
	})
	if err != nil {
		if errors.Is(err, errUnauthorized) || errors.Is(err, domain.ErrRemoteRejected) {
			return "", domain.WrapError(domain.ErrAuthentication, "mes login", err)
		}
		return "", err
	}

	token := strings.TrimSpace(out.Retorno.Key)
	if token == "" {
		return "", domain.WrapError(domain.ErrAuthentication, "mes login", fmt.Errorf("empty session key"))
	}
	c.setToken(token)
	c.logger.Info("mes_login", "user", c.user)
	return token, nil
}

// withReauth runs call and, on a 401, logs in again and repeats it once.
func withReauth[T any](ctx context.Context, c *Client, operation string, call func(context.Context) (T, error)) (T, error) {
	out, err := call(ctx)
	if !errors.Is(err, errUnauthorized) {
		return out, err
	}

	var zero T
	c.logger.Warn("mes_session_expired", "operation", operation)
	if _, err := c.Login(ctx); err != nil {
		return zero, err
	}

	out, err = call(ctx)
	if errors.Is(err, errUnauthorized) {
		return zero, domain.WrapError(domain.ErrAuthentication, "mes "+operation, err)
	}
	return out, err
}
