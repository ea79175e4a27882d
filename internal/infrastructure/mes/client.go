package mes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/resilience"
)

const defaultUserAgent = "tx-mes-cli"

type Options struct {
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
	// Version is appended to the User-Agent.
	Version string
	// RateLimit caps requests per second; zero disables the limiter.
	RateLimit  float64
	Executor   *resilience.Executor
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is an authenticated MES session.
type Client struct {
	baseURL    string
	user       string
	password   string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := defaultUserAgent
	if v := strings.TrimSpace(opts.Version); v != "" {
		userAgent += "/" + v
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		user:       opts.User,
		password:   opts.Password,
		userAgent:  userAgent,
		httpClient: httpClient,
		limiter:    limiter,
		executor:   opts.Executor,
		logger:     logger,
	}
}

// ReportReading posts one machine reading.
func (c *Client) ReportReading(ctx context.Context, reading domain.Reading) error {
	_, err := withReauth(ctx, c, "report_reading", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.send(ctx, request{
			method:    http.MethodPost,
			path:      "/leituras",
			payload:   reading,
			operation: "report_reading",
		})
	})
	return err
}

// PointPlan registers a start or end event of a cutting plan.
func (c *Client) PointPlan(ctx context.Context, codigoLayout string) error {
	codigoLayout = strings.TrimSpace(codigoLayout)
	if codigoLayout == "" {
		return domain.WrapError(domain.ErrInvalidInput, "point plan", fmt.Errorf("empty codigo_layout"))
	}
	_, err := withReauth(ctx, c, "point_plan", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.send(ctx, request{
			method:    http.MethodPost,
			path:      "/plano-de-corte/" + url.PathEscape(codigoLayout) + "/apontar",
			operation: "point_plan",
		})
	})
	return err
}

// CreateProject creates the cutting plans of one project in a single call.
func (c *Client) CreateProject(ctx context.Context, plans []domain.PlanCreate) error {
	if len(plans) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "create project", fmt.Errorf("no plans"))
	}
	payload := struct {
		Planos []domain.PlanCreate `json:"planos"`
	}{Planos: plans}

	_, err := withReauth(ctx, c, "create_project", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.send(ctx, request{
			method:    http.MethodPost,
			path:      "/plano-de-corte/projeto",
			payload:   payload,
			operation: "create_project",
		})
	})
	return err
}

// CreateOrders sends production orders with their routes and unique parts.
func (c *Client) CreateOrders(ctx context.Context, orders []domain.OrderCreate) error {
	if len(orders) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "create orders", fmt.Errorf("no orders"))
	}
	payload := struct {
		Ordens []domain.OrderCreate `json:"ordens"`
	}{Ordens: orders}

	_, err := withReauth(ctx, c, "create_orders", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.send(ctx, request{
			method:    http.MethodPost,
			path:      "/cliente/ordem",
			payload:   payload,
			operation: "create_orders",
		})
	})
	return err
}

// LookupPlansByPart returns every plan that references the part.
func (c *Client) LookupPlansByPart(ctx context.Context, idUnicoPeca int64) ([]domain.PlanSnapshot, error) {
	return withReauth(ctx, c, "lookup_plans", func(ctx context.Context) ([]domain.PlanSnapshot, error) {
		var out envelope[[]domain.PlanSnapshot]
		err := c.send(ctx, request{
			method:     http.MethodGet,
			path:       "/plano-de-corte/pecas",
			query:      url.Values{"id_unico_peca": []string{strconv.FormatInt(idUnicoPeca, 10)}},
			out:        &out,
			operation:  "lookup_plans",
			idempotent: true,
		})
		if err != nil {
			return nil, err
		}
		return out.Retorno, nil
	})
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}
