package appsched

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/ipc"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/resilience"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/id"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

const target = "appspawn"

var _ ability.AppScheduler = (*Client)(nil)

// Options configures a Client
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Breaker      resilience.Settings
	Logger       *logging.Logger
	Metrics      *monitoring.Metrics
}

// Client talks to the app spawner over HTTP. Lifecycle requests are queued
// and delivered one at a time in call order; queries are synchronous. All
// requests go through one circuit breaker, and while it is open lifecycle
// requests fail at the call site instead of being queued.
type Client struct {
	base    string
	http    *retryablehttp.Client
	timeout time.Duration
	breaker *resilience.Breaker
	worker  *eventloop.Handler
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a client for the spawner at opts.BaseURL
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid app spawner address %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	log := logging.OrNop(opts.Logger).ForComponent("appsched")

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = leveled{log.Sugar()}

	settings := opts.Breaker
	userHook := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to resilience.State) {
		log.Warn("circuit state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	return &Client{
		base:    u.String(),
		http:    rc,
		timeout: opts.Timeout,
		breaker: resilience.New(target, settings),
		worker:  eventloop.New("appsched", log, nil),
		log:     log,
		metrics: opts.Metrics,
	}, nil
}

// Close stops delivering queued requests
func (c *Client) Close() {
	c.worker.Stop()
}

// Flush waits until the requests queued so far were delivered
func (c *Client) Flush(ctx context.Context) error {
	return c.worker.Flush(ctx)
}

// Ready reports whether the spawner answers its health endpoint
func (c *Client) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/v1/ready", nil, nil) == nil
}

type loadRequest struct {
	Token       string                `json:"token"`
	CallerToken string                `json:"caller_token,omitempty"`
	Ability     types.AbilityInfo     `json:"ability"`
	Application types.ApplicationInfo `json:"application"`
	Want        *types.Want           `json:"want,omitempty"`
}

type stateRequest struct {
	State ability.State `json:"state"`
}

// LoadAbility asks the spawner to host the ability, starting its process
// when needed
func (c *Client) LoadAbility(token, callerToken ability.Token, info types.AbilityInfo, app types.ApplicationInfo, want *types.Want) error {
	req := loadRequest{
		Token:       token.String(),
		Ability:     info,
		Application: app,
		Want:        want.Clone(),
	}
	if !callerToken.IsNil() {
		req.CallerToken = callerToken.String()
	}
	return c.enqueue("LoadAbility", http.MethodPost, "/v1/abilities", req)
}

// MoveToForeground implements ability.AppScheduler
func (c *Client) MoveToForeground(token ability.Token) error {
	return c.enqueue("MoveToForeground", http.MethodPost, abilityPath(token, "foreground"), nil)
}

// MoveToBackground implements ability.AppScheduler
func (c *Client) MoveToBackground(token ability.Token) error {
	return c.enqueue("MoveToBackground", http.MethodPost, abilityPath(token, "background"), nil)
}

// TerminateAbility implements ability.AppScheduler
func (c *Client) TerminateAbility(token ability.Token) error {
	return c.enqueue("TerminateAbility", http.MethodDelete, abilityPath(token, ""), nil)
}

// UpdateAbilityState reports a completed transition
func (c *Client) UpdateAbilityState(token ability.Token, state ability.State) error {
	return c.enqueue("UpdateAbilityState", http.MethodPut, abilityPath(token, "state"), stateRequest{State: state})
}

// KillApplication kills every process of a bundle
func (c *Client) KillApplication(bundleName string) error {
	return c.call("KillApplication", http.MethodDelete, "/v1/apps/"+url.PathEscape(bundleName), nil, nil)
}

// KillProcessesByUserID kills every process running as the user
func (c *Client) KillProcessesByUserID(userID int) error {
	return c.call("KillProcessesByUserID", http.MethodDelete, "/v1/users/"+strconv.Itoa(userID)+"/processes", nil, nil)
}

// GetRunningProcessInfoByToken returns the process hosting token
func (c *Client) GetRunningProcessInfoByToken(token ability.Token) (types.RunningProcessInfo, error) {
	var info types.RunningProcessInfo
	err := c.call("GetRunningProcessInfoByToken", http.MethodGet, abilityPath(token, "process"), nil, &info)
	return info, err
}

func abilityPath(token ability.Token, action string) string {
	p := "/v1/abilities/" + token.String()
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) enqueue(method, verb, path string, body interface{}) error {
	if c.breaker.State() == resilience.StateOpen {
		return fmt.Errorf("app scheduler %s: %w", method, resilience.ErrOpen)
	}
	ok := c.worker.Post(func() {
		if err := c.call(method, verb, path, body, nil); err != nil {
			c.log.Error("app scheduler request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		}
	})
	if !ok {
		return fmt.Errorf("app scheduler %s: client closed", method)
	}
	return nil
}

func (c *Client) call(method, verb, path string, in, out interface{}) error {
	timer := monitoring.NewTimer(c.metrics, target, method)
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.breaker.Do(func() error { return c.do(ctx, verb, path, in, out) })
	switch {
	case err == nil:
		timer.Stop("ok")
	case errors.Is(err, resilience.ErrOpen):
		timer.Stop("rejected")
	default:
		timer.Stop("error")
	}
	if err != nil {
		return fmt.Errorf("app scheduler %s: %w", method, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, verb, path string, in, out interface{}) error {
	var body interface{}
	if in != nil {
		data, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = data
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, verb, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(ipc.HeaderCallID, id.NewCallID().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(data) > 0 {
		if err := sonic.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// StatusError is a non-2xx spawner answer
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "status " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// leveled routes retryablehttp's logging into zap
type leveled struct {
	s *zap.SugaredLogger
}

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
