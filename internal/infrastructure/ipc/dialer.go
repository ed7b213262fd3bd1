package ipc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/id"
	"go.uber.org/zap"
)

// ErrClosed is returned once the dialer is closed
var ErrClosed = errors.New("ipc dialer closed")

// HeaderCallID carries the id of one outbound call
const HeaderCallID = "X-Call-ID"

// Options configures a Dialer
type Options struct {
	Timeout    time.Duration
	RetryCount int
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
}

// Dialer hands out remote proxies for hosted processes and connection
// clients. Each endpoint gets one lane: calls to it are delivered one at a
// time in call order, and a slow endpoint only delays itself. Proxies are
// cached per endpoint so the same client always maps to the same callback.
type Dialer struct {
	client  *resty.Client
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu         sync.Mutex
	closed     bool
	lanes      map[string]*lane
	schedulers map[string]*RemoteScheduler
	callbacks  map[string]*RemoteCallback
}

// NewDialer creates a dialer
func NewDialer(opts Options) *Dialer {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	log := logging.OrNop(opts.Logger).ForComponent("ipc")

	transport := retryablehttp.NewClient().HTTPClient.Transport
	client := resty.New().
		SetTransport(transport).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("User-Agent", "ability-manager-ipc/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	return &Dialer{
		client:     client,
		log:        log,
		metrics:    opts.Metrics,
		lanes:      make(map[string]*lane),
		schedulers: make(map[string]*RemoteScheduler),
		callbacks:  make(map[string]*RemoteCallback),
	}
}

func normalizeEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid ipc endpoint %q", endpoint)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// Scheduler returns the proxy for the hosted process listening at endpoint
func (d *Dialer) Scheduler(endpoint string) (*RemoteScheduler, error) {
	ep, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if s, ok := d.schedulers[ep]; ok {
		return s, nil
	}
	s := &RemoteScheduler{lane: d.laneLocked(ep)}
	d.schedulers[ep] = s
	return s, nil
}

// ConnectCallback returns the proxy for the connection client listening at
// endpoint
func (d *Dialer) ConnectCallback(endpoint string) (*RemoteCallback, error) {
	ep, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if cb, ok := d.callbacks[ep]; ok {
		return cb, nil
	}
	cb := &RemoteCallback{lane: d.laneLocked(ep)}
	d.callbacks[ep] = cb
	return cb, nil
}

// LookupCallback returns the cached proxy for endpoint without creating one
func (d *Dialer) LookupCallback(endpoint string) (*RemoteCallback, bool) {
	ep, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.callbacks[ep]
	return cb, ok
}

// Forget drops the proxies of an endpoint and stops its lane
func (d *Dialer) Forget(endpoint string) {
	ep, err := normalizeEndpoint(endpoint)
	if err != nil {
		return
	}
	d.mu.Lock()
	l := d.lanes[ep]
	delete(d.lanes, ep)
	delete(d.schedulers, ep)
	delete(d.callbacks, ep)
	d.mu.Unlock()
	if l != nil {
		l.loop.Stop()
	}
}

// Endpoints returns the endpoints with a live lane, sorted
func (d *Dialer) Endpoints() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.lanes))
	for ep := range d.lanes {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// Flush waits until every call queued so far was delivered
func (d *Dialer) Flush(ctx context.Context) error {
	d.mu.Lock()
	lanes := make([]*lane, 0, len(d.lanes))
	for _, l := range d.lanes {
		lanes = append(lanes, l)
	}
	d.mu.Unlock()
	for _, l := range lanes {
		if err := l.loop.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops every lane; queued calls are dropped
func (d *Dialer) Close() {
	d.mu.Lock()
	d.closed = true
	lanes := d.lanes
	d.lanes = make(map[string]*lane)
	d.mu.Unlock()
	for _, l := range lanes {
		l.loop.Stop()
	}
}

func (d *Dialer) laneLocked(ep string) *lane {
	if l, ok := d.lanes[ep]; ok {
		return l
	}
	l := &lane{
		endpoint: ep,
		dialer:   d,
		loop:     eventloop.New("ipc "+ep, d.log, nil),
	}
	d.lanes[ep] = l
	return l
}

// lane delivers calls to one endpoint in order
type lane struct {
	endpoint string
	dialer   *Dialer
	loop     *eventloop.Handler
}

func (l *lane) post(method, path string, body interface{}) error {
	ok := l.loop.Post(func() {
		if err := l.send(method, path, body); err != nil {
			l.dialer.log.Warn("ipc call failed",
				zap.String("endpoint", l.endpoint),
				zap.String("method", method),
				zap.Error(err))
		}
	})
	if !ok {
		return fmt.Errorf("ipc %s to %s: %w", method, l.endpoint, ErrClosed)
	}
	return nil
}

func (l *lane) send(method, path string, body interface{}) error {
	timer := monitoring.NewTimer(l.dialer.metrics, "ipc", method)
	call := id.NewCallID()
	resp, err := l.dialer.client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderCallID, call.String()).
		SetBody(body).
		Post(l.endpoint + path)
	if err != nil {
		timer.Stop("error")
		return fmt.Errorf("%s: %w", call, err)
	}
	if resp.IsError() {
		timer.Stop("error")
		return fmt.Errorf("%s: status %d: %s", call, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	timer.Stop("ok")
	return nil
}
