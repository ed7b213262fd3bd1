package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

// apiError is the failure body of the admin API
type apiError struct {
	Success  bool   `json:"success"`
	Code     int    `json:"code"`
	CodeName string `json:"code_name"`
	Error    string `json:"error"`
}

type client struct {
	r *resty.Client
}

func newClient(opts *globalOpts) *client {
	r := resty.New().
		SetBaseURL(opts.server).
		SetTimeout(10*time.Second).
		SetHeader("X-Caller-UID", strconv.Itoa(opts.uid)).
		SetHeader("X-Caller-PID", strconv.Itoa(opts.pid)).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	return &client{r: r}
}

// call sends body and decodes a successful answer into out
func (c *client) call(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.r.R().SetContext(ctx).SetError(&apiError{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			if e.CodeName != "" {
				return fmt.Errorf("%s (%d): %s", e.CodeName, e.Code, e.Error)
			}
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode())
	}
	return nil
}

// text posts body and returns the plain text answer. The transport
// negotiates gzip and inflates it.
func (c *client) text(ctx context.Context, path string, body interface{}) (string, error) {
	resp, err := c.r.R().SetContext(ctx).SetBody(body).SetError(&apiError{}).Post(path)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			return "", fmt.Errorf("%s", e.Error)
		}
		return "", fmt.Errorf("POST %s: status %d", path, resp.StatusCode())
	}
	return string(resp.Body()), nil
}
