// Package api is a client for the activity-recording service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweeney/feeding-monitor/internal/log"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultKeepAlive      = 30 * time.Second
	ProbeTimeout          = 5 * time.Second
)

// TimeLayout is the wire format of activity timestamps: UTC with
// millisecond precision and a trailing Z.
const TimeLayout = "2006-01-02T15:04:05.000Z"

var tracer = otel.Tracer("feeding-monitor/api")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// FormatTime renders t in the wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Client talks to the activity-recording service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient returns an http.Client with the given overall timeout and
// bounded connect and keep-alive settings.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// NewClient creates a client for baseURL. A nil httpClient gets the defaults.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type createRequest struct {
	CatID     int    `json:"catId"`
	Title     string `json:"title"`
	StartedAt string `json:"startedAt"`
	EndedAt   string `json:"endedAt"`
}

type createResponse struct {
	Data struct {
		ID *int64 `json:"id"`
	} `json:"data"`
}

type finishRequest struct {
	EndedAt string `json:"endedAt"`
}

// CreateActivity records the start of an activity and returns its id.
// endedAt is initially equal to startedAt.
func (c *Client) CreateActivity(ctx context.Context, entityID int, title string, startedAt time.Time) (int64, error) {
	ts := FormatTime(startedAt)
	body, err := json.Marshal(createRequest{
		CatID:     entityID,
		Title:     title,
		StartedAt: ts,
		EndedAt:   ts,
	})
	if err != nil {
		return 0, fmt.Errorf("api: encode create: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/activities/", body)
	if err != nil {
		return 0, err
	}

	var out createResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return 0, fmt.Errorf("api: decode create response: %w", err)
	}
	if out.Data.ID == nil || *out.Data.ID == 0 {
		return 0, fmt.Errorf("api: create response has no activity id")
	}
	log.Info("api: activity created", "entity_id", entityID, "title", title, "activity_id", *out.Data.ID)
	return *out.Data.ID, nil
}

// FinishActivity sets the end time of an existing activity.
func (c *Client) FinishActivity(ctx context.Context, activityID int64, endedAt time.Time) error {
	body, err := json.Marshal(finishRequest{EndedAt: FormatTime(endedAt)})
	if err != nil {
		return fmt.Errorf("api: encode finish: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPatch, "/activities/"+strconv.FormatInt(activityID, 10), body); err != nil {
		return err
	}
	log.Info("api: activity finished", "activity_id", activityID)
	return nil
}

// Probe checks that the service answers. 200, 401 and 404 all mean the
// service is reachable.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("api: probe request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: probe: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusNotFound:
		return nil
	}
	return &StatusError{Method: http.MethodGet, URL: req.URL.String(), Code: resp.StatusCode}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.baseURL + path
	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", url),
			attribute.String("http.request_id", requestID),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("api: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("api: read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		span.SetStatus(codes.Error, serr.Error())
		return nil, serr
	}
	log.Debug("api: request ok", "method", method, "url", url, "status", resp.StatusCode, "request_id", requestID)
	return data, nil
}
