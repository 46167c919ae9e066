// Package client is the single point of contact with the portal backend. It
// owns request construction, response interpretation, and the token
// lifecycle. Every failure a caller sees is a normalized apierror.APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"go-portal-client/internal/config"
	"go-portal-client/internal/model"
	"go-portal-client/internal/session"
	"go-portal-client/pkg/apierror"
)

const csrfCookieName = "csrftoken"

type Client struct {
	baseURL  *url.URL
	httpc    *http.Client
	session  *session.Manager
	limiter  *rate.Limiter
	refresh  singleflight.Group
	validate *validator.Validate
	log      *slog.Logger

	Districts        *Resource[model.District]
	Collages         *Resource[model.Collage]
	Members          *Resource[model.Member]
	FinancialRecords *Resource[model.FinancialRecord]
	Timetables       *Resource[model.Timetable]
	Images           *Resource[model.Image]
	Writings         *Resource[model.Writing]
	Messages         *Resource[model.Message]
}

func New(cfg *config.Config, sess *session.Manager, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// The jar carries the backend's CSRF cookie alongside bearer auth.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: base,
		httpc: &http.Client{
			Timeout: cfg.RequestTimeout,
			Jar:     jar,
		},
		session:  sess,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}

	c.Districts = NewResource[model.District](c, "/api/districts/")
	c.Collages = NewResource[model.Collage](c, "/api/collages/")
	c.Members = NewResource[model.Member](c, "/api/members/")
	c.FinancialRecords = NewResource[model.FinancialRecord](c, "/api/financial-records/")
	c.Timetables = NewResource[model.Timetable](c, "/api/timetables/")
	c.Images = NewResource[model.Image](c, "/api/images/")
	c.Writings = NewResource[model.Writing](c, "/api/writings/")
	c.Messages = NewResource[model.Message](c, "/api/messages/")

	return c, nil
}

// Request describes one backend call. Body is JSON-encoded unless RawBody is
// set, in which case ContentType must describe it (multipart uploads). An
// empty ContentType with RawBody leaves the header unset so the server can
// sniff the boundary-less payload.
type Request struct {
	Method      string
	Endpoint    string
	Query       url.Values
	Body        any
	RawBody     []byte
	ContentType string
	Header      http.Header
	NoAuth      bool
}

// Do dispatches one request and decodes a 2xx JSON response into out (out
// may be nil). Every failure is returned as a normalized APIError: transport
// failures carry status 0, backend failures carry the HTTP status plus
// whatever structured detail the body held.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apierror.Network(err)
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		c.log.Debug("request transport failure", "method", req.Method, "endpoint", req.Endpoint, "error", err)
		return apierror.Network(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierror.Network(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := normalize(resp.StatusCode, resp.Header.Get("Content-Type"), body)
		c.log.Debug("request failed", "method", req.Method, "endpoint", req.Endpoint, "status", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apierror.New(fmt.Sprintf("invalid response body: %v", err), resp.StatusCode)
	}

	return nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.baseURL.JoinPath(req.Endpoint)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var payload []byte
	contentType := ""
	switch {
	case req.RawBody != nil:
		payload = req.RawBody
		contentType = req.ContentType
	case req.Body != nil:
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode request body: %v", model.ErrInvalidInput, err)
		}
		payload = encoded
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if !req.NoAuth {
		if access := c.session.AccessToken(); access != "" {
			httpReq.Header.Set("Authorization", "Bearer "+access)
		}
	}

	if token := c.csrfToken(); token != "" {
		httpReq.Header.Set("X-CSRFToken", token)
	}

	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	// Caller-supplied headers win over everything composed above.
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	return httpReq, nil
}

func (c *Client) csrfToken() string {
	for _, cookie := range c.httpc.Jar.Cookies(c.baseURL) {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}

	return ""
}

