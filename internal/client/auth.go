package client

import (
	"context"
	"fmt"
	"net/http"

	"go-portal-client/internal/model"
	"go-portal-client/pkg/apierror"
)

// DoWithAuthRetry wraps Do with the one-shot refresh policy: a 401 with a
// refresh token on hand triggers exactly one refresh, then one replay of the
// original request. Concurrent 401s share a single in-flight refresh. A
// failing refresh clears all session state before its error is propagated; a
// 401 without a refresh token is returned unchanged.
func (c *Client) DoWithAuthRetry(ctx context.Context, req Request, out any) error {
	err := c.Do(ctx, req, out)
	if err == nil || !apierror.IsAuth(err) {
		return err
	}

	if c.session.RefreshToken() == "" {
		return err
	}

	if refreshErr := c.refreshShared(ctx); refreshErr != nil {
		if clearErr := c.session.Clear(); clearErr != nil {
			c.log.Warn("failed to clear session state", "error", clearErr)
		}
		c.log.Info("token refresh failed, sign-in required")
		return refreshErr
	}

	return c.Do(ctx, req, out)
}

// Login posts credentials and persists the returned token pair and user
// record as one unit before returning.
func (c *Client) Login(ctx context.Context, creds model.LoginRequest) (*model.LoginResult, error) {
	if err := c.validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	var result model.LoginResult
	if err := c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/api/login/", Body: creds, NoAuth: true}, &result); err != nil {
		return nil, err
	}

	if err := c.session.SetSession(result.Access, result.Refresh, &result.User); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	c.log.Info("logged in", "username", result.User.Username)
	return &result, nil
}

// Register creates an account; the backend auto-logs the new user in, so the
// returned tokens are persisted exactly like a login.
func (c *Client) Register(ctx context.Context, payload model.RegisterRequest) (*model.LoginResult, error) {
	if err := c.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	var result model.LoginResult
	if err := c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/api/register/", Body: payload, NoAuth: true}, &result); err != nil {
		return nil, err
	}

	if err := c.session.SetSession(result.Access, result.Refresh, &result.User); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	return &result, nil
}

// Logout invalidates the server-side session best-effort. Local sign-out is
// unconditional: state is cleared whether or not the server call succeeds,
// and a server failure is logged rather than returned.
func (c *Client) Logout(ctx context.Context) error {
	refresh := c.session.RefreshToken()

	defer func() {
		if err := c.session.Clear(); err != nil {
			c.log.Warn("failed to clear session state", "error", err)
		}
	}()

	req := Request{Method: http.MethodPost, Endpoint: "/api/logout/"}
	if refresh != "" {
		req.Body = map[string]string{"refresh": refresh}
	}

	if err := c.Do(ctx, req, nil); err != nil {
		c.log.Warn("server logout failed, signing out locally", "error", err)
	}

	return nil
}

// Refresh exchanges the stored refresh token for a new access token and
// overwrites only the stored access token.
func (c *Client) Refresh(ctx context.Context) error {
	refresh := c.session.RefreshToken()
	if refresh == "" {
		return apierror.New("no refresh token", http.StatusUnauthorized)
	}

	var result struct {
		Access string `json:"access"`
	}
	body := map[string]string{"refresh": refresh}
	if err := c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/api/token/refresh/", Body: body, NoAuth: true}, &result); err != nil {
		return err
	}

	return c.session.SetAccessToken(result.Access)
}

// refreshShared funnels concurrent refreshes into one network call. The
// shared call is detached from the triggering caller's context so one
// caller's cancellation cannot sign out every waiter; the HTTP client
// timeout still bounds it.
func (c *Client) refreshShared(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		return nil, c.Refresh(context.WithoutCancel(ctx))
	})

	return err
}

// IsAuthenticated reports whether a well-formed, unexpired access token is
// held. Never panics: malformed state reads as signed out.
func (c *Client) IsAuthenticated() bool {
	return c.session.Authenticated()
}

// CurrentUser returns the persisted user record, or nil when absent.
func (c *Client) CurrentUser() *model.User {
	return c.session.CurrentUser()
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	payload := model.PasswordResetRequest{Email: email}
	if err := c.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/api/password-reset/", Body: payload, NoAuth: true}, nil)
}

func (c *Client) VerifyPasswordResetOTP(ctx context.Context, email string, otp string) error {
	payload := model.PasswordResetVerifyRequest{Email: email, OTP: otp}
	if err := c.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/api/password-reset/verify-otp/", Body: payload, NoAuth: true}, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, email string, otp string, newPassword string) error {
	payload := model.PasswordResetConfirmRequest{Email: email, OTP: otp, NewPassword: newPassword}
	if err := c.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "/api/password-reset/confirm/", Body: payload, NoAuth: true}, nil)
}
