package backend

import (
	"context"
	"errors"
	"net/http"

	"manualbase/internal/models"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role,omitempty"`
}

type AuthResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        models.User `json:"user"`
}

func (r *AuthResponse) validate() error {
	if r.AccessToken == "" {
		return errors.New("missing access_token")
	}
	return r.User.Validate()
}

type userResponse struct{ models.User }

func (r *userResponse) validate() error { return r.User.Validate() }

// Login — POST /auth/login. Не-2xx превращается в *models.AuthError с
// сообщением сервера.
func (c *Client) Login(ctx context.Context, in Credentials) (AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", "login", in, "Login failed")
}

// Signup — POST /auth/signup, тот же контракт, что у Login.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (AuthResponse, error) {
	return c.authenticate(ctx, "/auth/signup", "signup", in, "Signup failed")
}

func (c *Client) authenticate(ctx context.Context, path, op string, body any, fallback string) (AuthResponse, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return AuthResponse{}, err
	}
	var out AuthResponse
	if err := c.do(req, op, &out); err != nil {
		return AuthResponse{}, asAuthError(err, fallback)
	}
	return out, nil
}

// Me — GET /auth/me с bearer-токеном.
func (c *Client) Me(ctx context.Context, token string) (models.User, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return models.User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	var out userResponse
	if err := c.do(req, "me", &out); err != nil {
		return models.User{}, asAuthError(err, "Failed to get user info")
	}
	return out.User, nil
}

// asAuthError переводит не-2xx ответ в AuthError; сбой транспорта и ответ
// неожиданной формы остаются NetworkError.
func asAuthError(err error, fallback string) error {
	var ne *models.NetworkError
	if !errors.As(err, &ne) || ne.Status < 300 {
		return err
	}
	msg := ne.Message
	if msg == "" || msg == httpErrorMessage(ne.Status) {
		msg = fallback
	}
	return &models.AuthError{Status: ne.Status, Message: msg}
}
