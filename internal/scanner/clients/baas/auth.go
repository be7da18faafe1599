package baas

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/scanner/types"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

// SignUp registers a user and returns it. An answer saying the user is
// already registered counts as success; the returned user is nil then.
func (c *Client) SignUp(ctx context.Context, email, password string, data map[string]any) (*User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(data) > 0 {
		body["data"] = data
	}

	req, err := c.newRequest(http.MethodPost, authPath+"/signup", nil, c.Anon()).WithJSON(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isAlreadyRegistered(apiErr) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "signup failed")
	}

	// The answer is the user itself, or a session when sign-ups are
	// confirmed automatically.
	var answer struct {
		User
		Nested *User `json:"user"`
	}
	if err := types.DecodeJSON(resp, &answer); err != nil {
		return nil, err
	}

	if answer.Nested != nil && answer.Nested.ID != "" {
		return answer.Nested, nil
	}
	return &answer.User, nil
}

func isAlreadyRegistered(err *APIError) bool {
	if err.StatusCode != http.StatusBadRequest && err.StatusCode != http.StatusUnprocessableEntity {
		return false
	}

	body := strings.ToLower(err.Body)
	return strings.Contains(body, "already registered") || strings.Contains(body, "already exists")
}

// SignIn performs a password grant and returns the session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	query := url.Values{"grant_type": []string{"password"}}

	req, err := c.newRequest(http.MethodPost, authPath+"/token", query, c.Anon()).
		WithJSON(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "sign-in failed")
	}

	var session Session
	if err := types.DecodeJSON(resp, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

// CurrentUser asks the auth service who the bearer of creds is.
func (c *Client) CurrentUser(ctx context.Context, creds Credentials) (*User, error) {
	resp, err := c.do(ctx, c.newRequest(http.MethodGet, authPath+"/user", nil, creds))
	if err != nil {
		return nil, err
	}

	var user User
	if err := types.DecodeJSON(resp, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// UpdateUser changes attributes of the signed in user, e.g. its password.
func (c *Client) UpdateUser(ctx context.Context, creds Credentials, attributes map[string]any) (*User, error) {
	req, err := c.newRequest(http.MethodPut, authPath+"/user", nil, creds).WithJSON(attributes)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var user User
	if err := types.DecodeJSON(resp, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// DeleteUser removes an auth user through the admin API. It needs the
// service key. A user that is already gone is not an error.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	creds, ok := c.Service()
	if !ok {
		return errors.New("deleting a user needs the service key")
	}
	if userID == "" {
		return errors.New("empty user id")
	}

	_, err := c.do(ctx, c.newRequest(http.MethodDelete, authPath+"/admin/users/"+url.PathEscape(userID), nil, creds))
	if StatusCode(err) == http.StatusNotFound {
		return nil
	}

	return err
}

// TokenSubject returns the sub claim of an access token. The signature is
// not verified: the harness only checks that the token belongs to the
// user it was issued for.
func TokenSubject(accessToken string) (string, error) {
	token, err := jwt.ParseInsecure([]byte(accessToken))
	if err != nil {
		return "", errors.Wrap(err, "couldn't parse access token")
	}

	sub, ok := token.Subject()
	if !ok || sub == "" {
		return "", errors.New("access token has no subject")
	}

	return sub, nil
}
