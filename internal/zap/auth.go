package zap

import (
	"context"
	"net/url"
	"strings"

	"github.com/raysh454/zapscan/internal/utils"
)

const (
	scanUserName    = "scan-user"
	scanSessionName = "scan-session"
)

// AuthSettings configures form-based login for a front-end scan.
type AuthSettings struct {
	ContextID        string
	TargetURL        string
	LoginURL         string
	Username         string
	Password         string
	LoginRequestData string
}

// LoginBody returns the form body posted to the login URL. A supplied
// template has its {username} and {password} placeholders replaced;
// without one the body is username=<u>&password=<p>.
func LoginBody(s AuthSettings) string {
	if s.LoginRequestData == "" {
		return url.Values{"username": {s.Username}, "password": {s.Password}}.Encode()
	}
	r := strings.NewReplacer(
		"{username}", url.QueryEscape(s.Username),
		"{password}", url.QueryEscape(s.Password),
	)
	return r.Replace(s.LoginRequestData)
}

// ConfigureAuthentication sets form-based authentication on the context,
// creates and enables a user with the given credentials, and opens an
// empty HTTP session for the target site. It returns the user id.
func (c *Client) ConfigureAuthentication(ctx context.Context, s AuthSettings) (string, error) {
	methodParams := "loginUrl=" + url.QueryEscape(s.LoginURL) + "&loginRequestData=" + url.QueryEscape(LoginBody(s))
	if _, err := c.action(ctx, "authentication", "setAuthenticationMethod", url.Values{
		"contextId":              {s.ContextID},
		"authMethodName":         {"formBasedAuthentication"},
		"authMethodConfigParams": {methodParams},
	}); err != nil {
		return "", err
	}

	res, err := c.action(ctx, "users", "newUser", url.Values{
		"contextId": {s.ContextID},
		"name":      {scanUserName},
	})
	if err != nil {
		return "", err
	}
	userID := stringField(res, "userId")

	credParams := url.Values{"username": {s.Username}, "password": {s.Password}}.Encode()
	if _, err := c.action(ctx, "users", "setAuthenticationCredentials", url.Values{
		"contextId":                   {s.ContextID},
		"userId":                      {userID},
		"authCredentialsConfigParams": {credParams},
	}); err != nil {
		return "", err
	}

	if _, err := c.action(ctx, "users", "setUserEnabled", url.Values{
		"contextId": {s.ContextID},
		"userId":    {userID},
		"enabled":   {"true"},
	}); err != nil {
		return "", err
	}

	site, err := utils.HostPort(s.TargetURL)
	if err != nil {
		return "", err
	}
	if _, err := c.action(ctx, "httpSessions", "createEmptySession", url.Values{
		"site":    {site},
		"session": {scanSessionName},
	}); err != nil {
		return "", err
	}
	return userID, nil
}
