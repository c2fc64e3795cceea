package telegram

import "context"

// ExportSession returns the opaque session blob the operator persists as
// Executor.SessionBlob so the executor can reconnect without an interactive
// code next time (spec.md §3 "Lifecycle").
func (c *Client) ExportSession(ctx context.Context) (string, error) {
	var result struct {
		Session string `json:"session"`
	}
	if err := c.do(ctx, "auth.exportSession", nil, &result); err != nil {
		return "", err
	}
	return result.Session, nil
}

// SendCode starts the session-issuance flow (spec.md §6, supplemented in
// SPEC_FULL.md): requests a login code be sent to phone, returning the
// phone_code_hash SignIn needs.
func (c *Client) SendCode(ctx context.Context, phone string) (string, error) {
	var result struct {
		PhoneCodeHash string `json:"phone_code_hash"`
	}
	err := c.do(ctx, "auth.sendCode", map[string]any{
		"phone":            phone,
		"api_credentials":  c.apiCredentials,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.PhoneCodeHash, nil
}

// SignIn completes the login with the code the user received.
func (c *Client) SignIn(ctx context.Context, phone, code, codeHash string) error {
	return c.do(ctx, "auth.signIn", map[string]any{
		"phone":           phone,
		"code":            code,
		"phone_code_hash": codeHash,
	}, nil)
}

// CheckPassword completes 2FA sign-in when the account has a cloud
// password configured.
func (c *Client) CheckPassword(ctx context.Context, password string) error {
	return c.do(ctx, "auth.checkPassword", map[string]any{"password": password}, nil)
}

// Me returns the signed-in account's own identity, used by the
// session-issuance flow to learn the new executor's id.
func (c *Client) Me(ctx context.Context) (int64, string, error) {
	var result struct {
		UserID   int64  `json:"user_id"`
		Username string `json:"username"`
	}
	if err := c.do(ctx, "users.me", nil, &result); err != nil {
		return 0, "", err
	}
	return result.UserID, result.Username, nil
}
