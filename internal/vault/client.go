package vault

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	vault "github.com/hashicorp/vault/api"
	"github.com/mitchellh/mapstructure"
)

const (
	approleSecretIDPath = "auth/approle/role/%s/secret-id"
	approleLoginPath    = "auth/approle/login"
)

var (
	// ErrClientInit indicates failure to initialize the Vault API client.
	ErrClientInit = errors.New("vault client initialization failed")
	// ErrSecretNotFound is returned when nothing is stored at the secret path.
	ErrSecretNotFound = errors.New("vault secret not found")
	// ErrInvalidSecret is returned when the secret lacks a connection string.
	ErrInvalidSecret = errors.New("vault secret has no connection_string")
)

type Option func(*config)

type config struct {
	address  string
	token    string
	roleID   string
	roleName string
}

// Client reads the data store connection settings from Vault.
type Client struct {
	api    *vault.Client
	config *config
}

// connectionSecret is the shape of the secret stored at the configured path.
type connectionSecret struct {
	ConnectionString string `mapstructure:"connection_string"`
}

func WithAddress(address string) Option {
	return func(c *config) {
		if address != "" {
			c.address = address
		}
	}
}

func WithToken(token string) Option {
	return func(c *config) {
		if token != "" {
			c.token = token
		}
	}
}

func WithAppRole(roleID, roleName string) Option {
	return func(c *config) {
		c.roleID = roleID
		c.roleName = roleName
	}
}

// NewClient creates and initializes a Vault Client using provided options.
// It will perform AppRole login if roleID and roleName are both set, otherwise
// a static token (from env or WithToken) is used.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &config{
		address: os.Getenv("VAULT_ADDR"),
		token:   os.Getenv("VAULT_TOKEN"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	apiCfg := vault.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, errors.Newf("%w: %v", ErrClientInit, apiCfg.Error)
	}
	if cfg.address != "" {
		apiCfg.Address = cfg.address
	}

	api, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, errors.Newf("%w: %v", ErrClientInit, err)
	}

	client := &Client{api: api, config: cfg}

	if cfg.token != "" {
		client.api.SetToken(cfg.token)
	}

	if cfg.roleID != "" && cfg.roleName != "" {
		if err := client.loginAppRole(ctx); err != nil {
			return nil, errors.Newf("%w: approle login: %v", ErrClientInit, err)
		}
	}

	return client, nil
}

// loginAppRole performs AppRole login using the configured roleID and roleName.
func (c *Client) loginAppRole(ctx context.Context) error {
	path := fmt.Sprintf(approleSecretIDPath, c.config.roleName)
	resp, err := c.api.Logical().WriteWithContext(ctx, path, nil)
	if err != nil {
		return errors.Wrap(err, "generate secret_id")
	}
	if resp == nil {
		return errors.Newf("empty response from %s", path)
	}
	sid, ok := resp.Data["secret_id"].(string)
	if !ok || sid == "" {
		return errors.Newf("no secret_id returned from %s", path)
	}

	loginData := map[string]any{
		"role_id":   c.config.roleID,
		"secret_id": sid,
	}
	loginResp, err := c.api.Logical().WriteWithContext(ctx, approleLoginPath, loginData)
	if err != nil {
		return errors.Wrap(err, "approle login request")
	}
	if loginResp == nil || loginResp.Auth == nil || loginResp.Auth.ClientToken == "" {
		return errors.New("no token in login response")
	}
	c.api.SetToken(loginResp.Auth.ClientToken)
	return nil
}

// ConnectionString reads the secret at path and returns its
// connection_string field. Both KV v1 and KV v2 layouts are accepted.
func (c *Client) ConnectionString(ctx context.Context, path string) (string, error) {
	secret, err := c.api.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	if secret == nil || secret.Data == nil {
		return "", errors.Newf("%w: %s", ErrSecretNotFound, path)
	}
	return decodeConnectionString(secret.Data)
}

// decodeConnectionString unwraps the KV v2 "data" envelope when present.
func decodeConnectionString(data map[string]any) (string, error) {
	if inner, ok := data["data"].(map[string]any); ok {
		data = inner
	}

	var s connectionSecret
	if err := mapstructure.Decode(data, &s); err != nil {
		return "", errors.Newf("%w: %v", ErrInvalidSecret, err)
	}
	if s.ConnectionString == "" {
		return "", ErrInvalidSecret
	}
	return s.ConnectionString, nil
}
