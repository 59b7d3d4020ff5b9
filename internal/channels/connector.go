// Package channels manages the Instagram/WhatsApp/Messenger connections for
// the inbox: the Meta OAuth connect flow and the per-channel integration
// status the settings wizard displays.
package channels

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/socialdeskapp/socialdesk/internal/config"
	"github.com/socialdeskapp/socialdesk/internal/db"
	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/models"
	"github.com/socialdeskapp/socialdesk/internal/observability"
)

var (
	ErrConnectUnavailable = errors.New("channel oauth is not configured")
	ErrInvalidCode        = errors.New("oauth code is required")
	ErrCodeExchange       = errors.New("failed to exchange oauth code")
	ErrAccountLookup      = errors.New("failed to fetch connected account")
	ErrGenerateState      = errors.New("failed to generate oauth state")
)

const graphBaseURL = "https://graph.facebook.com/v19.0"

// channelScopes maps each inbox channel to the Meta permissions it needs.
var channelScopes = map[models.Channel][]string{
	models.ChannelInstagram: {"instagram_basic", "instagram_manage_messages"},
	models.ChannelWhatsApp:  {"whatsapp_business_messaging", "whatsapp_business_management"},
	models.ChannelMessenger: {"pages_messaging", "pages_show_list"},
}

type Connector struct {
	store        *db.ChannelStore
	oauthConfig  *oauth2.Config
	graphBaseURL string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewConnector(cfg *config.Config, store *db.ChannelStore, logger *slog.Logger) (*Connector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("connector config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("connector channel store is required")
	}

	var oauthConfig *oauth2.Config
	if cfg.MetaAppID != "" && cfg.MetaAppSecret != "" {
		oauthConfig = &oauth2.Config{
			ClientID:     cfg.MetaAppID,
			ClientSecret: cfg.MetaAppSecret,
			Endpoint:     facebook.Endpoint,
			RedirectURL:  cfg.BaseURL + "/channels/callback",
		}
	}

	return &Connector{
		store:        store,
		oauthConfig:  oauthConfig,
		graphBaseURL: graphBaseURL,
		httpClient:   observability.NewHTTPClient(10 * time.Second),
		logger:       logger,
	}, nil
}

type StartConnectResult struct {
	State            string
	AuthorizationURL string
}

// StartConnect begins the OAuth flow for one channel. The returned state must
// come back unchanged on the callback.
func (c *Connector) StartConnect(ctx context.Context, channel models.Channel) (*StartConnectResult, error) {
	if c.oauthConfig == nil {
		return nil, ErrConnectUnavailable
	}
	if !channel.Valid() {
		return nil, lifecycle.NewInvalidStateError(string(channel))
	}

	state, err := generateState()
	if err != nil {
		return nil, err
	}

	scopes := make([]oauth2.AuthCodeOption, 0, 1)
	if scope := channelScopes[channel]; len(scope) > 0 {
		scopes = append(scopes, oauth2.SetAuthURLParam("scope", strings.Join(scope, ",")))
	}

	authURL := c.oauthConfig.AuthCodeURL(state, scopes...)
	c.logger.Info("starting channel connect", "channel", channel)

	return &StartConnectResult{State: state, AuthorizationURL: authURL}, nil
}

// CompleteConnect exchanges the callback code, resolves the connected account
// name from the Graph API, and stores the encrypted token.
func (c *Connector) CompleteConnect(ctx context.Context, channel models.Channel, code string) error {
	if c.oauthConfig == nil {
		return ErrConnectUnavailable
	}
	if !channel.Valid() {
		return lifecycle.NewInvalidStateError(string(channel))
	}
	if code == "" {
		return ErrInvalidCode
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeExchange, err)
	}

	accountName, err := c.fetchAccountName(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	if err := c.store.Upsert(ctx, db.ChannelConnection{
		Channel:        channel,
		AccountName:    accountName,
		AccessToken:    token.AccessToken,
		TokenExpiresAt: token.Expiry,
	}); err != nil {
		return fmt.Errorf("failed to store channel connection: %w", err)
	}

	c.logger.Info("channel connected", "channel", channel, "account", accountName)
	return nil
}

// Status describes one channel for the integration wizard.
type Status struct {
	Channel     models.Channel `json:"channel"`
	Connected   bool           `json:"connected"`
	AccountName string         `json:"accountName,omitempty"`
	ConnectedAt *time.Time     `json:"connectedAt,omitempty"`
	Expired     bool           `json:"expired,omitempty"`
}

// StatusList reports every channel, connected or not, in taxonomy order.
func (c *Connector) StatusList(ctx context.Context) ([]Status, error) {
	connections, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel connections: %w", err)
	}

	byChannel := make(map[models.Channel]*db.ChannelConnection, len(connections))
	for _, conn := range connections {
		byChannel[conn.Channel] = conn
	}

	now := time.Now()
	statuses := make([]Status, 0, len(models.Channels()))
	for _, channel := range models.Channels() {
		status := Status{Channel: channel}
		if conn, ok := byChannel[channel]; ok {
			status.Connected = true
			status.AccountName = conn.AccountName
			connectedAt := conn.ConnectedAt
			status.ConnectedAt = &connectedAt
			status.Expired = !conn.TokenExpiresAt.IsZero() && conn.TokenExpiresAt.Before(now)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (c *Connector) Disconnect(ctx context.Context, channel models.Channel) error {
	if !channel.Valid() {
		return lifecycle.NewInvalidStateError(string(channel))
	}
	if err := c.store.Delete(ctx, channel); err != nil {
		return fmt.Errorf("failed to disconnect channel: %w", err)
	}
	c.logger.Info("channel disconnected", "channel", channel)
	return nil
}

type graphAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Connector) fetchAccountName(ctx context.Context, accessToken string) (string, error) {
	endpoint := c.graphBaseURL + "/me?fields=id,name&access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAccountLookup, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAccountLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: graph api returned %d: %s", ErrAccountLookup, resp.StatusCode, string(body))
	}

	var account graphAccount
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAccountLookup, err)
	}
	if account.Name == "" {
		return "", fmt.Errorf("%w: account name missing", ErrAccountLookup)
	}
	return account.Name, nil
}

func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerateState, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

