package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
)

// GoogleIssuer is Google's OpenID Connect issuer.
const GoogleIssuer = "https://accounts.google.com"

// Identity is what the login flow needs from a verified ID token.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Picture  string
}

// Provider starts and completes an authorization code flow.
type Provider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// OIDCProvider is a Provider backed by a zitadel relying party.
type OIDCProvider struct {
	name  string
	party rp.RelyingParty
}

type ProviderConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// NewOIDCProvider runs discovery against the issuer and returns a provider.
func NewOIDCProvider(ctx context.Context, name string, cfg ProviderConfig) (*OIDCProvider, error) {
	if cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("oidc: client id and redirect url are required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, oidc.ScopeEmail, oidc.ScopeProfile}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	party, err := rp.NewRelyingPartyOIDC(ctx,
		cfg.Issuer,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.RedirectURL,
		cfg.Scopes,
		rp.WithHTTPClient(cfg.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}
	return &OIDCProvider{name: name, party: party}, nil
}

// NewGoogleProvider is NewOIDCProvider for accounts.google.com.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURL string) (*OIDCProvider, error) {
	return NewOIDCProvider(ctx, "google", ProviderConfig{
		Issuer:       GoogleIssuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	})
}

func (p *OIDCProvider) AuthURL(state string) string {
	return rp.AuthURL(state, p.party)
}

// Exchange trades the code for tokens and returns the verified identity.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, p.party)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	claims := tokens.IDTokenClaims
	if claims == nil {
		return nil, fmt.Errorf("code exchange: no id token")
	}
	return &Identity{
		Provider: p.name,
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Picture:  claims.Picture,
	}, nil
}
