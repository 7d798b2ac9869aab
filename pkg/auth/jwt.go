// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultRefreshInterval is the minimum JWKS refresh period.
const DefaultRefreshInterval = 15 * time.Minute

// Config configures bearer token validation.
type Config struct {
	Enabled         bool          `yaml:"enabled,omitempty" mapstructure:"enabled" json:"enabled,omitempty"`
	JWKSURL         string        `yaml:"jwks_url,omitempty" mapstructure:"jwks_url" json:"jwks_url,omitempty"`
	Issuer          string        `yaml:"issuer,omitempty" mapstructure:"issuer" json:"issuer,omitempty"`
	Audience        string        `yaml:"audience,omitempty" mapstructure:"audience" json:"audience,omitempty"`
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty" mapstructure:"refresh_interval" json:"refresh_interval,omitempty"`
	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration `yaml:"leeway,omitempty" mapstructure:"leeway" json:"leeway,omitempty"`
	// SkipPaths are served without a token. Discovery and health are
	// always public.
	SkipPaths []string `yaml:"skip_paths,omitempty" mapstructure:"skip_paths" json:"skip_paths,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
}

// Validate checks the Config for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWKSURL == "" {
		return fmt.Errorf("jwks_url is required when auth is enabled")
	}
	u, err := url.Parse(c.JWKSURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("jwks_url must be an absolute http(s) URL, got %q", c.JWKSURL)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must not be negative")
	}
	return nil
}

// TokenValidator turns a raw bearer token into claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// JWTValidator verifies tokens against a cached, auto-refreshed JWKS.
type JWTValidator struct {
	cfg    Config
	cache  *jwk.Cache
	cancel context.CancelFunc
}

// NewJWTValidator registers the JWKS URL and fetches it once so that a
// bad configuration fails at startup.
func NewJWTValidator(ctx context.Context, cfg Config) (*JWTValidator, error) {
	cfg.SetDefaults()

	cacheCtx, cancel := context.WithCancel(context.Background())
	cache := jwk.NewCache(cacheCtx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.RefreshInterval)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}
	return &JWTValidator{cfg: cfg, cache: cache, cancel: cancel}, nil
}

// NewFromConfig returns nil when auth is disabled.
func NewFromConfig(ctx context.Context, cfg Config) (*JWTValidator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	return NewJWTValidator(ctx, cfg)
}

// registered claims that never land in Claims.Custom
var reservedClaims = map[string]bool{
	jwt.SubjectKey: true, jwt.IssuerKey: true, jwt.AudienceKey: true,
	jwt.ExpirationKey: true, jwt.IssuedAtKey: true, jwt.NotBeforeKey: true,
	"email": true, "role": true, "tenant_id": true,
}

// ValidateToken checks signature, expiry, issuer and audience.
func (v *JWTValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keyset), jwt.WithValidate(true)}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if v.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(v.cfg.Leeway))
	}

	parsed, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	all, err := parsed.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := &Claims{Subject: parsed.Subject(), Custom: make(map[string]any)}
	claims.Email, _ = all["email"].(string)
	claims.Role, _ = all["role"].(string)
	claims.TenantID, _ = all["tenant_id"].(string)
	for k, val := range all {
		if !reservedClaims[k] {
			claims.Custom[k] = val
		}
	}
	return claims, nil
}

// Close stops the background JWKS refresh.
func (v *JWTValidator) Close() {
	v.cancel()
}

var _ TokenValidator = (*JWTValidator)(nil)
