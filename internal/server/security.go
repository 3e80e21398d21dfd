package server

import "net/http"

// The gateway serves JSON to API clients, so the default policy denies every
// browser capability outright.
const (
	defaultContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"
	defaultFrameOptions          = "DENY"
	defaultReferrerPolicy        = "no-referrer"
	defaultPermissionsPolicy     = "camera=(), microphone=(), geolocation=()"
	defaultContentTypeOptions    = "nosniff"
)

// SecurityConfig overrides individual hardening headers. Zero-valued fields
// keep the locked-down defaults.
type SecurityConfig struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ReferrerPolicy        string
	PermissionsPolicy     string
	ContentTypeOptions    string
}

func (cfg SecurityConfig) withDefaults() SecurityConfig {
	if cfg.ContentSecurityPolicy == "" {
		cfg.ContentSecurityPolicy = defaultContentSecurityPolicy
	}
	if cfg.FrameOptions == "" {
		cfg.FrameOptions = defaultFrameOptions
	}
	if cfg.ReferrerPolicy == "" {
		cfg.ReferrerPolicy = defaultReferrerPolicy
	}
	if cfg.PermissionsPolicy == "" {
		cfg.PermissionsPolicy = defaultPermissionsPolicy
	}
	if cfg.ContentTypeOptions == "" {
		cfg.ContentTypeOptions = defaultContentTypeOptions
	}
	return cfg
}

// securityHeadersMiddleware stamps the hardening headers on every response,
// including error paths short-circuited by inner middleware.
func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	effective := cfg.withDefaults()
	headers := [...][2]string{
		{"Content-Security-Policy", effective.ContentSecurityPolicy},
		{"X-Frame-Options", effective.FrameOptions},
		{"X-Content-Type-Options", effective.ContentTypeOptions},
		{"Referrer-Policy", effective.ReferrerPolicy},
		{"Permissions-Policy", effective.PermissionsPolicy},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, header := range headers {
			w.Header().Set(header[0], header[1])
		}
		next.ServeHTTP(w, r)
	})
}
