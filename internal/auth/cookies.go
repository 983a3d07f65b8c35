package auth

import (
	"net/http"
	"time"
)

const refreshCookieName = "refresh_token"

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Path     string
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetRefreshTokenCookie stores the refresh token in an httpOnly cookie
// scoped to the auth routes.
func SetRefreshTokenCookie(w http.ResponseWriter, refreshToken string, expiresAt time.Time, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     cookiePath(config),
		Domain:   config.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// ClearRefreshTokenCookie clears the refresh token cookie
func ClearRefreshTokenCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     cookiePath(config),
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// GetRefreshTokenCookie retrieves the refresh token from cookies
func GetRefreshTokenCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

func cookiePath(config CookieConfig) string {
	if config.Path == "" {
		return "/api/auth"
	}
	return config.Path
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
