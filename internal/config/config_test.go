package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("LINK_TOKEN_SECRET", "link-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	durations := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
		{"AccessTokenExpiry", cfg.Auth.AccessTokenExpiry, 15 * time.Minute},
		{"RefreshTokenExpiry", cfg.Auth.RefreshTokenExpiry, 30 * 24 * time.Hour},
		{"OTPExpiry", cfg.Auth.OTPExpiry, 5 * time.Minute},
		{"MagicLinkExpiry", cfg.Auth.MagicLinkExpiry, 15 * time.Minute},
		{"PasswordResetExpiry", cfg.Auth.PasswordResetExpiry, 30 * time.Minute},
		{"ConfirmationExpiry", cfg.Auth.ConfirmationExpiry, 24 * time.Hour},
		{"StorageTimeout", cfg.Auth.StorageTimeout, 3 * time.Second},
	}

	for _, tt := range durations {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Auth.OTPLength != 6 {
		t.Errorf("OTPLength: got %d, want 6", cfg.Auth.OTPLength)
	}
	if cfg.Auth.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts: got %d, want 5", cfg.Auth.OTPMaxAttempts)
	}
	if cfg.Auth.BcryptCost != 12 {
		t.Errorf("BcryptCost: got %d, want 12", cfg.Auth.BcryptCost)
	}
	if cfg.Server.AuthRateLimit != 10 || cfg.Server.UserRateLimit != 120 {
		t.Errorf("rate limits: got auth=%d user=%d", cfg.Server.AuthRateLimit, cfg.Server.UserRateLimit)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr: got %q", cfg.Redis.Addr)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("OTP_LENGTH", "8")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("APP_BASE_URL", "https://cadence.example.com/")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout: got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.OTPLength != 8 || cfg.Auth.OTPMaxAttempts != 3 {
		t.Errorf("OTP settings: got length=%d attempts=%d", cfg.Auth.OTPLength, cfg.Auth.OTPMaxAttempts)
	}
	if cfg.Email.AppBaseURL != "https://cadence.example.com" {
		t.Errorf("AppBaseURL: got %q", cfg.Email.AppBaseURL)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "10.0.0.2" {
		t.Errorf("TrustedProxies: got %v", cfg.Server.TrustedProxies)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout with invalid value: got %v, want %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{
			name:    "missing link secret",
			env:     map[string]string{"LINK_TOKEN_SECRET": ""},
			wantMsg: "LINK_TOKEN_SECRET is required",
		},
		{
			name:    "shared secrets",
			env:     map[string]string{"LINK_TOKEN_SECRET": "test-secret-32-characters-long!"},
			wantMsg: "must differ",
		},
		{
			name:    "short secret in production",
			env:     map[string]string{"ENV": "production", "JWT_SECRET": "only-twenty-chars-xx"},
			wantMsg: "at least 32 characters",
		},
		{
			name:    "otp too short",
			env:     map[string]string{"OTP_LENGTH": "4"},
			wantMsg: "OTP_LENGTH",
		},
		{
			name: "low bcrypt cost in production",
			env: map[string]string{
				"ENV":               "production",
				"JWT_SECRET":        "production-access-secret-0123456789abcdef",
				"LINK_TOKEN_SECRET": "production-link-secret-0123456789abcdef",
				"BCRYPT_COST":       "4",
			},
			wantMsg: "BCRYPT_COST",
		},
		{
			name:    "missing db password",
			env:     map[string]string{"DB_PASSWORD": ""},
			wantMsg: "DB_PASSWORD is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("Load() error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}
