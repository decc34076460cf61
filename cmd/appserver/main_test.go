package main

import (
	"os"
	"testing"

	"powerauth-server/internal/config"
)

func TestResolveDSNPrecedence(t *testing.T) {
	cases := []struct {
		name string
		flag string
		env  string
		cfg  func() *config.Config
		want string
	}{
		{
			name: "flag wins",
			flag: "postgres://flag",
			env:  "postgres://env",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Database.DSN = "postgres://cfg"
				return cfg
			},
			want: "postgres://flag",
		},
		{
			name: "env when flag missing",
			flag: "",
			env:  "postgres://env",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Database.DSN = "postgres://cfg"
				return cfg
			},
			want: "postgres://env",
		},
		{
			name: "config dsn when flag/env empty",
			flag: "",
			env:  "",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Database.DSN = "postgres://cfg"
				return cfg
			},
			want: "postgres://cfg",
		},
		{
			name: "empty when nothing provided",
			flag: "",
			env:  "",
			cfg: func() *config.Config {
				return config.New()
			},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg()

			if tc.env != "" {
				if err := os.Setenv("DATABASE_URL", tc.env); err != nil {
					t.Fatalf("setenv: %v", err)
				}
				t.Cleanup(func() { os.Unsetenv("DATABASE_URL") })
			} else {
				os.Unsetenv("DATABASE_URL")
			}

			got := resolveDSN(tc.flag, cfg)
			if got != tc.want {
				t.Fatalf("resolveDSN() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDetermineAddr(t *testing.T) {
	cfg := config.New()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9090

	if got := determineAddr(":1234", cfg); got != ":1234" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got := determineAddr("", cfg); got != "127.0.0.1:9090" {
		t.Fatalf("expected config-derived address, got %q", got)
	}
	if got := determineAddr("", nil); got != ":8080" {
		t.Fatalf("expected default address, got %q", got)
	}
}

func TestResolveAdminCredentials(t *testing.T) {
	os.Unsetenv("POWERAUTH_ADMIN_USER")
	os.Unsetenv("POWERAUTH_ADMIN_PASS")

	if creds := resolveAdminCredentials("", ""); creds != nil {
		t.Fatalf("expected no credentials when unset, got %v", creds)
	}

	creds := resolveAdminCredentials("admin", "secret")
	if len(creds) != 1 || creds[0].Username != "admin" || creds[0].Password != "secret" {
		t.Fatalf("unexpected credentials: %v", creds)
	}
}

func TestDecodeMasterKey(t *testing.T) {
	hexKey := "00112233445566778899aabbccddeeff0011223344556677"[:32]
	key, err := decodeMasterKey(hexKey)
	if err != nil {
		t.Fatalf("decodeMasterKey: %v", err)
	}
	if len(key) != 16 {
		t.Fatalf("expected 16-byte key, got %d", len(key))
	}

	if _, err := decodeMasterKey("too-short"); err == nil {
		t.Fatalf("expected error for invalid key length")
	}
}
