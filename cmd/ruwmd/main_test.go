package main

import (
	"testing"

	"github.com/watermeter/ruwmd/internal/config"
	"github.com/watermeter/ruwmd/internal/webbroker"
)

func TestDataDirFor(t *testing.T) {
	if got := dataDirFor(config.Config{}, "/cfg"); got != "/cfg" {
		t.Fatalf("dataDirFor with no override: got %q, want /cfg", got)
	}
	cfg := config.Config{DataDir: "/var/lib/ruwmd"}
	if got := dataDirFor(cfg, "/cfg"); got != "/var/lib/ruwmd" {
		t.Fatalf("dataDirFor with override: got %q, want /var/lib/ruwmd", got)
	}
}

func TestAuthenticator(t *testing.T) {
	auth := authenticator(config.AuthConfig{
		AdminUsername: "admin",
		AdminPassword: "secret",
		UserUsername:  "reader",
		UserPassword:  "readonly",
	})

	cases := []struct {
		user, pass string
		wantRole   webbroker.Role
		wantOK     bool
	}{
		{"admin", "secret", webbroker.RoleAdmin, true},
		{"reader", "readonly", webbroker.RoleUser, true},
		{"reader", "wrong", webbroker.RoleNone, false},
		{"nobody", "", webbroker.RoleNone, false},
	}
	for _, c := range cases {
		role, ok := auth(c.user, c.pass)
		if role != c.wantRole || ok != c.wantOK {
			t.Errorf("authenticator(%q, %q) = (%v, %v), want (%v, %v)", c.user, c.pass, role, ok, c.wantRole, c.wantOK)
		}
	}
}

func TestAuthenticatorEmptyCredentialsNeverMatch(t *testing.T) {
	auth := authenticator(config.AuthConfig{})
	if _, ok := auth("", ""); ok {
		t.Fatal("authenticator with unset credentials must not authenticate an empty username/password pair")
	}
}
