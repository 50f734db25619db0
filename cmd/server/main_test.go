package main

import (
	"strings"
	"testing"

	"laundrypos/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"short secret", config.Config{AuthSecret: "short", ManagerPIN: "739154"}, "AUTH_SECRET"},
		{"short pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "7391"}, "at least 6"},
		{"letters in pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "73a154"}, "digits only"},
		{"common pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "123123"}, "common"},
		{"repeated digit", config.Config{AuthSecret: strongSecret, ManagerPIN: "4444444"}, "all-same-digit"},
		{"descending", config.Config{AuthSecret: strongSecret, ManagerPIN: "987654"}, "sequential"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(tc.cfg)
			if err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
