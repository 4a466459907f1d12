package main

import (
	"path/filepath"
	"testing"

	"github.com/meszmate/conference/internal/config"
	"github.com/meszmate/conference/internal/storage/sqlite"
	"github.com/meszmate/conference/internal/ui/theme"
)

func writeAccounts(t *testing.T, accounts ...config.Account) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	paths, err := config.GetPaths()
	if err != nil {
		t.Fatalf("GetPaths returned error: %v", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	if err := config.SaveAccounts(&config.AccountsConfig{Accounts: accounts}); err != nil {
		t.Fatalf("SaveAccounts returned error: %v", err)
	}
}

func TestSelectAccount(t *testing.T) {
	writeAccounts(t,
		config.Account{JID: "first@test.com", Password: "a"},
		config.Account{JID: "second@test.com", Password: "b"},
	)

	tests := []struct {
		jid        string
		remembered string
		want       string
	}{
		{"", "", "first@test.com"},
		{"", "second@test.com", "second@test.com"},
		{"", "gone@test.com", "first@test.com"},
		{"first@test.com", "second@test.com", "first@test.com"},
	}

	for _, tt := range tests {
		acc, err := selectAccount(tt.jid, tt.remembered, "", "", 5222)
		if err != nil {
			t.Fatalf("jid=%q remembered=%q: unexpected error %v", tt.jid, tt.remembered, err)
		}
		if acc.JID != tt.want {
			t.Fatalf("jid=%q remembered=%q: expected %s, got %s", tt.jid, tt.remembered, tt.want, acc.JID)
		}
	}

	if _, err := selectAccount("missing@test.com", "", "", "", 5222); err == nil {
		t.Fatalf("expected an error for an unknown account")
	}

	acc, err := selectAccount("", "", "", "xmpp.test.com", 5222)
	if err != nil {
		t.Fatalf("selectAccount returned error: %v", err)
	}
	if acc.Server != "xmpp.test.com" {
		t.Fatalf("expected the server override, got %q", acc.Server)
	}
}

func TestSelectSessionAccount(t *testing.T) {
	writeAccounts(t)

	acc, err := selectAccount("temp@test.com", "", "secret", "", 5223)
	if err != nil {
		t.Fatalf("selectAccount returned error: %v", err)
	}
	if !acc.Session || acc.Port != 5223 || acc.Password != "secret" {
		t.Fatalf("unexpected session account %+v", acc)
	}

	if _, err := selectAccount("", "", "", "", 5222); err == nil {
		t.Fatalf("expected an error without any account")
	}
}

func TestSelectTheme(t *testing.T) {
	themes := theme.NewManager(t.TempDir())

	if err := selectTheme(themes, "", "nord"); err != nil || themes.CurrentName() != "nord" {
		t.Fatalf("expected the remembered theme, got %s (%v)", themes.CurrentName(), err)
	}
	if err := selectTheme(themes, "", "vanished"); err != nil || themes.CurrentName() != "default" {
		t.Fatalf("expected the default theme, got %s (%v)", themes.CurrentName(), err)
	}
	if err := selectTheme(themes, "missing", "nord"); err == nil {
		t.Fatalf("expected an error for an unknown requested theme")
	}
}

func TestState(t *testing.T) {
	if got := loadState(nil, stateTheme); got != "" {
		t.Fatalf("expected no state without storage, got %q", got)
	}
	saveState(nil, stateTheme, "nord")

	store, err := sqlite.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	saveState(store, stateAccount, "me@test.com")
	if got := loadState(store, stateAccount); got != "me@test.com" {
		t.Fatalf("expected me@test.com, got %q", got)
	}
}
