package auth_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/NicolasHaas/gorelay/pkg/auth"
	"github.com/NicolasHaas/gorelay/pkg/model"

	"github.com/google/go-cmp/cmp"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	seed := model.Account{Login: "mod", Password: "modpass", DisplayName: "moderator", Role: model.RoleAdmin}

	tcases := map[string]struct {
		cfg       auth.Config
		expectErr bool
	}{
		"memory":          {cfg: auth.Config{Backend: auth.BackendMemory, Accounts: []model.Account{seed}}},
		"default_backend": {cfg: auth.Config{Accounts: []model.Account{seed}}},
		"sqlite": {cfg: auth.Config{
			Backend:    auth.BackendSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "open.db"),
			Accounts:   []model.Account{seed},
		}},
		"unknown": {cfg: auth.Config{Backend: "ldap"}, expectErr: true},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			p, err := auth.Open(context.Background(), tc.cfg)
			if tc.expectErr {
				if err == nil {
					t.Fatal("Open: expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer p.Close()

			got, err := p.Authenticate(context.Background(), "mod", "modpass")
			if err != nil {
				t.Fatalf("seed account: %v", err)
			}
			if got != "moderator" {
				t.Errorf("seed display name = %q, want moderator", got)
			}
			elevated, err := p.PrivilegeElevation(context.Background(), "moderator")
			if err != nil || !elevated {
				t.Errorf("seed admin elevation = (%v, %v), want (true, nil)", elevated, err)
			}
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	first := auth.NewSQLite(path)
	if err := first.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	mustRegister(t, first, "alice", "secret1", "Alice")
	if err := first.Ban(ctx, "Alice"); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Re-running migrations on an existing file must be harmless.
	second := auth.NewSQLite(path)
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	defer second.Close()

	if _, err := second.Authenticate(ctx, "alice", "secret1"); !errors.Is(err, auth.ErrAccountBanned) {
		t.Errorf("Authenticate after reopen: expected ErrAccountBanned, got %v", err)
	}
}

func TestSQLiteSeedDoesNotOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed.db")
	ctx := context.Background()

	first := auth.NewSQLite(path, auth.DefaultAdmin)
	if err := first.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := first.ChangeNick(ctx, "admin", "root"); err != nil {
		t.Fatalf("ChangeNick: %v", err)
	}
	_ = first.Close()

	second := auth.NewSQLite(path, auth.DefaultAdmin)
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	defer second.Close()

	got, err := second.Authenticate(ctx, "cat", "godmode")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got != "root" {
		t.Errorf("seeding overwrote the renamed account: got %q, want root", got)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		err  error
		want string
	}{
		"invalid":    {err: auth.ErrInvalidCredentials, want: auth.MsgInvalidCredentials},
		"banned":     {err: auth.ErrAccountBanned, want: auth.MsgAccountBanned},
		"connected":  {err: auth.ErrNameAlreadyConnected, want: auth.MsgNameAlreadyConnected},
		"login":      {err: auth.ErrLoginTaken, want: auth.MsgLoginTaken},
		"name":       {err: auth.ErrDisplayNameTaken, want: auth.MsgDisplayNameTaken},
		"wrapped":    {err: fmt.Errorf("outer: %w", auth.ErrAccountBanned), want: auth.MsgAccountBanned},
		"backend":    {err: errors.New("dial tcp: connection refused"), want: auth.MsgInvalidCredentials},
		"constraint": {err: fmt.Errorf("auth: register: %w", &model.ConstraintError{Field: "login"}), want: "Registration failed: login must be at least 3 characters"},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, auth.Message(tc.err)); diff != "" {
				t.Errorf("Message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReason(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		err  error
		want string
	}{
		"nil":        {err: nil, want: "ok"},
		"invalid":    {err: auth.ErrInvalidCredentials, want: "invalid_credentials"},
		"constraint": {err: &model.ConstraintError{Field: "password"}, want: "constraint_password"},
		"backend":    {err: errors.New("boom"), want: "backend"},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			if got := auth.Reason(tc.err); got != tc.want {
				t.Errorf("Reason(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
