package catalog_test

import (
	"context"
	"errors"
	"testing"

	"magpie/internal/catalog"
	"magpie/internal/testsupport"
)

func TestRegisterAssignsRoles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, err := store.Register(ctx, catalog.Registration{Phone: "13800000000", Password: "secret", Department: "设计部"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if first.Role != catalog.RoleSuperAdmin {
		t.Fatalf("expected first user to be super admin, got %q", first.Role)
	}
	second, err := store.Register(ctx, catalog.Registration{Phone: "13900000000", Password: "secret", Department: "市场部", Nickname: "小王"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if second.Role != catalog.RoleUser {
		t.Fatalf("expected second user to be plain user, got %q", second.Role)
	}

	_, err = store.Register(ctx, catalog.Registration{Phone: "13900000000", Password: "secret", Department: "市场部"})
	if !errors.Is(err, catalog.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate phone, got %v", err)
	}
	_, err = store.Register(ctx, catalog.Registration{Phone: "13700000000", Password: "secret", Department: "法务部"})
	if !errors.Is(err, catalog.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown department, got %v", err)
	}
	_, err = store.Register(ctx, catalog.Registration{Phone: "13700000000", Password: "x", Department: "设计部"})
	if !errors.Is(err, catalog.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for short password, got %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestAuthenticate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Register(ctx, catalog.Registration{Phone: "admin", Password: "hunter22", Department: "研发部"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	user, err := store.Authenticate(ctx, "admin", "hunter22")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.Department != "研发部" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if _, err := store.Authenticate(ctx, "admin", "wrong"); !errors.Is(err, catalog.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.Authenticate(ctx, "nobody", "hunter22"); !errors.Is(err, catalog.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown phone, got %v", err)
	}

	if err := store.ChangePassword(ctx, "admin", "hunter22", "hunter23"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := store.Authenticate(ctx, "admin", "hunter23"); err != nil {
		t.Fatalf("Authenticate with new password failed: %v", err)
	}
}

func TestProfileAndRoles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	owner, err := store.Register(ctx, catalog.Registration{Phone: "100", Password: "secret", Department: "设计部"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	member, err := store.Register(ctx, catalog.Registration{Phone: "200", Password: "secret", Department: "设计部"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	nick := " 阿花 "
	updated, err := store.UpdateProfile(ctx, member.Phone, catalog.ProfileUpdate{Nickname: &nick})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Nickname != "阿花" || updated.Department != "设计部" {
		t.Fatalf("unexpected profile: %+v", updated)
	}

	if _, err := store.SetRole(ctx, owner.Phone, catalog.RoleUser); !errors.Is(err, catalog.ErrLastSuperAdmin) {
		t.Fatalf("expected ErrLastSuperAdmin, got %v", err)
	}
	if _, err := store.SetRole(ctx, member.Phone, "root"); !errors.Is(err, catalog.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown role, got %v", err)
	}
	promoted, err := store.SetRole(ctx, member.Phone, catalog.RoleSuperAdmin)
	if err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if !promoted.Role.IsAdmin() {
		t.Fatalf("expected admin role, got %q", promoted.Role)
	}
	if _, err := store.SetRole(ctx, owner.Phone, catalog.RoleAdmin); err != nil {
		t.Fatalf("expected demotion to succeed with another super admin, got %v", err)
	}
	if _, err := store.GetUser(ctx, "999"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
