// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"testing"
)

func newTestService() (*accountService, *mockAccountRepository, *recordingNotifier) {
	repo, n := newMockAccountRepository(), &recordingNotifier{}
	return newAccountService(repo, n, nil), repo, n
}

func registration(login, email string, roles ...string) registerRequest {
	if len(roles) == 0 {
		roles = []string{roleUser}
	}
	return registerRequest{
		Login:       login,
		Password:    "password",
		FirstName:   "First",
		LastName:    "Last",
		Email:       email,
		Activated:   true,
		LangKey:     "en",
		Authorities: roles,
	}
}

func TestRegister(t *testing.T) {
	svc, repo, n := newTestService()
	ctx := context.Background()

	acct, err := svc.register(ctx, registration("joe", "joe@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if acct.ID == "" || acct.Login != "joe" || acct.Email != "joe@example.com" {
		t.Errorf("got %#v", acct)
	}
	if !acct.Activated {
		t.Error("expected activated account")
	}

	stored, err := repo.lookupByLogin(ctx, "joe")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Login != "joe" {
		t.Errorf("got %q", stored.Login)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "password" {
		t.Errorf("password not hashed: %q", stored.PasswordHash)
	}
	if err := comparePassword(stored.PasswordHash, "password"); err != nil {
		t.Error(err)
	}

	if len(n.activations) != 1 {
		t.Fatalf("got %d activation messages", len(n.activations))
	}
	if n.activations[0].login != "joe" || n.activations[0].key != stored.ActivationKey || stored.ActivationKey == "" {
		t.Errorf("got %#v, stored key %q", n.activations[0], stored.ActivationKey)
	}
}

func TestRegister__normalizes(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	req := registration("Joe.Shmoe", "Joe@Example.COM")
	req.LangKey = ""
	if _, err := svc.register(ctx, req); err != nil {
		t.Fatal(err)
	}

	acct, err := repo.lookupByEmail(ctx, "joe@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Login != "joe.shmoe" {
		t.Errorf("got %q", acct.Login)
	}
	if acct.LangKey != defaultLangKey {
		t.Errorf("got %q", acct.LangKey)
	}

	// "JOE.SHMOE" collides with "joe.shmoe"
	_, err = svc.register(ctx, registration("JOE.SHMOE", "other@example.com"))
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "login" {
		t.Errorf("got %#v", err)
	}
}

func TestRegister__invalid(t *testing.T) {
	cases := []struct {
		name  string
		req   registerRequest
		field string
	}{
		{"bad login", registration("funky-log!n", "funky@example.com"), "login"},
		{"empty login", registration("", "nobody@example.com"), "login"},
		{"invalid email", registration("bob", "invalid"), "email"},
		{"empty email", registration("bob", ""), "email"},
		{"login with leading space", registration(" alice", "alice@example.com"), "login"},
		{"login with tab", registration("alice\t", "alice@example.com"), "login"},
		{"email with trailing space", registration("john", "john@example.com "), "email"},
		{"short password", func() registerRequest {
			r := registration("bob", "bob@example.com")
			r.Password = "abc"
			return r
		}(), "password"},
		{"bad langKey", func() registerRequest {
			r := registration("bob", "bob@example.com")
			r.LangKey = "english"
			return r
		}(), "langKey"},
	}

	for i := range cases {
		svc, repo, n := newTestService()

		acct, err := svc.register(context.Background(), cases[i].req)
		if acct != nil {
			t.Errorf("%s: got account %#v", cases[i].name, acct)
		}
		var fieldErr *FieldValidationError
		if !errors.As(err, &fieldErr) {
			t.Errorf("%s: got %#v", cases[i].name, err)
			continue
		}
		if fieldErr.Field != cases[i].field {
			t.Errorf("%s: got field %q", cases[i].name, fieldErr.Field)
		}

		// validation happens before the store is touched
		if repo.lookups != 0 || repo.count() != 0 {
			t.Errorf("%s: lookups=%d accounts=%d", cases[i].name, repo.lookups, repo.count())
		}
		if len(n.activations) != 0 {
			t.Errorf("%s: sent %d messages", cases[i].name, len(n.activations))
		}
	}
}

func TestRegister__invalidIsRepeatable(t *testing.T) {
	svc, repo, _ := newTestService()
	req := registration("funky-log!n", "funky@example.com")

	_, first := svc.register(context.Background(), req)
	_, second := svc.register(context.Background(), req)
	if first == nil || second == nil {
		t.Fatalf("first=%v second=%v", first, second)
	}
	if first.Error() != second.Error() {
		t.Errorf("first=%v second=%v", first, second)
	}
	if repo.count() != 0 {
		t.Errorf("got %d accounts", repo.count())
	}
}

func TestRegister__duplicateLogin(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.register(ctx, registration("alice", "alice@example.com")); err != nil {
		t.Fatal(err)
	}

	_, err := svc.register(ctx, registration("alice", "alicejr@example.com"))
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "login" {
		t.Fatalf("got %#v", err)
	}

	if _, err := repo.lookupByEmail(ctx, "alicejr@example.com"); !errors.Is(err, errAccountNotFound) {
		t.Errorf("got %v", err)
	}
	original, err := repo.lookupByLogin(ctx, "alice")
	if err != nil || original.Email != "alice@example.com" {
		t.Errorf("original=%#v err=%v", original, err)
	}
}

func TestRegister__duplicateEmail(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.register(ctx, registration("john", "john@example.com")); err != nil {
		t.Fatal(err)
	}

	_, err := svc.register(ctx, registration("johnjr", "john@example.com"))
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "email" {
		t.Fatalf("got %#v", err)
	}

	if _, err := repo.lookupByLogin(ctx, "johnjr"); !errors.Is(err, errAccountNotFound) {
		t.Errorf("got %v", err)
	}
	if repo.count() != 1 {
		t.Errorf("got %d accounts", repo.count())
	}
}

func TestRegister__adminIsIgnored(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.register(ctx, registration("badguy", "badguy@example.com", roleAdmin)); err != nil {
		t.Fatal(err)
	}

	acct, err := repo.lookupByLogin(ctx, "badguy")
	if err != nil {
		t.Fatal(err)
	}
	if len(acct.Roles) != 1 || acct.Roles[0] != roleUser {
		t.Errorf("got %v", acct.Roles)
	}
}

// A duplicate inserted between the pre-check and create still surfaces
// as a conflict.
func TestRegister__storeConflict(t *testing.T) {
	svc, repo, n := newTestService()
	repo.createErr = &ConflictError{Field: "email", Value: "race@example.com"}

	_, err := svc.register(context.Background(), registration("race", "race@example.com"))
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "email" {
		t.Errorf("got %#v", err)
	}
	if len(n.activations) != 0 {
		t.Errorf("sent %d messages", len(n.activations))
	}
}

func TestRegister__storeError(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.err = errors.New("disk on fire")

	_, err := svc.register(context.Background(), registration("joe", "joe@example.com"))
	if err == nil || isClientError(err) {
		t.Errorf("got %#v", err)
	}
}

func TestRegister__notifierFailure(t *testing.T) {
	svc, repo, n := newTestService()
	n.err = errors.New("smtp down")

	acct, err := svc.register(context.Background(), registration("joe", "joe@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if acct == nil || repo.count() != 1 {
		t.Errorf("account not kept: %#v", acct)
	}
}

func TestActivate(t *testing.T) {
	svc, repo, n := newTestService()
	ctx := context.Background()

	req := registration("joe", "joe@example.com")
	req.Activated = false
	if _, err := svc.register(ctx, req); err != nil {
		t.Fatal(err)
	}
	key := n.activations[0].key

	acct, err := svc.activate(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Activated || acct.ActivationKey != "" {
		t.Errorf("got %#v", acct)
	}

	stored, _ := repo.lookupByLogin(ctx, "joe")
	if !stored.Activated {
		t.Error("expected stored account to be activated")
	}

	// keys are single use
	if _, err := svc.activate(ctx, key); !errors.Is(err, errAccountNotFound) {
		t.Errorf("got %v", err)
	}
	if _, err := svc.activate(ctx, ""); !errors.Is(err, errAccountNotFound) {
		t.Errorf("got %v", err)
	}
}
