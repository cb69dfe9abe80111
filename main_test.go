// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

func init() {
	bcryptCost = bcrypt.MinCost
}

// mockAccountRepository mimics the sqlite unique indexes so the guard can
// be tested without a database.
type mockAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*Account

	// lookups counts every lookupBy* call
	lookups int

	err       error
	createErr error
}

func newMockAccountRepository() *mockAccountRepository {
	return &mockAccountRepository{
		accounts: make(map[string]*Account),
	}
}

func copyAccount(a *Account) *Account {
	cp := *a
	cp.Roles = append([]string(nil), a.Roles...)
	return &cp
}

func (r *mockAccountRepository) find(match func(*Account) bool) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups++
	if r.err != nil {
		return nil, r.err
	}
	for _, a := range r.accounts {
		if match(a) {
			return copyAccount(a), nil
		}
	}
	return nil, errAccountNotFound
}

func (r *mockAccountRepository) lookupByLogin(_ context.Context, login string) (*Account, error) {
	return r.find(func(a *Account) bool { return a.Login == login })
}

func (r *mockAccountRepository) lookupByEmail(_ context.Context, email string) (*Account, error) {
	return r.find(func(a *Account) bool { return a.Email == email })
}

func (r *mockAccountRepository) lookupByActivationKey(_ context.Context, key string) (*Account, error) {
	return r.find(func(a *Account) bool { return key != "" && a.ActivationKey == key })
}

func (r *mockAccountRepository) lookupByResetKey(_ context.Context, key string) (*Account, error) {
	return r.find(func(a *Account) bool { return key != "" && a.ResetKey == key })
}

func (r *mockAccountRepository) create(_ context.Context, acct *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	for _, a := range r.accounts {
		if a.Login == acct.Login {
			return &ConflictError{Field: "login", Value: acct.Login}
		}
		if a.Email == acct.Email {
			return &ConflictError{Field: "email", Value: acct.Email}
		}
	}
	r.accounts[acct.ID] = copyAccount(acct)
	return nil
}

func (r *mockAccountRepository) update(_ context.Context, acct *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	if _, exists := r.accounts[acct.ID]; !exists {
		return errAccountNotFound
	}
	r.accounts[acct.ID] = copyAccount(acct)
	return nil
}

func (r *mockAccountRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

type sentMessage struct {
	login string
	key   string
}

type recordingNotifier struct {
	mu          sync.Mutex
	activations []sentMessage
	resets      []sentMessage

	err error
}

func (n *recordingNotifier) sendActivationMessage(_ context.Context, acct *Account, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activations = append(n.activations, sentMessage{acct.Login, key})
	return n.err
}

func (n *recordingNotifier) sendPasswordResetMessage(_ context.Context, acct *Account, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentMessage{acct.Login, key})
	return n.err
}

// mockAuth keeps sessions in a map.
type mockAuth struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newMockAuth() *mockAuth {
	return &mockAuth{sessions: make(map[string]string)}
}

func (a *mockAuth) findLogin(data string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	login, ok := a.sessions[data]
	if !ok {
		return "", errors.New("session not found")
	}
	return login, nil
}

func (a *mockAuth) writeCookie(login string, cookie *http.Cookie) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[cookie.Value] = login
	return nil
}

func (a *mockAuth) invalidateCookies(login string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range a.sessions {
		if v == login {
			delete(a.sessions, k)
		}
	}
	return nil
}

// login binds a fresh cookie value to login and returns it.
func (a *mockAuth) login(login string) string {
	value := generateID()
	a.writeCookie(login, &http.Cookie{Name: cookieName, Value: value})
	return value
}
