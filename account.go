// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

const (
	// roleUser is granted to every self-registered account.
	roleUser = "ROLE_USER"

	// roleAdmin can only be assigned out of band (fixtures, operators).
	roleAdmin = "ROLE_ADMIN"
)

var errAccountNotFound = errors.New("account not found")

// Account is a registered identity. Login and Email are unique
// across all accounts and always stored in lower case.
type Account struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	LangKey   string    `json:"langKey"`
	Activated bool      `json:"activated"`
	CreatedAt time.Time `json:"createdAt"`
	Roles     []string  `json:"authorities"`

	PasswordHash  string    `json:"-"`
	ActivationKey string    `json:"-"`
	ResetKey      string    `json:"-"`
	ResetDate     time.Time `json:"-"`
}

type accountRepository interface {
	// lookupByLogin returns errAccountNotFound when no account matches.
	lookupByLogin(ctx context.Context, login string) (*Account, error)
	lookupByEmail(ctx context.Context, email string) (*Account, error)
	lookupByActivationKey(ctx context.Context, key string) (*Account, error)
	lookupByResetKey(ctx context.Context, key string) (*Account, error)

	// create inserts the account and its roles atomically. A unique
	// constraint violation is returned as a *ConflictError.
	create(ctx context.Context, acct *Account) error

	// update overwrites every mutable column of an existing account.
	update(ctx context.Context, acct *Account) error
}

// accountService holds the account workflows. Its collaborators are
// injected so tests can swap in fakes.
type accountService struct {
	repo     accountRepository
	notifier notifier
	logger   log.Logger
}

func newAccountService(repo accountRepository, n notifier, logger log.Logger) *accountService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &accountService{
		repo:     repo,
		notifier: n,
		logger:   logger,
	}
}

// currentAccount resolves the account bound to an authenticated login.
// An authenticated login without an account is an invariant breach and
// comes back as *UnresolvedAccountError.
func (s *accountService) currentAccount(ctx context.Context, login string) (*Account, error) {
	if login == "" {
		return nil, errNoRemoteUser
	}
	acct, err := s.repo.lookupByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			return nil, &UnresolvedAccountError{Login: login}
		}
		return nil, err
	}
	return acct, nil
}

type accountUpdate struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	LangKey   string `json:"langKey"`
}

// updateAccount changes the profile of the caller. Login, roles and
// activation are never touched here.
func (s *accountService) updateAccount(ctx context.Context, login string, req accountUpdate) (*Account, error) {
	acct, err := s.currentAccount(ctx, login)
	if err != nil {
		return nil, err
	}

	if err := checkEmail(req.Email); err != nil {
		return nil, err
	}
	if err := checkName("firstName", req.FirstName); err != nil {
		return nil, err
	}
	if err := checkName("lastName", req.LastName); err != nil {
		return nil, err
	}
	if err := checkLangKey(req.LangKey); err != nil {
		return nil, err
	}
	email := normalizeEmail(req.Email)

	if email != acct.Email {
		other, err := s.repo.lookupByEmail(ctx, email)
		switch {
		case err == nil && other.ID != acct.ID:
			return nil, &ConflictError{Field: "email", Value: email}
		case err != nil && !errors.Is(err, errAccountNotFound):
			return nil, err
		}
	}

	acct.FirstName = req.FirstName
	acct.LastName = req.LastName
	acct.Email = email
	if req.LangKey != "" {
		acct.LangKey = req.LangKey
	}
	if err := s.repo.update(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func addAccountRoutes(router *mux.Router, logger log.Logger, svc *accountService) {
	router.Methods("GET").Path("/api/authenticate").HandlerFunc(whoAmIRoute())
	router.Methods("GET").Path("/api/account").HandlerFunc(getAccountRoute(logger, svc))
	router.Methods("POST").Path("/api/account").HandlerFunc(updateAccountRoute(logger, svc))
}

// whoAmIRoute echoes the login of the caller, or an empty body.
func whoAmIRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(remoteUser(r.Context())))
	}
}

func getAccountRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login, ok := requireRemoteUser(w, r)
		if !ok {
			return
		}
		acct, err := svc.currentAccount(r.Context(), login)
		if err != nil {
			internalError(w, err, "account")
			return
		}
		writeAccount(w, http.StatusOK, acct)
	}
}

func updateAccountRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login, ok := requireRemoteUser(w, r)
		if !ok {
			return
		}

		bs, err := read(r.Body)
		if err != nil {
			internalError(w, err, "account")
			return
		}
		var req accountUpdate
		if err := json.Unmarshal(bs, &req); err != nil {
			encodeError(w, &FieldValidationError{Field: "body", Message: err.Error()})
			return
		}

		acct, err := svc.updateAccount(r.Context(), login, req)
		if err != nil {
			respondError(w, logger, "account", err)
			return
		}
		writeAccount(w, http.StatusOK, acct)
	}
}

func writeAccount(w http.ResponseWriter, status int, acct *Account) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(acct); err != nil {
		logger.Log("account", "problem encoding account", "error", err)
	}
}
