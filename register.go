// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const defaultLangKey = "en"

type registerRequest struct {
	Login     string `json:"login"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Activated bool   `json:"activated"`
	LangKey   string `json:"langKey"`

	// Authorities are accepted on the wire but never honored, see register.
	Authorities []string `json:"authorities"`
}

// register validates a signup and creates the account.
//
// Field formats are checked before the store is touched. Login and email
// uniqueness is checked next, but the store's unique indexes are the
// real guarantee: a duplicate inserted concurrently still comes back as
// a *ConflictError from create. Requested authorities are dropped, a
// self-registered account only ever holds roleUser.
func (s *accountService) register(ctx context.Context, req registerRequest) (*Account, error) {
	if err := checkLogin(req.Login); err != nil {
		return nil, err
	}
	if err := checkEmail(req.Email); err != nil {
		return nil, err
	}
	if err := checkPassword(req.Password); err != nil {
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

	login, email := normalizeLogin(req.Login), normalizeEmail(req.Email)
	if err := s.ensureUnused(ctx, login, email); err != nil {
		return nil, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	activationKey := generateID()
	if activationKey == "" {
		return nil, errors.New("unable to generate activation key")
	}

	acct := &Account{
		ID:            uuid.NewString(),
		Login:         login,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         email,
		LangKey:       req.LangKey,
		Activated:     req.Activated,
		CreatedAt:     time.Now().UTC(),
		Roles:         []string{roleUser},
		PasswordHash:  hash,
		ActivationKey: activationKey,
	}
	if acct.LangKey == "" {
		acct.LangKey = defaultLangKey
	}
	for _, role := range req.Authorities {
		if role != roleUser {
			s.logger.Log("register", fmt.Sprintf("dropping requested role %s", role), "login", login)
		}
	}

	if err := s.repo.create(ctx, acct); err != nil {
		return nil, err
	}

	if err := s.notifier.sendActivationMessage(ctx, acct, activationKey); err != nil {
		s.logger.Log("register", "problem sending activation message", "login", login, "error", err)
	}
	return acct, nil
}

func (s *accountService) ensureUnused(ctx context.Context, login, email string) error {
	if _, err := s.repo.lookupByLogin(ctx, login); err == nil {
		return &ConflictError{Field: "login", Value: login}
	} else if !errors.Is(err, errAccountNotFound) {
		return err
	}
	if _, err := s.repo.lookupByEmail(ctx, email); err == nil {
		return &ConflictError{Field: "email", Value: email}
	} else if !errors.Is(err, errAccountNotFound) {
		return err
	}
	return nil
}

// activate marks the account owning key as activated and burns the key.
func (s *accountService) activate(ctx context.Context, key string) (*Account, error) {
	acct, err := s.repo.lookupByActivationKey(ctx, key)
	if err != nil {
		return nil, err
	}
	acct.Activated = true
	acct.ActivationKey = ""
	if err := s.repo.update(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func addRegisterRoutes(router *mux.Router, logger log.Logger, svc *accountService) {
	router.Methods("POST").Path("/api/register").HandlerFunc(registerRoute(logger, svc))
	router.Methods("GET").Path("/api/activate").HandlerFunc(activateRoute(logger, svc))
}

func registerRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bs, err := read(r.Body)
		if err != nil {
			internalError(w, err, "register")
			return
		}

		var req registerRequest
		if err := json.Unmarshal(bs, &req); err != nil {
			registrations.With("result", "invalid").Add(1)
			encodeError(w, &FieldValidationError{Field: "body", Message: err.Error()})
			return
		}

		acct, err := svc.register(r.Context(), req)
		if err != nil {
			var conflict *ConflictError
			switch {
			case errors.As(err, &conflict):
				registrations.With("result", "conflict").Add(1)
			case isClientError(err):
				registrations.With("result", "invalid").Add(1)
			default:
				registrations.With("result", "error").Add(1)
				internalError(w, err, "register")
				return
			}
			logger.Log("register", "rejected", "login", req.Login, "error", err)
			encodeError(w, err)
			return
		}

		registrations.With("result", "created").Add(1)
		logger.Log("register", "created account", "login", acct.Login, "id", acct.ID)
		writeAccount(w, http.StatusCreated, acct)
	}
}

func activateRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		acct, err := svc.activate(r.Context(), key)
		if err != nil {
			if errors.Is(err, errAccountNotFound) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			internalError(w, err, "activate")
			return
		}
		logger.Log("activate", "activated account", "login", acct.Login)
		writeAccount(w, http.StatusOK, acct)
	}
}
