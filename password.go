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
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

const resetKeyTTL = 24 * time.Hour

var (
	// bcryptCost is lowered by tests.
	bcryptCost = bcrypt.DefaultCost
)

func hashPassword(pass string) (string, error) {
	bs, err := bcrypt.GenerateFromPassword([]byte(pass), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("problem hashing password: %v", err)
	}
	return string(bs), nil
}

// comparePassword returns errInvalidCredentials when pass doesn't
// match hash.
func comparePassword(hash, pass string) error {
	if hash == "" || pass == "" {
		return errInvalidCredentials
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return errInvalidCredentials
	}
	return fmt.Errorf("problem comparing password: %v", err)
}

func (s *accountService) changePassword(ctx context.Context, login, pass string) error {
	if err := checkPassword(pass); err != nil {
		return err
	}
	acct, err := s.currentAccount(ctx, login)
	if err != nil {
		return err
	}
	hash, err := hashPassword(pass)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	return s.repo.update(ctx, acct)
}

// requestPasswordReset issues a reset key for an activated account and
// hands it to the notifier.
func (s *accountService) requestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	acct, err := s.repo.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			return &FieldValidationError{Field: "email", Message: "is not registered"}
		}
		return err
	}
	if !acct.Activated {
		return &FieldValidationError{Field: "email", Message: "is not registered"}
	}

	acct.ResetKey = generateID()
	if acct.ResetKey == "" {
		return errors.New("unable to generate reset key")
	}
	acct.ResetDate = time.Now().UTC()
	if err := s.repo.update(ctx, acct); err != nil {
		return err
	}
	if err := s.notifier.sendPasswordResetMessage(ctx, acct, acct.ResetKey); err != nil {
		s.logger.Log("password", "problem sending reset message", "login", acct.Login, "error", err)
	}
	return nil
}

func (s *accountService) completePasswordReset(ctx context.Context, key, pass string) error {
	if err := checkPassword(pass); err != nil {
		return err
	}
	invalidKey := &FieldValidationError{Field: "key", Message: "is invalid or expired"}

	acct, err := s.repo.lookupByResetKey(ctx, key)
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			return invalidKey
		}
		return err
	}
	if time.Since(acct.ResetDate) > resetKeyTTL {
		return invalidKey
	}

	hash, err := hashPassword(pass)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	acct.ResetKey = ""
	acct.ResetDate = time.Time{}
	return s.repo.update(ctx, acct)
}

type resetFinishRequest struct {
	Key         string `json:"key"`
	NewPassword string `json:"newPassword"`
}

func addPasswordRoutes(router *mux.Router, logger log.Logger, svc *accountService) {
	router.Methods("POST").Path("/api/account/change_password").HandlerFunc(changePasswordRoute(logger, svc))
	router.Methods("POST").Path("/api/account/reset_password/init").HandlerFunc(resetInitRoute(logger, svc))
	router.Methods("POST").Path("/api/account/reset_password/finish").HandlerFunc(resetFinishRoute(logger, svc))
}

// changePasswordRoute takes the new password as the raw request body.
func changePasswordRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login, ok := requireRemoteUser(w, r)
		if !ok {
			return
		}
		bs, err := read(r.Body)
		if err != nil {
			internalError(w, err, "password")
			return
		}
		if err := svc.changePassword(r.Context(), login, string(bs)); err != nil {
			respondError(w, logger, "password", err)
			return
		}
		logger.Log("password", "changed password", "login", login)
		w.WriteHeader(http.StatusOK)
	}
}

// resetInitRoute takes an email address as the raw request body.
func resetInitRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bs, err := read(r.Body)
		if err != nil {
			internalError(w, err, "password")
			return
		}
		if err := svc.requestPasswordReset(r.Context(), strings.TrimSpace(string(bs))); err != nil {
			respondError(w, logger, "password", err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func resetFinishRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bs, err := read(r.Body)
		if err != nil {
			internalError(w, err, "password")
			return
		}
		var req resetFinishRequest
		if err := json.Unmarshal(bs, &req); err != nil {
			encodeError(w, &FieldValidationError{Field: "body", Message: err.Error()})
			return
		}
		if err := svc.completePasswordReset(r.Context(), req.Key, req.NewPassword); err != nil {
			respondError(w, logger, "password", err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// respondError writes caller caused rejections as JSON and everything
// else as "500 Internal Server Error".
func respondError(w http.ResponseWriter, logger log.Logger, component string, err error) {
	if isClientError(err) {
		logger.Log(component, "rejected", "error", err)
		encodeError(w, err)
		return
	}
	internalError(w, err, component)
}
