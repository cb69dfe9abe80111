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

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authenticate checks credentials of an activated account.
func (s *accountService) authenticate(ctx context.Context, username, pass string) (*Account, error) {
	acct, err := s.repo.lookupByLogin(ctx, normalizeLogin(username))
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := comparePassword(acct.PasswordHash, pass); err != nil {
		return nil, err
	}
	if !acct.Activated {
		return nil, errAccountNotActivated
	}
	return acct, nil
}

func addLoginRoutes(router *mux.Router, logger log.Logger, auth authable, svc *accountService) {
	router.Methods("POST").Path("/api/authentication").HandlerFunc(loginRoute(logger, auth, svc))
}

func loginRoute(logger log.Logger, auth authable, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		bs, err := read(r.Body)
		if err != nil {
			internalError(w, err, "login")
			return
		}

		// read request body
		var login loginRequest
		if err := json.Unmarshal(bs, &login); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		acct, err := svc.authenticate(r.Context(), login.Username, login.Password)
		if err != nil {
			if !isClientError(err) {
				internalError(w, err, "login")
				return
			}
			// Mark this as failure only because the user is involved at
			// this point. Otherwise it's their developer's problem (i.e. bad json).
			authFailures.With("method", "web").Add(1)
			logger.Log("login", fmt.Sprintf("login=%s failed: %v", login.Username, err))
			w.WriteHeader(http.StatusForbidden)
			return
		}

		// success route, let's finish!
		authSuccesses.With("method", "web").Add(1)
		cookie, err := createCookie(acct.Login, auth)
		if err != nil {
			internalError(w, err, "login")
			return
		}
		if cookie == nil {
			internalError(w, fmt.Errorf("nil cookie for login=%s", acct.Login), "login")
			return
		}

		http.SetCookie(w, cookie)
		writeAccount(w, http.StatusOK, acct)
	}
}
