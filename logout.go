// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

func addLogoutRoutes(router *mux.Router, logger log.Logger, auth authable) {
	router.Methods("POST").Path("/api/logout").HandlerFunc(logoutRoute(logger, auth))
}

func logoutRoute(logger log.Logger, auth authable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login, ok := requireRemoteUser(w, r)
		if !ok {
			return
		}
		if err := auth.invalidateCookies(login); err != nil {
			internalError(w, err, "logout")
			return
		}
		authInactivations.With("method", "web").Add(1)
		logger.Log("logout", "invalidated sessions", "login", login)

		// expire the browser's copy as well
		http.SetCookie(w, &http.Cookie{
			Domain:   Domain,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			MaxAge:   -1,
			Name:     cookieName,
			Path:     "/",
			Secure:   serveViaTLS,
		})
		w.WriteHeader(http.StatusOK)
	}
}
