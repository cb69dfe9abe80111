// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

const (
	// maxReadBytes is the number of bytes to read
	// from a request body. It's intended to be used
	// with an io.LimitReader
	maxReadBytes = 1 * 1024 * 1024

	cookieName = "moov_auth"
	cookieTTL  = 30 * 24 * time.Hour // days * hours/day * hours
)

var (
	// Domain is the domain to publish cookies under.
	// If empty "localhost" is used.
	//
	// The path is always set to /.
	Domain string = os.Getenv("DOMAIN")

	// serveViaTLS marks cookies as Secure. It's set from main once
	// the TLS flags are parsed.
	serveViaTLS bool
)

func init() {
	if Domain == "" {
		Domain = "localhost"
	}
}

// setupRouter registers every account route and wraps the router so
// handlers can see who is calling.
func setupRouter(logger log.Logger, auth authable, svc *accountService) http.Handler {
	router := mux.NewRouter()
	addAccountRoutes(router, logger, svc)
	addRegisterRoutes(router, logger, svc)
	addPasswordRoutes(router, logger, svc)
	addLoginRoutes(router, logger, auth, svc)
	addLogoutRoutes(router, logger, auth)
	return withRemoteUser(auth, router)
}

// read consumes an io.Reader (wrapping with io.LimitReader)
// and returns either the resulting bytes or a non-nil error.
func read(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	r = io.LimitReader(r, maxReadBytes)
	return ioutil.ReadAll(r)
}

// encodeError JSON encodes the supplied error
//
// The HTTP status is picked from the error's type, falling back
// to "400 Bad Request".
func encodeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status, field := errorStatus(err)

	body := map[string]interface{}{
		"error": err.Error(),
	}
	if field != "" {
		body["field"] = field
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func internalError(w http.ResponseWriter, err error, component string) {
	internalServerErrors.Add(1)
	logger.Log(component, err)
	w.WriteHeader(http.StatusInternalServerError)
}

// extractCookie attempts to pull out our cookie from the incoming request.
// We use the contents to find the associated login.
func extractCookie(r *http.Request) *http.Cookie {
	if r == nil {
		return nil
	}
	cs := r.Cookies()
	for i := range cs {
		if cs[i].Name == cookieName {
			return cs[i]
		}
	}
	return nil
}

// createCookie generates a new cookie and associates it with the provided
// login.
func createCookie(login string, auth authable) (*http.Cookie, error) {
	cookie := &http.Cookie{
		Domain:   Domain,
		Expires:  time.Now().Add(cookieTTL),
		HttpOnly: true,
		Name:     cookieName,
		Path:     "/",
		Secure:   serveViaTLS,
		Value:    generateID(),
	}
	if err := auth.writeCookie(login, cookie); err != nil {
		return nil, err
	}
	return cookie, nil
}

type remoteUserKey struct{}

func contextWithRemoteUser(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, remoteUserKey{}, login)
}

// remoteUser returns the login of the authenticated caller, or "".
func remoteUser(ctx context.Context) string {
	login, _ := ctx.Value(remoteUserKey{}).(string)
	return login
}

// withRemoteUser resolves our session cookie (if any) into a login and
// stores it on the request context. Unknown or expired cookies leave
// the request anonymous.
func withRemoteUser(auth authable, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie := extractCookie(r); cookie != nil && cookie.Value != "" {
			login, err := auth.findLogin(cookie.Value)
			if err == nil && login != "" {
				r = r.WithContext(contextWithRemoteUser(r.Context(), login))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireRemoteUser writes "401 Unauthorized" when the request is
// anonymous.
func requireRemoteUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	login := remoteUser(r.Context())
	if login == "" {
		encodeError(w, errNoRemoteUser)
		return "", false
	}
	return login, true
}
