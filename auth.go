// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/moov-io/accounts/pkg/buntdbsession"
)

type authable interface {
	// findLogin returns the login a cookie's value was issued to.
	// A non-nil error is returned if the cookie is unknown or expired.
	findLogin(data string) (string, error)

	// writeCookie binds the cookie's value to login until the cookie
	// expires.
	writeCookie(login string, cookie *http.Cookie) error

	// invalidateCookies drops every cookie issued to login
	// (require them to login again)
	invalidateCookies(login string) error
}

// auth keeps session cookies in buntdb.
type auth struct {
	sessions *buntdbsession.Store
}

func (a *auth) findLogin(data string) (string, error) {
	if data == "" {
		return "", errors.New("empty cookie")
	}
	return a.sessions.Get(data)
}

func (a *auth) writeCookie(login string, cookie *http.Cookie) error {
	if cookie == nil || cookie.Value == "" {
		return errors.New("nil or empty cookie")
	}
	ttl := time.Until(cookie.Expires)
	if cookie.Expires.IsZero() || ttl <= 0 {
		ttl = cookieTTL
	}
	return a.sessions.Set(cookie.Value, login, ttl)
}

func (a *auth) invalidateCookies(login string) error {
	_, err := a.sessions.DeleteByLogin(login)
	return err
}
