// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-kit/kit/log"
)

// notifier delivers out of band messages to account owners. Callers
// treat it as fire-and-forget: a failure never undoes the account change
// that triggered it.
type notifier interface {
	sendActivationMessage(ctx context.Context, acct *Account, key string) error
	sendPasswordResetMessage(ctx context.Context, acct *Account, key string) error
}

func getBaseURL() string {
	u := os.Getenv("BASE_URL")
	if u == "" {
		u = "http://localhost:8080"
	}
	return strings.TrimSuffix(u, "/")
}

// logNotifier records messages in the log instead of delivering them.
// Links carry live keys so they are only logged when showLinks is set
// (NOTIFIER_SHOW_LINKS=yes), for local development.
type logNotifier struct {
	logger    log.Logger
	baseURL   string
	showLinks bool
}

func showNotificationLinks() bool {
	switch strings.ToLower(os.Getenv("NOTIFIER_SHOW_LINKS")) {
	case "true", "yes":
		return true
	}
	return false
}

func (n *logNotifier) sendActivationMessage(ctx context.Context, acct *Account, key string) error {
	return n.send("activation", acct, fmt.Sprintf("%s/#/activate?key=%s", n.baseURL, url.QueryEscape(key)))
}

func (n *logNotifier) sendPasswordResetMessage(ctx context.Context, acct *Account, key string) error {
	return n.send("password-reset", acct, fmt.Sprintf("%s/#/reset/finish?key=%s", n.baseURL, url.QueryEscape(key)))
}

func (n *logNotifier) send(kind string, acct *Account, link string) error {
	if acct == nil || acct.Email == "" {
		return fmt.Errorf("%s message: no recipient", kind)
	}
	if n.showLinks {
		return n.logger.Log("notifier", kind, "login", acct.Login, "to", acct.Email, "lang", acct.LangKey, "link", link)
	}
	return n.logger.Log("notifier", kind, "login", acct.Login, "to", acct.Email, "lang", acct.LangKey)
}
