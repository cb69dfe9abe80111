// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// normalizeLogin lower cases a login so "Alice" and "alice" collide.
// Call it after checkLogin, it does not strip anything.
func normalizeLogin(login string) string {
	return strings.ToLower(login)
}

// normalizeEmail lower cases an email address.
//
// Unlike a "clean" address we keep dots and +extensions, they are
// valid and distinct mailboxes at most providers.
func normalizeEmail(email string) string {
	return strings.ToLower(email)
}

// generateID creates a random token used for session cookies,
// activation and reset keys.
// Do no assume anything about these ID's other than
// they are strings. Case matters
func generateID() string {
	bs := make([]byte, 20)
	n, err := rand.Read(bs)
	if err != nil || n == 0 {
		logger.Log("generateID", fmt.Sprintf("n=%d, err=%v", n, err))
		return ""
	}
	return strings.ToLower(hex.EncodeToString(bs))
}
