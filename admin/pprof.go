// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"fmt"
	"net/http/pprof"
	"os"
	"runtime"
	"strings"

	"github.com/gorilla/mux"
)

// profiles lists the runtime/pprof profiles served on the admin port
// and whether each is on by default. Override one with PPROF_<NAME>=yes|no.
//
// Dumps can include account data (emails, password hashes) so they
// never go on the public listener.
var profiles = map[string]bool{
	"allocs":       true,
	"block":        true,
	"cmdline":      true,
	"goroutine":    true,
	"heap":         true,
	"mutex":        true,
	"profile":      true,
	"threadcreate": false,
	"trace":        false,
}

// Init turns on block and mutex sampling unless their profiles are
// disabled.
func Init() error {
	if profileEnabled("block") {
		runtime.SetBlockProfileRate(1)
	}
	if profileEnabled("mutex") {
		runtime.SetMutexProfileFraction(1)
	}
	return nil
}

func profileEnabled(name string) bool {
	return envToggle(fmt.Sprintf("PPROF_%s", strings.ToUpper(name)), profiles[name])
}

// envToggle reads "yes" / "no" (any case) from the env var key and
// falls back to def for anything else.
func envToggle(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "yes":
		return true
	case "no":
		return false
	}
	return def
}

func addPprofRoutes(r *mux.Router) {
	r.HandleFunc("/debug/pprof/", pprof.Index)
	for name := range profiles {
		if !profileEnabled(name) {
			continue
		}
		switch name {
		case "cmdline":
			r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		case "profile":
			r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		case "trace":
			r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		default:
			r.Handle(fmt.Sprintf("/debug/pprof/%s", name), pprof.Handler(name))
		}
	}
}
