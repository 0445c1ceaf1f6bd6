// Package profile is the boundary to the session layer. The sync core never
// reads ambient session state; it takes a Source and treats "no profile yet"
// as a blocking precondition for mutating actions.
package profile

import "github.com/clearvoice-app/clearvoice/src/record"

// Profile identifies the authenticated actor for the current session.
type Profile struct {
	ID          string
	DisplayName string
	Role        record.Role
}

// Source yields the current actor profile, or false before session bootstrap
// has completed.
type Source interface {
	Current() (Profile, bool)
}

// Static is a Source with a fixed profile, used by the CLI and by tests.
type Static struct {
	Profile Profile
}

func (s Static) Current() (Profile, bool) { return s.Profile, true }

// None is a Source that never has a profile.
type None struct{}

func (None) Current() (Profile, bool) { return Profile{}, false }

// Func adapts a closure to a Source.
type Func func() (Profile, bool)

func (f Func) Current() (Profile, bool) { return f() }
