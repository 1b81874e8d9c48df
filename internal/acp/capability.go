package acp

import (
	"encoding/json"
	"sort"
	"strings"
)

// Family groups capabilities and the client methods that use them.
type Family string

const (
	// FamilyTerminal is host-executed terminal commands (terminal/*).
	FamilyTerminal Family = "terminal"
	// FamilyFS is host filesystem access (fs/*).
	FamilyFS Family = "fs"
	// FamilyCustom is any other advertised capability.
	FamilyCustom Family = "custom"
	// FamilyInvalid tags denials of messages that could not be parsed.
	FamilyInvalid Family = "invalid"
)

// DefaultBlocked are the families withheld from a hosted agent unless the
// delegate override is set.
var DefaultBlocked = []Family{FamilyTerminal, FamilyFS}

// Capability is a tag such as terminal/execute, fs/read or custom/foo.
type Capability string

// Family returns the part of the tag before the first slash.
func (c Capability) Family() Family {
	f, _, _ := strings.Cut(string(c), "/")
	return Family(f)
}

// CapabilitySet is the partition of the capabilities a client advertised.
type CapabilitySet struct {
	Allowed          []Capability
	Blocked          []Capability
	DelegateOverride bool
}

// Policy decides which families are blocked.
type Policy struct {
	// Blocked lists withheld families. Empty means DefaultBlocked.
	Blocked []Family
	// DelegateOverride disables masking and denial entirely.
	DelegateOverride bool
}

// BlockedFamilies returns the effective blocked set. It is only empty when
// the delegate override is set.
func (p Policy) BlockedFamilies() []Family {
	if p.DelegateOverride {
		return nil
	}
	if len(p.Blocked) == 0 {
		return DefaultBlocked
	}
	return p.Blocked
}

func (p Policy) blocks(f Family) bool {
	for _, b := range p.BlockedFamilies() {
		if b == f {
			return true
		}
	}
	return false
}

// methodFamily returns the namespace of a method such as terminal/create.
func methodFamily(method string) (Family, bool) {
	ns, _, ok := strings.Cut(method, "/")
	if !ok || ns == "" {
		return "", false
	}
	return Family(ns), true
}

// fsTags maps the ACP fs capability keys to tags.
var fsTags = map[string]Capability{
	"readTextFile":  "fs/read",
	"writeTextFile": "fs/write",
}

// maskCapabilities tags every capability advertised in caps (the
// clientCapabilities object) and removes the keys of blocked families.
// _meta is always kept.
func maskCapabilities(caps map[string]json.RawMessage, p Policy) (map[string]json.RawMessage, CapabilitySet) {
	out := make(map[string]json.RawMessage, len(caps))
	var set CapabilitySet

	add := func(c Capability) {
		if p.blocks(c.Family()) {
			set.Blocked = append(set.Blocked, c)
		} else {
			set.Allowed = append(set.Allowed, c)
		}
	}

	for key, val := range caps {
		var fam Family
		// Peers that match names loosely would read "Terminal" as terminal.
		switch strings.ToLower(key) {
		case "_meta":
			out[key] = val
			continue
		case "terminal":
			fam = FamilyTerminal
			if advertised(val) {
				add("terminal/execute")
			}
		case "fs":
			fam = FamilyFS
			var sub map[string]json.RawMessage
			if err := json.Unmarshal(val, &sub); err == nil {
				for k, v := range sub {
					if k == "_meta" || !advertised(v) {
						continue
					}
					tag, ok := fsTags[k]
					if !ok {
						tag = Capability("fs/" + k)
					}
					add(tag)
				}
			}
		default:
			fam = FamilyCustom
			if advertised(val) {
				add(Capability("custom/" + key))
			}
		}
		if !p.blocks(fam) {
			out[key] = val
		}
	}

	sortCaps(set.Allowed)
	sortCaps(set.Blocked)
	return out, set
}

// advertised is false for explicit false and null.
func advertised(v json.RawMessage) bool {
	s := strings.TrimSpace(string(v))
	return s != "false" && s != "null" && s != ""
}

func sortCaps(c []Capability) {
	sort.Slice(c, func(i, j int) bool { return c[i] < c[j] })
}
