package guard

import (
	"strings"
	"unicode"

	"github.com/felixgeelhaar/modkeeper/internal/domain/matcher"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

const minContainLen = 4

// Match tiers, weakest first.
const (
	tierNone = iota
	tierAcronym
	tierContains
	tierDisplayName
	tierTail
	tierExact
)

// FindLoaded locates the loaded plugin for id. Ids drift across updates
// ("Author-ModName" for a fresh install, "com.author.modname" once loaded),
// so besides an exact match it compares the last id segment against each
// plugin's last id segment and display name by equality, containment and
// initials. The strongest tier wins; ties keep the first plugin.
func FindLoaded(id string, loaded []ports.LocalPlugin) *ports.LocalPlugin {
	want := tail(id)
	wantNorm := matcher.Normalize(want)

	best, bestTier := -1, tierNone
	for i := range loaded {
		tier := identityTier(id, want, wantNorm, &loaded[i])
		if tier > bestTier {
			best, bestTier = i, tier
		}
	}
	if best < 0 {
		return nil
	}
	return &loaded[best]
}

func identityTier(id, want, wantNorm string, lp *ports.LocalPlugin) int {
	if strings.EqualFold(lp.ID, id) {
		return tierExact
	}
	if wantNorm == "" {
		return tierNone
	}

	have := matcher.Normalize(tail(lp.ID))
	name := matcher.Normalize(lp.DisplayName)
	switch {
	case have == wantNorm:
		return tierTail
	case name == wantNorm:
		return tierDisplayName
	case contains(have, wantNorm) || contains(name, wantNorm):
		return tierContains
	case acronymMatch(want, have) || acronymMatch(want, name) || acronymMatch(lp.DisplayName, wantNorm):
		return tierAcronym
	}
	return tierNone
}

// tail returns the part of id after its last '.' or '-'.
func tail(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndexAny(id, ".-"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func contains(a, b string) bool {
	if len(a) < minContainLen || len(b) < minContainLen {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// acronymMatch reports whether the initials of name's words equal short.
func acronymMatch(name, short string) bool {
	if len(short) < 2 {
		return false
	}
	return initials(name) == short
}

func initials(s string) string {
	var b strings.Builder
	prevLower, startOfWord := false, true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			startOfWord, prevLower = true, false
			continue
		}
		if startOfWord || (prevLower && unicode.IsUpper(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
		startOfWord = false
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	if b.Len() < 2 {
		return ""
	}
	return b.String()
}
