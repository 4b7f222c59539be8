// Package matcher maps locally loaded plugins to remote catalog packages.
//
// Local plugins only declare an id and a display name, so the mapping is a
// heuristic: every candidate package is scored from independent signals
// and the best candidate wins only if it clears MinScore and no other
// candidate comes within AmbiguityThreshold of it.
package matcher

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
)

// Reason identifies a scoring signal.
type Reason string

// Scoring signals.
const (
	ReasonExactName         Reason = "exact_name"
	ReasonNamePrefix        Reason = "name_prefix"
	ReasonNameContains      Reason = "name_contains"
	ReasonIDEqualsName      Reason = "id_equals_name"
	ReasonIDNamespaceName   Reason = "id_contains_namespace_and_name"
	ReasonIDContainsName    Reason = "id_contains_name"
	ReasonNamespaceMismatch Reason = "namespace_mismatch"
	ReasonTokenOverlap      Reason = "token_overlap"
	ReasonWebsiteExact      Reason = "website_exact"
	ReasonWebsiteContains   Reason = "website_contains"
)

// Points per signal.
const (
	pointsExactName       = 70
	pointsNamePrefix      = 60
	pointsNameContains    = 50
	pointsIDEqualsName    = 80
	pointsIDNamespaceName = 100
	pointsIDLongName      = 65
	pointsIDShortName     = 50
	penaltyNamespace      = -100
	pointsWebsite         = 70

	prefixRatioMin    = 0.75
	prefixMinLen      = 5
	longNameLen       = 12
	websiteMinNameLen = 4
	minTokenLen       = 3
)

// Contribution is one signed line item of a Report.
type Contribution struct {
	Points int
	Reason Reason
	Detail string
}

// Report explains how a candidate's score was reached.
type Report struct {
	LocalID   string
	LocalName string
	FullName  string
	Lines     []Contribution
	Total     int
}

func (r *Report) add(points int, reason Reason, detail string) {
	r.Lines = append(r.Lines, Contribution{Points: points, Reason: reason, Detail: detail})
	r.Total += points
}

// String renders the report on one line for logs.
func (r *Report) String() string {
	parts := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		parts = append(parts, fmt.Sprintf("%+d %s", l.Points, l.Reason))
	}
	return fmt.Sprintf("%s -> %s = %d [%s]", r.LocalID, r.FullName, r.Total, strings.Join(parts, ", "))
}

// ScoreMatch scores how likely pkg is the remote identity of the local
// plugin (localID, localName).
func ScoreMatch(localID, localName string, pkg catalog.Package) Report {
	r := Report{LocalID: localID, LocalName: localName, FullName: pkg.FullName}

	local := Normalize(localName)
	remote := Normalize(pkg.Name)
	id := Normalize(localID)
	ns := Normalize(pkg.Namespace())

	scoreName(&r, local, remote)
	scoreID(&r, localID, id, remote, ns)
	scoreTokens(&r, localName, pkg.Name)
	scoreWebsite(&r, local, pkg.WebsiteURL)

	return r
}

func scoreName(r *Report, local, remote string) {
	switch {
	case local == "" || remote == "":
	case local == remote:
		r.add(pointsExactName, ReasonExactName, local)
	case len(local) > prefixMinLen && len(remote) > prefixMinLen && prefixRatio(local, remote) >= prefixRatioMin:
		r.add(pointsNamePrefix, ReasonNamePrefix, fmt.Sprintf("%.2f", prefixRatio(local, remote)))
	case strings.Contains(local, remote) || strings.Contains(remote, local):
		r.add(pointsNameContains, ReasonNameContains, "")
	}
}

func scoreID(r *Report, rawID, id, remote, ns string) {
	if id == "" || remote == "" {
		return
	}

	if id == remote {
		r.add(pointsIDEqualsName, ReasonIDEqualsName, "")
	}

	hasName := strings.Contains(id, remote)
	hasNS := ns != "" && strings.Contains(id, ns)
	switch {
	case hasName && hasNS:
		r.add(pointsIDNamespaceName, ReasonIDNamespaceName, ns)
	case hasName && len(remote) >= longNameLen:
		r.add(pointsIDLongName, ReasonIDContainsName, "long name")
	case hasName:
		r.add(pointsIDShortName, ReasonIDContainsName, "short name")
	}

	if ns != "" && !hasNS && strings.ContainsAny(rawID, ".-") {
		r.add(penaltyNamespace, ReasonNamespaceMismatch, ns)
	}
}

func scoreTokens(r *Report, localName, remoteName string) {
	a, b := tokenSet(localName), tokenSet(remoteName)
	larger := len(a)
	if len(b) > larger {
		larger = len(b)
	}
	if larger == 0 {
		return
	}

	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	if shared < 2 && !(shared == 1 && larger <= 2) {
		return
	}

	ratio := float64(shared) / float64(larger)
	detail := fmt.Sprintf("%d/%d", shared, larger)
	switch {
	case ratio >= 0.8:
		r.add(75, ReasonTokenOverlap, detail)
	case ratio >= 0.65:
		r.add(65, ReasonTokenOverlap, detail)
	case ratio >= 0.5:
		r.add(55, ReasonTokenOverlap, detail)
	}
}

func scoreWebsite(r *Report, local, website string) {
	seg := Normalize(trailingSegment(website))
	if seg == "" || local == "" {
		return
	}
	switch {
	case seg == local:
		r.add(pointsWebsite, ReasonWebsiteExact, seg)
	case len(local) > websiteMinNameLen && (strings.Contains(seg, local) || strings.Contains(local, seg)):
		r.add(pointsWebsite, ReasonWebsiteContains, seg)
	}
}

// Normalize lower-cases s and drops every non-alphanumeric rune.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Tokenize splits s on camel-case and non-alphanumeric boundaries and
// returns lower-cased tokens longer than two characters.
func Tokenize(s string) []string {
	var (
		tokens  []string
		current []rune
	)
	flush := func() {
		if len(current) >= minTokenLen {
			tokens = append(tokens, strings.ToLower(string(current)))
		}
		current = current[:0]
	}

	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && len(current) > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return tokens
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

func prefixRatio(a, b string) float64 {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return float64(n) / float64(longer)
}

func trailingSegment(raw string) string {
	if raw == "" {
		return ""
	}
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}
