package matcher

import (
	"context"
	"sort"

	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

const (
	// MinScore is the lowest total a candidate needs to be eligible.
	MinScore = 60
	// AmbiguityThreshold is the closest a runner-up may score to the best
	// candidate before the match is rejected as ambiguous.
	AmbiguityThreshold = 5
)

// Decision is the outcome of FindBestMatch.
type Decision struct {
	// Package is the accepted match; nil when nothing qualified or the
	// result was ambiguous.
	Package *catalog.Package
	// Best is the report of the top-scoring eligible candidate.
	Best *Report
	// Ambiguous is set when an eligible runner-up was within
	// AmbiguityThreshold of Best.
	Ambiguous bool
	// Contenders are the eligible reports, best first.
	Contenders []Report
}

// Matched reports whether a package was accepted.
func (d Decision) Matched() bool {
	return d.Package != nil
}

// Match pairs a local plugin with its decision.
type Match struct {
	Local    ports.LocalPlugin
	Decision Decision
}

// Matcher runs FindBestMatch over candidate lists and logs its reports.
type Matcher struct {
	logger ports.Logger
}

// New creates a Matcher.
func New(logger ports.Logger) *Matcher {
	return &Matcher{logger: ports.OrNop(logger)}
}

// FindBestMatch scores every candidate for (localID, localName) and returns
// the winner, if any.
func (m *Matcher) FindBestMatch(ctx context.Context, localID, localName string, candidates []catalog.Package) Decision {
	reports := make([]Report, len(candidates))
	for i := range candidates {
		reports[i] = ScoreMatch(localID, localName, candidates[i])
	}

	best, ambiguous := selectBest(reports)
	d := Decision{Ambiguous: ambiguous}
	for _, r := range reports {
		if r.Total >= MinScore {
			d.Contenders = append(d.Contenders, r)
		}
	}
	sort.SliceStable(d.Contenders, func(a, b int) bool { return d.Contenders[a].Total > d.Contenders[b].Total })
	for i := range d.Contenders {
		m.logger.Debug(ctx, "match candidate", ports.F("report", d.Contenders[i].String()))
	}

	switch {
	case best < 0:
		m.logger.Debug(ctx, "no match", ports.F("id", localID))
		return d
	case ambiguous:
		d.Best = &d.Contenders[0]
		m.logger.Debug(ctx, "ambiguous match rejected", ports.F("id", localID), ports.F("contenders", len(d.Contenders)))
		return d
	}

	pkg := candidates[best]
	d.Package = &pkg
	d.Best = &reports[best]
	return d
}

// MatchAll matches each local plugin against packages.
func (m *Matcher) MatchAll(ctx context.Context, locals []ports.LocalPlugin, packages []catalog.Package) []Match {
	out := make([]Match, 0, len(locals))
	for _, lp := range locals {
		out = append(out, Match{Local: lp, Decision: m.FindBestMatch(ctx, lp.ID, lp.DisplayName, packages)})
	}
	return out
}

// selectBest returns the index of the highest eligible total and whether
// another eligible report lies within AmbiguityThreshold of it. The index
// is -1 when no report reaches MinScore.
func selectBest(reports []Report) (int, bool) {
	best := -1
	for i, r := range reports {
		if r.Total >= MinScore && (best < 0 || r.Total > reports[best].Total) {
			best = i
		}
	}
	if best < 0 {
		return -1, false
	}

	for i, r := range reports {
		if i != best && r.Total >= MinScore && reports[best].Total-r.Total <= AmbiguityThreshold {
			return best, true
		}
	}
	return best, false
}
