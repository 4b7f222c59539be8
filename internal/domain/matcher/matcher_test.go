package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkeeper/internal/domain/catalog"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "morecompany", Normalize("More_Company!"))
	assert.Equal(t, "lcapi2", Normalize("LC-API 2"))
	assert.Empty(t, Normalize("--"))
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"MoreCompany", []string{"more", "company"}},
		{"HTTPServerMod", []string{"http", "server", "mod"}},
		{"LC_API", []string{"api"}},
		{"better-sprint v2", []string{"better", "sprint"}},
		{"ModX", []string{"mod"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.in), tt.in)
	}
}

func reasons(r Report) []Reason {
	out := make([]Reason, 0, len(r.Lines))
	for _, l := range r.Lines {
		out = append(out, l.Reason)
	}
	return out
}

func sumLines(r Report) int {
	total := 0
	for _, l := range r.Lines {
		total += l.Points
	}
	return total
}

func TestScoreMatch_Signals(t *testing.T) {
	t.Parallel()

	pkg := catalog.Package{
		Name:       "MoreCompany",
		FullName:   "notnotnotswipez-MoreCompany",
		WebsiteURL: "https://github.com/notnotnotswipez/MoreCompany/",
	}

	r := ScoreMatch("me.swipez.morecompany", "MoreCompany", pkg)

	assert.Equal(t, []Reason{
		ReasonExactName,
		ReasonIDContainsName,
		ReasonNamespaceMismatch,
		ReasonTokenOverlap,
		ReasonWebsiteExact,
	}, reasons(r))
	assert.Equal(t, 70+50-100+75+70, r.Total)
	assert.Equal(t, sumLines(r), r.Total)
	assert.Contains(t, r.String(), "-100 namespace_mismatch")
}

func TestScoreMatch_NamespacePenalty(t *testing.T) {
	t.Parallel()

	foreign := catalog.Package{Name: "ModX", FullName: "stranger-ModX"}
	own := catalog.Package{Name: "ModX", FullName: "author-ModX"}

	penalized := ScoreMatch("com.author.modx", "ModX", foreign)
	require.Contains(t, reasons(penalized), ReasonNamespaceMismatch)

	unpenalized := 0
	for _, l := range penalized.Lines {
		if l.Reason != ReasonNamespaceMismatch {
			unpenalized += l.Points
		}
	}
	assert.LessOrEqual(t, penalized.Total, unpenalized-100)

	owned := ScoreMatch("com.author.modx", "ModX", own)
	assert.Contains(t, reasons(owned), ReasonIDNamespaceName)
	assert.NotContains(t, reasons(owned), ReasonNamespaceMismatch)
	assert.Equal(t, 70+100+75, owned.Total)
}

func TestScoreMatch_NameSignals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		localName string
		pkgName   string
		want      Reason
		absent    bool
	}{
		{"prefix ratio", "BetterSprint", "BetterSprints", ReasonNamePrefix, false},
		{"containment", "Emotes", "MoreEmotesPlus", ReasonNameContains, false},
		{"short names no prefix", "Abcde", "Abcdx", ReasonNamePrefix, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := ScoreMatch("plainid", tt.localName, catalog.Package{Name: tt.pkgName, FullName: "a-" + tt.pkgName})
			if tt.absent {
				assert.NotContains(t, reasons(r), tt.want)
				return
			}
			assert.Contains(t, reasons(r), tt.want)
		})
	}
}

func TestScoreMatch_IDSignals(t *testing.T) {
	t.Parallel()

	short := ScoreMatch("lethallib", "Lethal Lib", catalog.Package{Name: "LethalLib", FullName: "Evaisa-LethalLib"})
	assert.Contains(t, reasons(short), ReasonIDEqualsName)
	assert.NotContains(t, reasons(short), ReasonNamespaceMismatch, "un-namespaced id")

	long := ScoreMatch("io.x.ShipLootMultiplierPlus", "Ship Loot", catalog.Package{Name: "ShipLootMultiplierPlus", FullName: "x-ShipLootMultiplierPlus"})
	require.Contains(t, reasons(long), ReasonIDNamespaceName)

	longNoNS := ScoreMatch("io.y.ShipLootMultiplierPlus", "Ship Loot", catalog.Package{Name: "ShipLootMultiplierPlus", FullName: "zed-ShipLootMultiplierPlus"})
	for _, l := range longNoNS.Lines {
		if l.Reason == ReasonIDContainsName {
			assert.Equal(t, 65, l.Points)
		}
	}
}

func TestScoreMatch_TokenSafeMatch(t *testing.T) {
	t.Parallel()

	// One shared token out of three is not enough.
	r := ScoreMatch("id", "Better Flashlight Mod", catalog.Package{Name: "Flashlight Fix Pack", FullName: "a-Flashlight Fix Pack"})
	assert.NotContains(t, reasons(r), ReasonTokenOverlap)

	// Two of three shared scores the 0.65 tier.
	r = ScoreMatch("id", "Better Flashlight Mod", catalog.Package{Name: "BetterFlashlightPlus", FullName: "a-BetterFlashlightPlus"})
	for _, l := range r.Lines {
		if l.Reason == ReasonTokenOverlap {
			assert.Equal(t, 65, l.Points)
		}
	}
	assert.Contains(t, reasons(r), ReasonTokenOverlap)
}

func TestScoreMatch_Website(t *testing.T) {
	t.Parallel()

	r := ScoreMatch("id", "Ship", catalog.Package{Name: "other", FullName: "a-other", WebsiteURL: "https://github.com/a/ShipLoot"})
	assert.NotContains(t, reasons(r), ReasonWebsiteContains, "short local names never match by containment")

	r = ScoreMatch("id", "ShipLoot", catalog.Package{Name: "other", FullName: "a-other", WebsiteURL: "https://github.com/a/ShipLootPlus"})
	assert.Contains(t, reasons(r), ReasonWebsiteContains)

	r = ScoreMatch("id", "example", catalog.Package{Name: "other", FullName: "a-other", WebsiteURL: "https://example.com"})
	assert.Empty(t, r.Lines)
}

func TestSelectBest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		totals        []int
		wantBest      int
		wantAmbiguous bool
	}{
		{"close contenders rejected", []int{61, 64}, 1, true},
		{"clear winner", []int{90, 40}, 0, false},
		{"runner-up below floor ignored", []int{62, 58}, 0, false},
		{"later close candidate", []int{80, 70, 76}, 0, true},
		{"exactly five apart", []int{70, 75}, 1, true},
		{"six apart", []int{70, 76}, 1, false},
		{"tie", []int{70, 70}, 0, true},
		{"nothing eligible", []int{59, 10, -40}, -1, false},
		{"empty", nil, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reports := make([]Report, len(tt.totals))
			for i, total := range tt.totals {
				reports[i] = Report{Total: total}
			}
			best, ambiguous := selectBest(reports)
			assert.Equal(t, tt.wantBest, best)
			assert.Equal(t, tt.wantAmbiguous, ambiguous)
		})
	}
}

func TestFindBestMatch(t *testing.T) {
	t.Parallel()

	m := New(nil)
	candidates := []catalog.Package{
		{Name: "LethalLib", FullName: "Evaisa-LethalLib", WebsiteURL: "https://github.com/EvaisaDev/LethalLib"},
		{Name: "MoreCompany", FullName: "notnotnotswipez-MoreCompany"},
		{Name: "BepInExPack", FullName: "BepInEx-BepInExPack"},
	}

	d := m.FindBestMatch(context.Background(), "evaisa.lethallib", "LethalLib", candidates)
	require.True(t, d.Matched())
	assert.Equal(t, "Evaisa-LethalLib", d.Package.FullName)
	assert.False(t, d.Ambiguous)
	require.NotNil(t, d.Best)
	assert.Equal(t, "Evaisa-LethalLib", d.Best.FullName)

	d = m.FindBestMatch(context.Background(), "com.unrelated.thing", "Totally Unrelated", candidates)
	assert.False(t, d.Matched())
	assert.Nil(t, d.Best)
}

func TestFindBestMatch_AmbiguousDuplicates(t *testing.T) {
	t.Parallel()

	candidates := []catalog.Package{
		{Name: "FlashlightFix", FullName: "one-FlashlightFix"},
		{Name: "FlashlightFix", FullName: "two-FlashlightFix"},
	}

	d := New(nil).FindBestMatch(context.Background(), "FlashlightFix", "FlashlightFix", candidates)
	assert.False(t, d.Matched())
	assert.True(t, d.Ambiguous)
	assert.Len(t, d.Contenders, 2)
	require.NotNil(t, d.Best)
}

func TestMatchAll(t *testing.T) {
	t.Parallel()

	locals := []ports.LocalPlugin{
		{ID: "evaisa.lethallib", DisplayName: "LethalLib", InstalledVersion: "0.15.0"},
		{ID: "nobody.nothing", DisplayName: "Nothing"},
	}
	packages := []catalog.Package{{Name: "LethalLib", FullName: "Evaisa-LethalLib"}}

	matches := New(nil).MatchAll(context.Background(), locals, packages)
	require.Len(t, matches, 2)
	assert.True(t, matches[0].Decision.Matched())
	assert.False(t, matches[1].Decision.Matched())
	assert.Equal(t, "nobody.nothing", matches[1].Local.ID)
}
