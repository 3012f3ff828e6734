// Package themes ports the closed allowed-theme catalog and normalization
// algorithm from the original market pulse implementation
// (app/constants/themes.py): exact match, then news-type keyword match, then
// sector-keyword substring match, with a suffix-stripping fallback.
package themes

import "strings"

// MaxThemedNewsItems bounds the themed entries exposed on the response
// boundary (named to mirror the original's MAX_THEMED_NEWS_ITEMS).
const MaxThemedNewsItems = 5

// AllowedThemes is the closed, ordered 15-entry catalog permitted to cross
// the response boundary. Order matters only for display; matching is
// order-independent.
var AllowedThemes = []string{
	// Sector-Driven (Core)
	"Banking & Financials",
	"Information Technology (IT)",
	"Oil, Gas & Energy",
	"FMCG & Consumer Staples",
	"Consumer Discretionary",
	"Automobiles & Auto Ancillaries",
	"Pharma & Healthcare",
	"Metals & Mining",
	"Infrastructure & Capital Goods",
	"Real Estate",
	// Macro / Flow-Driven
	"Global Market Cues",
	"RBI & Interest Rates",
	"Commodities & Crude Prices",
	"FII & DII Flows",
	// Structural / Emerging
	"EV, Green Energy & New-Age Themes",
}

// newsTypeToTheme maps internal news-type/sector keywords (lowercased) to an
// exact allowed theme string.
var newsTypeToTheme = map[string]string{
	"economy":                     "RBI & Interest Rates",
	"economic & policy updates":   "RBI & Interest Rates",
	"foreign markets":             "Global Market Cues",
	"global market updates":       "Global Market Cues",
	"other markets":               "Commodities & Crude Prices",
	"commodities & forex":         "Commodities & Crude Prices",
	"general":                     "Global Market Cues",
}

type keywordMapping struct {
	keywords []string
	theme    string
}

// sectorKeywordsToTheme matches case-insensitive substrings against an
// allowed theme. Order is significant: first match wins.
var sectorKeywordsToTheme = []keywordMapping{
	{[]string{"banking", "banks", "nbfc", "financials", "insurer", "lending"}, "Banking & Financials"},
	{[]string{"it", "information technology", "software", "tech", "export"}, "Information Technology (IT)"},
	{[]string{"oil", "gas", "energy", "power", "utilities", "upstream", "downstream"}, "Oil, Gas & Energy"},
	{[]string{"fmcg", "consumer staples", "staples", "defensive"}, "FMCG & Consumer Staples"},
	{[]string{"consumer discretionary", "retail", "durables"}, "Consumer Discretionary"},
	{[]string{"auto", "automobile", "oem", "ancillar"}, "Automobiles & Auto Ancillaries"},
	{[]string{"pharma", "healthcare", "diagnostic", "hospital"}, "Pharma & Healthcare"},
	{[]string{"metals", "mining", "steel", "aluminium"}, "Metals & Mining"},
	{[]string{"infrastructure", "capital goods", "construction", "engineering"}, "Infrastructure & Capital Goods"},
	{[]string{"real estate", "realty", "housing"}, "Real Estate"},
	{[]string{"global", "us ", "europe", "asia", "overnight", "cues"}, "Global Market Cues"},
	{[]string{"rbi", "interest rate", "monetary", "liquidity", "yield"}, "RBI & Interest Rates"},
	{[]string{"commodit", "crude", "agri"}, "Commodities & Crude Prices"},
	{[]string{"fii", "dii", "flow", "institutional"}, "FII & DII Flows"},
	{[]string{"ev", "green energy", "renewable", "energy transition", "new-age"}, "EV, Green Energy & New-Age Themes"},
}

// allowedSet is built once for O(1) exact-match lookups.
var allowedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(AllowedThemes))
	for _, t := range AllowedThemes {
		m[t] = struct{}{}
	}
	return m
}()

func isAllowed(name string) bool {
	_, ok := allowedSet[name]
	return ok
}

func matchKeywords(key string) (string, bool) {
	if theme, ok := newsTypeToTheme[key]; ok {
		return theme, true
	}
	for _, mapping := range sectorKeywordsToTheme {
		for _, kw := range mapping.keywords {
			if strings.Contains(key, kw) {
				return mapping.theme, true
			}
		}
	}
	return "", false
}

// Normalize maps an arbitrary theme name (from an agent or clustering step)
// onto the allowed-theme catalog. It reports ok=false when no match could be
// found, in which case the caller must drop the theme with a warning.
//
// Normalize(Normalize(x)) == Normalize(x) for any string x: once normalized
// the result is always an exact-match entry in AllowedThemes, so a second
// pass hits the exact-match branch and returns unchanged.
func Normalize(themeName string) (string, bool) {
	name := strings.TrimSpace(themeName)
	if name == "" {
		return "", false
	}
	if isAllowed(name) {
		return name, true
	}
	key := strings.ToLower(name)
	if theme, ok := matchKeywords(key); ok {
		return theme, true
	}
	for _, suffix := range []string{" news", " update"} {
		if strings.HasSuffix(key, suffix) {
			base := strings.TrimSpace(strings.TrimSuffix(key, suffix))
			if isAllowed(base) {
				return base, true
			}
			if theme, ok := matchKeywords(base); ok {
				return theme, true
			}
		}
	}
	return "", false
}
