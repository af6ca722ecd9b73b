package event

import "strings"

// cameoRootCategories maps 2-digit CAMEO event roots to canonical categories.
// Roots 13 and 17-20 cover coercion through mass violence.
var cameoRootCategories = map[string]Category{
	"01": CategoryPolitical, "02": CategoryPolitical, "03": CategoryPolitical,
	"04": CategoryPolitical, "05": CategoryPolitical, "06": CategoryEconomic,
	"07": CategoryEconomic, "08": CategoryPolitical, "09": CategoryPolitical,
	"10": CategoryPolitical, "11": CategoryPolitical, "12": CategoryPolitical,
	"13": CategoryConflict, "14": CategorySocial, "15": CategoryConflict,
	"16": CategoryPolitical, "17": CategoryConflict, "18": CategoryConflict,
	"19": CategoryConflict, "20": CategoryConflict,
}

// reliefWebTypeCategories maps ReliefWeb disaster/report types to categories.
var reliefWebTypeCategories = map[string]Category{
	"Flood":             CategoryEnvironmental,
	"Flash Flood":       CategoryEnvironmental,
	"Drought":           CategoryEnvironmental,
	"Earthquake":        CategoryEnvironmental,
	"Tropical Cyclone":  CategoryEnvironmental,
	"Wild Fire":         CategoryEnvironmental,
	"Epidemic":          CategoryHealthcare,
	"Complex Emergency": CategoryConflict,
	"Other":             CategorySocial,
}

// indicatorPrefixCategories maps indicator-code prefixes (World Bank style)
// to categories. Longest prefix wins.
var indicatorPrefixCategories = []struct {
	prefix   string
	category Category
}{
	{"NY.GDP", CategoryEconomic},
	{"NY.", CategoryEconomic},
	{"FP.CPI", CategoryEconomic},
	{"FP.", CategoryEconomic},
	{"NE.", CategoryTrade},
	{"TX.", CategoryTrade},
	{"TM.", CategoryTrade},
	{"BX.", CategoryTrade},
	{"SH.", CategoryHealthcare},
	{"SP.", CategorySocial},
	{"SL.", CategorySocial},
	{"SE.", CategorySocial},
	{"EG.", CategoryEnergy},
	{"EN.", CategoryEnvironmental},
	{"IS.", CategoryInfrastructure},
	{"IT.", CategoryInfrastructure},
	{"IC.", CategoryRegulatory},
	{"GC.", CategoryEconomic},
	{"FM.", CategoryEconomic},
	{"FR.", CategoryEconomic},
	{"PA.", CategoryEconomic},
	{"DT.", CategoryEconomic},
}

// keywordCategories maps curated search/filing keywords to categories.
// Exact match first, then substring.
var keywordCategories = map[string]Category{
	"oil production":    CategoryEnergy,
	"oil exports":       CategoryEnergy,
	"pdvsa":             CategoryEnergy,
	"gasoline shortage": CategoryEnergy,
	"blackout":          CategoryInfrastructure,
	"power outage":      CategoryInfrastructure,
	"water shortage":    CategoryInfrastructure,
	"inflation":         CategoryEconomic,
	"hyperinflation":    CategoryEconomic,
	"exchange rate":     CategoryEconomic,
	"bolivar":           CategoryEconomic,
	"sovereign default": CategoryEconomic,
	"sanctions":         CategoryRegulatory,
	"ofac":              CategoryRegulatory,
	"export control":    CategoryRegulatory,
	"license":           CategoryRegulatory,
	"protest":           CategorySocial,
	"strike":            CategorySocial,
	"migration":         CategorySocial,
	"refugees":          CategorySocial,
	"election":          CategoryPolitical,
	"coup":              CategoryPolitical,
	"opposition":        CategoryPolitical,
	"detention":         CategoryPolitical,
	"hospital":          CategoryHealthcare,
	"medicine shortage": CategoryHealthcare,
	"malaria":           CategoryHealthcare,
	"armed clash":       CategoryConflict,
	"guerrilla":         CategoryConflict,
	"kidnapping":        CategoryConflict,
	"imports":           CategoryTrade,
	"exports":           CategoryTrade,
	"food imports":      CategoryTrade,
	"deforestation":     CategoryEnvironmental,
	"mining arc":        CategoryEnvironmental,
	"mercury pollution": CategoryEnvironmental,
}

// hs2Categories maps HS commodity chapter codes to categories.
var hs2Categories = map[string]Category{
	"27": CategoryEnergy, // mineral fuels, oils
	"71": CategoryTrade,  // precious metals, stones
	"72": CategoryTrade,
	"10": CategoryTrade,
	"30": CategoryHealthcare, // pharmaceuticals
	"84": CategoryTrade,
	"85": CategoryTrade,
}

// Classify maps a source-native code to (category, subcategory). The
// subcategory is always the source-native code; the category comes from the
// per-source deterministic tables. Unknown codes fall back to POLITICAL for
// event-like sources and ECONOMIC for data-like sources.
func Classify(source, code string) (Category, string) {
	switch source {
	case SourceGDELT:
		if len(code) >= 2 {
			if cat, ok := cameoRootCategories[code[:2]]; ok {
				return cat, code
			}
		}
		return CategoryPolitical, code

	case SourceReliefWeb:
		if cat, ok := reliefWebTypeCategories[code]; ok {
			return cat, code
		}
		return CategorySocial, code

	case SourceWorldBank, SourceFRED:
		for _, p := range indicatorPrefixCategories {
			if strings.HasPrefix(code, p.prefix) {
				return p.category, code
			}
		}
		return CategoryEconomic, code

	case SourceGoogleTrends, SourceSECEdgar:
		lower := strings.ToLower(strings.TrimSpace(code))
		if cat, ok := keywordCategories[lower]; ok {
			return cat, code
		}
		for kw, cat := range keywordCategories {
			if strings.Contains(lower, kw) {
				return cat, code
			}
		}
		if source == SourceSECEdgar {
			return CategoryRegulatory, code
		}
		return CategorySocial, code

	case SourceUNComtrade:
		if len(code) >= 2 {
			if cat, ok := hs2Categories[code[:2]]; ok {
				return cat, code
			}
		}
		return CategoryTrade, code
	}

	// Unknown source: POLITICAL for event-like, ECONOMIC for data-like.
	if isDataLikeCode(code) {
		return CategoryEconomic, code
	}
	return CategoryPolitical, code
}

// isDataLikeCode guesses whether a code names a data series rather than an
// event. Dotted uppercase codes (indicator style) count as data-like.
func isDataLikeCode(code string) bool {
	return strings.Contains(code, ".") && strings.ToUpper(code) == code
}
