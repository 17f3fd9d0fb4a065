package persona

import "sort"

// Demographic attribute names.
const (
	AttrAgeGroup      = "age_group"
	AttrGender        = "gender"
	AttrLocation      = "location"
	AttrEducation     = "education"
	AttrIncomeBracket = "income_bracket"
)

// Attributes lists demographic attributes in canonical order.
var Attributes = []string{AttrAgeGroup, AttrGender, AttrLocation, AttrEducation, AttrIncomeBracket}

// Weights maps a category to its relative weight. Weights need not sum to 1.
type Weights map[string]float64

// Distribution maps a demographic attribute to its category weights.
type Distribution map[string]Weights

// Demographics is one sampled demographic profile.
type Demographics struct {
	AgeGroup      string `json:"age_group"`
	Gender        string `json:"gender"`
	Location      string `json:"location"`
	Education     string `json:"education"`
	IncomeBracket string `json:"income_bracket"`
}

// DefaultDistribution is a broad adult consumer population used for any
// attribute a project does not target.
var DefaultDistribution = Distribution{
	AttrAgeGroup: {
		"18-24": 0.12, "25-34": 0.18, "35-44": 0.17, "45-54": 0.16, "55-64": 0.16, "65+": 0.21,
	},
	AttrGender: {
		"female": 0.5, "male": 0.48, "non-binary": 0.02,
	},
	AttrLocation: {
		"urban": 0.55, "suburban": 0.3, "rural": 0.15,
	},
	AttrEducation: {
		"high_school": 0.28, "some_college": 0.26, "bachelors": 0.28, "masters": 0.13, "doctorate": 0.05,
	},
	AttrIncomeBracket: {
		"<25k": 0.15, "25k-50k": 0.2, "50k-75k": 0.18, "75k-100k": 0.14, "100k-150k": 0.17, ">150k": 0.16,
	},
}

// SampleDemographics picks one category per attribute from dist. Attributes
// missing from dist, or whose weights are all non-positive, use
// DefaultDistribution.
func SampleDemographics(rng Source, dist Distribution) Demographics {
	pick := func(attr string) string {
		if c, ok := choose(rng, dist[attr]); ok {
			return c
		}
		c, _ := choose(rng, DefaultDistribution[attr])
		return c
	}
	return Demographics{
		AgeGroup:      pick(AttrAgeGroup),
		Gender:        pick(AttrGender),
		Location:      pick(AttrLocation),
		Education:     pick(AttrEducation),
		IncomeBracket: pick(AttrIncomeBracket),
	}
}

// choose does a weighted draw. Categories are walked in sorted order so a
// seeded source gives the same answer regardless of map iteration order.
func choose(rng Source, w Weights) (string, bool) {
	categories := make([]string, 0, len(w))
	total := 0.0
	for c, weight := range w {
		if weight > 0 {
			categories = append(categories, c)
			total += weight
		}
	}
	if len(categories) == 0 {
		return "", false
	}
	sort.Strings(categories)

	target := rng.Float64() * total
	for _, c := range categories {
		target -= w[c]
		if target < 0 {
			return c, true
		}
	}
	return categories[len(categories)-1], true
}
