// Package persona samples the psychographic and demographic attributes of
// synthetic research personas.
//
// Every sampler takes its random source as an argument and keeps no state,
// so a seeded *rand.Rand (math/rand/v2) reproduces the same panel.
package persona

// Source is the randomness the samplers need. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	NormFloat64() float64
}

// Big Five (OCEAN) trait names.
const (
	Openness          = "openness"
	Conscientiousness = "conscientiousness"
	Extraversion      = "extraversion"
	Agreeableness     = "agreeableness"
	Neuroticism       = "neuroticism"
)

// Hofstede cultural dimension names.
const (
	PowerDistance        = "power_distance"
	Individualism        = "individualism"
	Masculinity          = "masculinity"
	UncertaintyAvoidance = "uncertainty_avoidance"
	LongTermOrientation  = "long_term_orientation"
	Indulgence           = "indulgence"
)

// BigFiveTraits lists the trait names in canonical order.
var BigFiveTraits = []string{Openness, Conscientiousness, Extraversion, Agreeableness, Neuroticism}

// CulturalDimensions lists the dimension names in canonical order.
var CulturalDimensions = []string{PowerDistance, Individualism, Masculinity, UncertaintyAvoidance, LongTermOrientation, Indulgence}

const (
	defaultTraitMean = 0.5
	traitStdDev      = 0.15

	culturalMean   = 0.5
	culturalStdDev = 0.2
)

// PersonalityProfile holds Big Five scores, each in [0,1].
type PersonalityProfile struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// Get returns a trait by name.
func (p PersonalityProfile) Get(trait string) (float64, bool) {
	switch trait {
	case Openness:
		return p.Openness, true
	case Conscientiousness:
		return p.Conscientiousness, true
	case Extraversion:
		return p.Extraversion, true
	case Agreeableness:
		return p.Agreeableness, true
	case Neuroticism:
		return p.Neuroticism, true
	}
	return 0, false
}

func (p *PersonalityProfile) set(trait string, v float64) {
	switch trait {
	case Openness:
		p.Openness = v
	case Conscientiousness:
		p.Conscientiousness = v
	case Extraversion:
		p.Extraversion = v
	case Agreeableness:
		p.Agreeableness = v
	case Neuroticism:
		p.Neuroticism = v
	}
}

// CulturalProfile holds Hofstede dimension scores, each in [0,1].
type CulturalProfile struct {
	PowerDistance        float64 `json:"power_distance"`
	Individualism        float64 `json:"individualism"`
	Masculinity          float64 `json:"masculinity"`
	UncertaintyAvoidance float64 `json:"uncertainty_avoidance"`
	LongTermOrientation  float64 `json:"long_term_orientation"`
	Indulgence           float64 `json:"indulgence"`
}

// Get returns a dimension by name.
func (c CulturalProfile) Get(dimension string) (float64, bool) {
	switch dimension {
	case PowerDistance:
		return c.PowerDistance, true
	case Individualism:
		return c.Individualism, true
	case Masculinity:
		return c.Masculinity, true
	case UncertaintyAvoidance:
		return c.UncertaintyAvoidance, true
	case LongTermOrientation:
		return c.LongTermOrientation, true
	case Indulgence:
		return c.Indulgence, true
	}
	return 0, false
}

// SampleBigFive draws each trait independently from N(mean, 0.15), where
// mean is skew[trait] (default 0.5) clipped to [0,1]. Draws are clipped to
// [0,1]. No correlation between traits is modelled.
func SampleBigFive(rng Source, skew map[string]float64) PersonalityProfile {
	var p PersonalityProfile
	for _, trait := range BigFiveTraits {
		mean := defaultTraitMean
		if v, ok := skew[trait]; ok {
			mean = v
		}
		mean = clip01(mean)
		p.set(trait, clip01(mean+traitStdDev*rng.NormFloat64()))
	}
	return p
}

// SampleCulturalDimensions draws each dimension from N(0.5, 0.2), clipped
// to [0,1].
func SampleCulturalDimensions(rng Source) CulturalProfile {
	draw := func() float64 {
		return clip01(culturalMean + culturalStdDev*rng.NormFloat64())
	}
	return CulturalProfile{
		PowerDistance:        draw(),
		Individualism:        draw(),
		Masculinity:          draw(),
		UncertaintyAvoidance: draw(),
		LongTermOrientation:  draw(),
		Indulgence:           draw(),
	}
}

// clip01 also maps NaN to 0 so a bad skew value cannot escape the range.
func clip01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
