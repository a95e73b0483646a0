package conflict

import (
	"fmt"

	"netpromote/internal/environment"
)

// ScoringWeights tune the confidence attached to a recommendation. The
// defaults are heuristics, not derived values.
type ScoringWeights struct {
	Base                float64 `yaml:"base" mapstructure:"base"`
	AutoResolvableBonus float64 `yaml:"auto_resolvable_bonus" mapstructure:"auto_resolvable_bonus"`
	ProductionFactor    float64 `yaml:"production_factor" mapstructure:"production_factor"`
	DevelopmentBonus    float64 `yaml:"development_bonus" mapstructure:"development_bonus"`
	SafeExtensionBonus  float64 `yaml:"safe_extension_bonus" mapstructure:"safe_extension_bonus"`
}

// DefaultScoringWeights returns the built-in weights
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Base:                0.5,
		AutoResolvableBonus: 0.3,
		ProductionFactor:    0.7,
		DevelopmentBonus:    0.2,
		SafeExtensionBonus:  0.2,
	}
}

// Confidence scores how safe an automatic resolution of c is in an
// environment of type envType, clamped to [0, 1]
func (w ScoringWeights) Confidence(envType environment.Type, c Info) float64 {
	score := w.Base
	if c.AutoResolvable {
		score += w.AutoResolvableBonus
	}
	switch envType {
	case environment.TypeProduction:
		score *= w.ProductionFactor
	case environment.TypeDevelopment:
		score += w.DevelopmentBonus
	}
	if c.IsSafeForAutoResolution() {
		score += w.SafeExtensionBonus
	}
	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Recommend suggests a strategy for c in env. Production always needs a
// human; staging only automates delete/modify and add/add; development
// automates anything auto-resolvable. Custom environments get no automation.
func (r *Resolver) Recommend(env *environment.Config, c Info) Recommendation {
	rec := Recommendation{
		Path:            c.Path,
		Environment:     env.Name,
		EnvironmentType: env.Type,
		Strategy:        Manual,
		Confidence:      r.weights.Confidence(env.Type, c),
	}

	switch env.Type {
	case environment.TypeProduction:
		rec.Reasoning = "Production changes require manual review"
	case environment.TypeStaging:
		switch c.Type {
		case TypeDeleteModify:
			rec.Strategy = UseOurs
			rec.Reasoning = "Staging keeps its own side of a delete/modify conflict"
		case TypeAddAdd:
			rec.Strategy = AutoMerge
			rec.Reasoning = "Staging combines both sides of an add/add conflict"
		default:
			rec.Reasoning = fmt.Sprintf("Staging resolves %s conflicts manually", c.Type)
		}
	case environment.TypeDevelopment:
		if c.AutoResolvable {
			rec.Strategy = AutoMerge
			rec.Reasoning = "Development accepts automatic resolution of auto-resolvable conflicts"
		} else {
			rec.Reasoning = fmt.Sprintf("%s conflicts cannot be resolved automatically", c.Type)
		}
	default:
		rec.Reasoning = fmt.Sprintf("No automatic policy for %s environments", env.Type)
	}
	return rec
}

// ResolveForEnvironment recommends and resolves every conflict of analysis
// for env. With apply set, successful resolutions are written and staged;
// a failed write turns that result into a failure without stopping the
// batch.
func (r *Resolver) ResolveForEnvironment(env *environment.Config, analysis *Analysis, apply bool) []Result {
	results := make([]Result, 0, len(analysis.Conflicts))
	for _, c := range analysis.Conflicts {
		rec := r.Recommend(env, c)
		res := r.Resolve(c, rec.Strategy)

		if apply && res.Success && res.ResolvedContent != nil {
			if err := r.ApplyResolution(c.Path, *res.ResolvedContent); err != nil {
				res.Success = false
				res.Error = err.Error()
				res.RequiresManualIntervention = true
			}
		}

		r.logger.Debug().
			Str("path", c.Path).
			Str("environment", env.Name).
			Str("strategy", res.Strategy.String()).
			Float64("confidence", rec.Confidence).
			Bool("success", res.Success).
			Msg("Conflict processed")
		results = append(results, res)
	}
	return results
}
