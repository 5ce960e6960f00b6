// File: internal/verify/effect.go
package verify

import (
	"math"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/perception"
)

// defaultNearRadius bounds EffectElementNearPoint when the effect leaves
// Radius unset, in image pixels.
const defaultNearRadius = 50.0

// EvaluateEffect compares before/after detection snapshots against an
// expected-effect predicate. When the predicate cannot be evaluated (the
// detector recognized nothing after the action) the outcome is
// Inconclusive: treated like a failure for retry purposes but flagged
// separately in the final result.
func EvaluateEffect(spec schemas.EffectSpec, before, after *perception.Snapshot) schemas.VerificationOutcome {
	switch spec.Kind {
	case schemas.EffectNone, "":
		return schemas.VerificationSkipped
	}

	if after == nil || after.Empty() {
		return schemas.VerificationInconclusive
	}

	switch spec.Kind {
	case schemas.EffectElementAppears:
		beforeCount := 0
		if before != nil {
			beforeCount = countMatching(before, spec)
		}
		if countMatching(after, spec) > beforeCount {
			return schemas.VerificationConfirmed
		}
		return schemas.VerificationRefuted

	case schemas.EffectElementVanishes:
		if before == nil || len(before.FindAll(spec.Label)) == 0 {
			// Nothing to vanish; the premise does not hold.
			return schemas.VerificationInconclusive
		}
		if len(after.FindAll(spec.Label)) == 0 {
			return schemas.VerificationConfirmed
		}
		return schemas.VerificationRefuted

	case schemas.EffectElementNearPoint:
		if spec.Near == nil {
			return schemas.VerificationInconclusive
		}
		if countMatching(after, spec) > 0 {
			return schemas.VerificationConfirmed
		}
		return schemas.VerificationRefuted

	default:
		return schemas.VerificationInconclusive
	}
}

// countMatching counts elements carrying the effect's label, restricted to
// the neighborhood of spec.Near when set.
func countMatching(snap *perception.Snapshot, spec schemas.EffectSpec) int {
	radius := spec.Radius
	if radius <= 0 {
		radius = defaultNearRadius
	}

	n := 0
	for _, e := range snap.FindAll(spec.Label) {
		if spec.Near != nil {
			c := e.Center()
			if math.Hypot(c.X-spec.Near.X, c.Y-spec.Near.Y) > radius {
				continue
			}
		}
		n++
	}
	return n
}
