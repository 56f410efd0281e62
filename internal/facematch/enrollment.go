package facematch

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Appender persists one more reference for an identity and reports where.
type Appender interface {
	Append(ctx context.Context, identity string, e Embedding) (string, error)
}

// EnrollmentPolicy grows an identity's reference set after a confident login.
// Samples closer than DLow to any reference are redundant; samples with at
// least one reference strictly inside (DLow, DHigh) are saved; everything
// else is rejected.
type EnrollmentPolicy struct {
	DLow  float64
	DHigh float64
}

// Decide classifies query against the given references without side effects.
func (p EnrollmentPolicy) Decide(query Embedding, refs []Embedding) EnrollmentDecision {
	closest := math.Inf(1)
	inBand := false
	compared := 0
	for _, ref := range refs {
		if len(ref) != len(query) {
			continue
		}
		compared++
		d := EuclideanDistance(query, ref)
		if d < p.DLow {
			return EnrollmentDecision{
				Action:   ActionSkip,
				Reason:   "already known",
				Distance: &d,
			}
		}
		if d > p.DLow && d < p.DHigh {
			inBand = true
		}
		closest = min(closest, d)
	}

	if compared == 0 {
		return EnrollmentDecision{Action: ActionReject, Reason: "no references"}
	}
	if inBand {
		return EnrollmentDecision{
			Action:   ActionSave,
			Reason:   "new variation",
			Distance: &closest,
		}
	}
	return EnrollmentDecision{
		Action:   ActionReject,
		Reason:   "too different from known references",
		Distance: &closest,
	}
}

// Consider evaluates query for identity against g and, on Save, appends it
// through a. It is meant to run only after a confident match on identity.
func (p EnrollmentPolicy) Consider(
	ctx context.Context, identity string, query Embedding, g *Gallery, a Appender,
) (EnrollmentDecision, error) {
	if identity == "" || identity == Unknown {
		return EnrollmentDecision{}, errors.New("enrollment requires a matched identity")
	}
	if err := ValidateQuery(query, g.Dimension()); err != nil {
		return EnrollmentDecision{}, err
	}

	decision := p.Decide(query, g.References(identity))
	if decision.Action != ActionSave {
		return decision, nil
	}

	location, err := a.Append(ctx, identity, query)
	if err != nil {
		return EnrollmentDecision{}, fmt.Errorf("saving reference for %s: %w", identity, err)
	}
	decision.Location = location
	return decision, nil
}
