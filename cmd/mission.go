// File: cmd/mission.go
// Mission files are ordered lists of operations against the target
// application, written by hand or by an external planner. This file owns
// the decoding of the tagged target envelope into the typed TargetSpec.
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/mverte/visor-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Mission is one ordered batch of operations.
type Mission struct {
	Name       string          `json:"name"`
	Operations []missionAction `json:"operations"`
}

// missionAction is the on-disk shape of one operation.
type missionAction struct {
	ID        string              `json:"id"`
	Operation string              `json:"operation"`
	Modality  string              `json:"modality"`
	Target    jsoniter.RawMessage `json:"target"`
	Text      string              `json:"text"`
	Key       string              `json:"key"`
	Expected  *schemas.EffectSpec `json:"expected"`
}

// targetEnvelope is the tagged union wrapping a TargetSpec on disk.
type targetEnvelope struct {
	Kind   string              `json:"kind"`
	Point  *schemas.Point      `json:"point"`
	Label  string              `json:"label"`
	Hint   *schemas.ImagePoint `json:"hint"`
	Params jsoniter.RawMessage `json:"params"`
}

// LoadMission reads and validates a mission file.
func LoadMission(path string) (*Mission, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission file: %w", err)
	}

	var mission Mission
	if err := json.Unmarshal(raw, &mission); err != nil {
		return nil, fmt.Errorf("failed to parse mission file %s: %w", path, err)
	}
	if len(mission.Operations) == 0 {
		return nil, fmt.Errorf("mission %s contains no operations", path)
	}
	return &mission, nil
}

// Requests converts the mission's actions into ActionRequests, in order.
func (m *Mission) Requests() ([]schemas.ActionRequest, error) {
	reqs := make([]schemas.ActionRequest, 0, len(m.Operations))
	for i, act := range m.Operations {
		req, err := act.toRequest()
		if err != nil {
			return nil, fmt.Errorf("operation %d (%q): %w", i+1, act.Operation, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (a missionAction) toRequest() (schemas.ActionRequest, error) {
	if a.Operation == "" {
		return schemas.ActionRequest{}, fmt.Errorf("missing operation name")
	}

	req := schemas.ActionRequest{
		ID:        a.ID,
		Operation: a.Operation,
		Text:      a.Text,
		Key:       a.Key,
		Expected:  a.Expected,
	}

	if a.Modality != "" {
		m := schemas.Modality(a.Modality)
		switch m {
		case schemas.ModalityStructured, schemas.ModalityVisual, schemas.ModalityHybrid:
			req.ModalityHint = &m
		default:
			return schemas.ActionRequest{}, fmt.Errorf("unknown modality %q", a.Modality)
		}
	}

	target, err := decodeTarget(a.Target)
	if err != nil {
		return schemas.ActionRequest{}, err
	}
	req.Target = target
	return req, nil
}

// decodeTarget unwraps the tagged envelope. A missing target is legal for
// structured operations without parameters.
func decodeTarget(raw jsoniter.RawMessage) (schemas.TargetSpec, error) {
	if len(raw) == 0 {
		return schemas.CallTarget{}, nil
	}

	var env targetEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed target: %w", err)
	}

	switch env.Kind {
	case "point":
		if env.Point == nil {
			return nil, fmt.Errorf("point target is missing its point")
		}
		return schemas.PointTarget{Point: *env.Point}, nil
	case "element":
		if env.Label == "" {
			return nil, fmt.Errorf("element target is missing its label")
		}
		return schemas.ElementTarget{Label: env.Label, Hint: env.Hint}, nil
	case "call":
		return schemas.CallTarget{Params: env.Params}, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", env.Kind)
	}
}
