// Package tools declares the side-effecting functions the coach may call
// during a turn and applies their effects to skill and session state.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/DannyMichaels/code-dojo-app/internal/provider"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// Tool names.
const (
	RecordObservation      = "record_observation"
	UpdateMastery          = "update_mastery"
	QueueReinforcement     = "queue_reinforcement"
	SetBelt                = "set_belt"
	SetAssessmentAvailable = "set_assessment_available"
	SetTrainingContext     = "set_training_context"
	PresentProblem         = "present_problem"
	CompleteSession        = "complete_session"
)

// RecordObservationInput notes something about the learner.
type RecordObservationInput struct {
	Type     string `json:"type" jsonschema:"kind of observation, e.g. strength, mistake, misconception, habit"`
	Note     string `json:"note" jsonschema:"what was observed"`
	Concept  string `json:"concept,omitempty" jsonschema:"concept the observation is about"`
	Severity string `json:"severity,omitempty" jsonschema:"how much the observation matters"`
}

// UpdateMasteryInput records one attempt at a concept.
type UpdateMasteryInput struct {
	Concept     string `json:"concept" jsonschema:"concept name, e.g. error_handling"`
	Success     bool   `json:"success" jsonschema:"whether the learner applied the concept correctly"`
	Context     string `json:"context,omitempty" jsonschema:"situation the concept was applied in"`
	BeltLevel   string `json:"belt_level,omitempty" jsonschema:"belt at which the concept is introduced"`
	Observation string `json:"observation,omitempty" jsonschema:"short note to keep with the concept"`
}

// QueueReinforcementInput asks for a concept to be revisited.
type QueueReinforcementInput struct {
	Concept  string `json:"concept" jsonschema:"concept to revisit"`
	Priority string `json:"priority" jsonschema:"urgency of the revisit"`
	Context  string `json:"context,omitempty" jsonschema:"what went wrong or what to practice"`
}

// SetBeltInput places or promotes the learner.
type SetBeltInput struct {
	Belt   string `json:"belt" jsonschema:"target belt"`
	Reason string `json:"reason,omitempty" jsonschema:"why the belt is warranted"`
}

// SetAssessmentAvailableInput toggles whether an assessment may be taken.
type SetAssessmentAvailableInput struct {
	Available bool   `json:"available" jsonschema:"whether the learner may take a belt assessment"`
	Reason    string `json:"reason,omitempty" jsonschema:"why"`
}

// SetTrainingContextInput stores skill-specific coaching context.
type SetTrainingContextInput struct {
	Context string `json:"context" jsonschema:"coaching context for this skill: goals, background, preferred language"`
}

// PresentProblemInput records the exercise given to the learner.
type PresentProblemInput struct {
	Prompt           string   `json:"prompt" jsonschema:"problem statement shown to the learner"`
	ConceptsTargeted []string `json:"concepts_targeted" jsonschema:"concepts the problem exercises"`
	BeltLevel        string   `json:"belt_level,omitempty" jsonschema:"belt the problem is pitched at"`
	StarterCode      string   `json:"starter_code,omitempty" jsonschema:"optional starter code"`
	Language         string   `json:"language,omitempty" jsonschema:"programming language of the problem"`
}

// CompleteSessionInput closes the session with an evaluation.
type CompleteSessionInput struct {
	Correctness string `json:"correctness,omitempty" jsonschema:"overall correctness of the learner's work"`
	Quality     string `json:"quality,omitempty" jsonschema:"short assessment of code quality"`
	Passed      bool   `json:"passed,omitempty" jsonschema:"for assessments, whether the learner passed"`
	Summary     string `json:"summary,omitempty" jsonschema:"summary of the session"`
}

// Definition is a tool declaration with its resolved input schema.
type Definition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
}

var (
	severities    = []any{"info", "minor", "major"}
	priorities    = []any{string(models.PriorityLow), string(models.PriorityMedium), string(models.PriorityHigh)}
	correctnesses = []any{"correct", "partial", "incorrect"}
)

func beltEnum() []any {
	out := make([]any, len(models.BeltOrder))
	for i, b := range models.BeltOrder {
		out[i] = string(b)
	}
	return out
}

// Definitions builds every tool declaration. It fails only if a schema cannot
// be inferred or resolved.
func Definitions() ([]*Definition, error) {
	specs := []struct {
		name        string
		description string
		build       func() (*jsonschema.Schema, error)
	}{
		{RecordObservation, "Record an observation about the learner's work or habits.", func() (*jsonschema.Schema, error) {
			s, err := jsonschema.For[RecordObservationInput](nil)
			if err != nil {
				return nil, err
			}
			nonEmpty(s, "type", "note")
			enum(s, "severity", severities)
			return s, nil
		}},
		{UpdateMastery, "Record an attempt at a concept and whether it succeeded.", func() (*jsonschema.Schema, error) {
			s, err := jsonschema.For[UpdateMasteryInput](nil)
			if err != nil {
				return nil, err
			}
			nonEmpty(s, "concept")
			enum(s, "belt_level", beltEnum())
			return s, nil
		}},
		{QueueReinforcement, "Queue a concept for reinforcement in a later session.", func() (*jsonschema.Schema, error) {
			s, err := jsonschema.For[QueueReinforcementInput](nil)
			if err != nil {
				return nil, err
			}
			nonEmpty(s, "concept")
			enum(s, "priority", priorities)
			return s, nil
		}},
		{SetBelt, "Set the learner's belt. During onboarding this places the learner; otherwise it promotes by one rank when eligible.", func() (*jsonschema.Schema, error) {
			s, err := jsonschema.For[SetBeltInput](nil)
			if err != nil {
				return nil, err
			}
			enum(s, "belt", beltEnum())
			return s, nil
		}},
		{SetAssessmentAvailable, "Mark whether the learner may take a belt assessment.", func() (*jsonschema.Schema, error) {
			return jsonschema.For[SetAssessmentAvailableInput](nil)
		}},
		{SetTrainingContext, "Store coaching context for this skill.", func() (*jsonschema.Schema, error) {
			s, err := jsonschema.For[SetTrainingContextInput](nil)
			if err != nil {
				return nil, err
			}
			nonEmpty(s, "context")
			return s, nil
		}},
		{PresentProblem, "Record the problem presented to the learner.", func() (*jsonschema.Schema, error) {
			s, err := jsonschema.For[PresentProblemInput](nil)
			if err != nil {
				return nil, err
			}
			nonEmpty(s, "prompt")
			enum(s, "belt_level", beltEnum())
			return s, nil
		}},
		{CompleteSession, "Finish the session with an evaluation. Ends the turn.", func() (*jsonschema.Schema, error) {
			s, err := jsonschema.For[CompleteSessionInput](nil)
			if err != nil {
				return nil, err
			}
			enum(s, "correctness", correctnesses)
			return s, nil
		}},
	}

	defs := make([]*Definition, 0, len(specs))
	for _, spec := range specs {
		schema, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("failed to build schema for %s: %w", spec.name, err)
		}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve schema for %s: %w", spec.name, err)
		}
		defs = append(defs, &Definition{
			Name:        spec.name,
			Description: spec.description,
			Schema:      schema,
			resolved:    resolved,
		})
	}
	return defs, nil
}

// Validate checks decoded JSON arguments against the tool's schema.
func (d *Definition) Validate(args any) error {
	return d.resolved.Validate(args)
}

// ProviderTool renders the definition for a chat completion request.
func (d *Definition) ProviderTool() (provider.Tool, error) {
	params, err := json.Marshal(d.Schema)
	if err != nil {
		return provider.Tool{}, fmt.Errorf("failed to marshal schema for %s: %w", d.Name, err)
	}
	return provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		},
	}, nil
}

func enum(s *jsonschema.Schema, prop string, values []any) {
	if p, ok := s.Properties[prop]; ok {
		p.Enum = values
	}
}

func nonEmpty(s *jsonschema.Schema, props ...string) {
	one := 1
	for _, prop := range props {
		if p, ok := s.Properties[prop]; ok {
			p.MinLength = &one
		}
	}
}
