package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/DannyMichaels/code-dojo-app/internal/belt"
	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

var errNoState = errors.New("tool state is missing skill or session")

func requireState(st *State) error {
	if st == nil || st.Skill == nil || st.Session == nil {
		return errNoState
	}
	return nil
}

func (e *Executor) recordObservation(_ context.Context, in RecordObservationInput, st *State) (map[string]any, error) {
	if err := requireState(st); err != nil {
		return nil, err
	}
	obs := models.SessionObservation{
		Type:     strings.TrimSpace(in.Type),
		Note:     strings.TrimSpace(in.Note),
		Severity: in.Severity,
	}
	attached := false
	if in.Concept != "" {
		obs.Concept = models.NormalizeConceptName(in.Concept)
		if _, ok := st.Skill.Concepts[obs.Concept]; ok {
			name, note := obs.Concept, obs.Note
			err := st.apply(SkillChange{Tool: RecordObservation, Apply: func(s *models.SkillProgress) error {
				if rec, ok := s.Concepts[name]; ok {
					rec.AddObservation(note)
				}
				return nil
			}})
			if err != nil {
				return nil, err
			}
			attached = true
		}
	}
	st.Session.Observations = append(st.Session.Observations, obs)
	st.SessionDirty = true
	return map[string]any{"recorded": true, "attached_to_concept": attached}, nil
}

func (e *Executor) updateMastery(_ context.Context, in UpdateMasteryInput, st *State) (map[string]any, error) {
	if err := requireState(st); err != nil {
		return nil, err
	}
	if models.NormalizeConceptName(in.Concept) == "" {
		return nil, fmt.Errorf("%w: empty concept name", ErrInvalidInput)
	}
	level := models.Belt(in.BeltLevel)
	if in.BeltLevel == "" {
		level = st.Skill.CurrentBelt
	}
	now := st.Now
	err := st.apply(fieldChange(UpdateMastery, now, func(s *models.SkillProgress) {
		_, rec := s.UpsertConcept(in.Concept, level)
		rec.RecordAttempt(in.Success, in.Context, now)
		rec.AddObservation(in.Observation)
		rec.Mastery = e.params.Compute(rec, now)
	}))
	if err != nil {
		return nil, err
	}
	name := models.NormalizeConceptName(in.Concept)
	rec := st.Skill.Concepts[name]

	return map[string]any{
		"concept":         name,
		"mastery_percent": mastery.Percent(rec.Mastery),
		"exposure_count":  rec.ExposureCount,
		"streak":          rec.Streak,
	}, nil
}

func (e *Executor) queueReinforcement(_ context.Context, in QueueReinforcementInput, st *State) (map[string]any, error) {
	if err := requireState(st); err != nil {
		return nil, err
	}
	if models.NormalizeConceptName(in.Concept) == "" {
		return nil, fmt.Errorf("%w: empty concept name", ErrInvalidInput)
	}
	var item models.ReinforcementItem
	queueCtx, sessionID := strings.TrimSpace(in.Context), st.Session.ID
	err := st.apply(fieldChange(QueueReinforcement, st.Now, func(s *models.SkillProgress) {
		item = s.QueueReinforcement(in.Concept, models.Priority(in.Priority), queueCtx, sessionID)
	}))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"concept":  item.Concept,
		"priority": string(item.Priority),
		"attempts": item.Attempts,
		"queued":   len(st.Skill.ReinforcementQueue),
	}, nil
}

func (e *Executor) setBelt(_ context.Context, in SetBeltInput, st *State) (map[string]any, error) {
	if err := requireState(st); err != nil {
		return nil, err
	}
	target, err := models.ParseBelt(in.Belt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	previous := st.Skill.CurrentBelt

	if st.Session.Type == models.SessionTypeOnboarding {
		scratch := *st.Skill
		history := slices.Concat(st.PriorHistory, st.History)
		entry, err := belt.Place(&scratch, history, target, st.Now, st.Session.ID)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			if err := st.apply(beltChange(SetBelt, entry)); err != nil {
				return nil, err
			}
		}
		return map[string]any{"belt": string(target), "previous_belt": string(previous), "placed": entry != nil}, nil
	}

	next, ok := previous.Next()
	switch {
	case !ok:
		return nil, belt.ErrTopRank
	case target.Index() <= previous.Index():
		return nil, fmt.Errorf("belt %s does not rank above current belt %s", target, previous)
	case target != next:
		return nil, fmt.Errorf("promotion must move one rank at a time: next belt is %s", next)
	}

	scratch := *st.Skill
	entry, _, err := e.checker.Promote(&scratch, st.SessionCount, st.Now, st.Session.ID)
	if err != nil {
		return nil, err
	}
	if err := st.apply(beltChange(SetBelt, entry)); err != nil {
		return nil, err
	}
	return map[string]any{"belt": string(entry.ToBelt), "previous_belt": string(previous), "promoted": true}, nil
}

func (e *Executor) setAssessmentAvailable(_ context.Context, in SetAssessmentAvailableInput, st *State) (map[string]any, error) {
	if err := requireState(st); err != nil {
		return nil, err
	}
	err := st.apply(fieldChange(SetAssessmentAvailable, st.Now, func(s *models.SkillProgress) {
		s.AssessmentAvailable = in.Available
	}))
	if err != nil {
		return nil, err
	}
	return map[string]any{"assessment_available": in.Available}, nil
}

func (e *Executor) setTrainingContext(_ context.Context, in SetTrainingContextInput, st *State) (map[string]any, error) {
	if err := requireState(st); err != nil {
		return nil, err
	}
	training := strings.TrimSpace(in.Context)
	err := st.apply(fieldChange(SetTrainingContext, st.Now, func(s *models.SkillProgress) {
		s.TrainingContext = training
	}))
	if err != nil {
		return nil, err
	}
	return map[string]any{"updated": true}, nil
}

func (e *Executor) presentProblem(_ context.Context, in PresentProblemInput, st *State) (map[string]any, error) {
	if err := requireState(st); err != nil {
		return nil, err
	}
	concepts := make([]string, 0, len(in.ConceptsTargeted))
	for _, c := range in.ConceptsTargeted {
		if name := models.NormalizeConceptName(c); name != "" {
			concepts = append(concepts, name)
		}
	}
	level := models.Belt(in.BeltLevel)
	if in.BeltLevel == "" {
		level = st.Skill.CurrentBelt
	}
	st.Session.Problem = &models.Problem{
		Prompt:           in.Prompt,
		ConceptsTargeted: concepts,
		BeltLevel:        level,
		StarterCode:      in.StarterCode,
		Language:         in.Language,
	}
	st.Session.UpdatedAt = st.Now
	st.SessionDirty = true
	return map[string]any{"presented": true, "concepts_targeted": concepts}, nil
}

func (e *Executor) completeSession(_ context.Context, in CompleteSessionInput, st *State) (map[string]any, error) {
	if err := requireState(st); err != nil {
		return nil, err
	}
	if err := st.Session.Complete(st.Now); err != nil {
		return nil, err
	}
	passed := in.Passed
	st.Session.Evaluation = &models.Evaluation{
		Correctness: in.Correctness,
		Quality:     in.Quality,
		Summary:     in.Summary,
	}
	if st.Session.Type == models.SessionTypeAssessment {
		st.Session.Evaluation.Passed = &passed
	}
	st.Completed = true
	st.SessionDirty = true

	out := map[string]any{"status": string(models.SessionStatusCompleted)}
	if st.Session.Type != models.SessionTypeAssessment {
		return out, nil
	}

	err := st.apply(fieldChange(CompleteSession, st.Now, func(s *models.SkillProgress) {
		s.AssessmentAvailable = false
	}))
	if err != nil {
		return nil, err
	}
	out["passed"] = passed
	if !passed {
		out["promoted"] = false
		return out, nil
	}

	previous := st.Skill.CurrentBelt
	scratch := *st.Skill
	entry, _, err := e.checker.Promote(&scratch, st.SessionCount, st.Now, st.Session.ID)
	if err == nil {
		err = st.apply(beltChange(CompleteSession, entry))
	}
	if err != nil {
		out["promoted"] = false
		out["reason"] = err.Error()
		return out, nil
	}
	out["promoted"] = true
	out["previous_belt"] = string(previous)
	out["belt"] = string(entry.ToBelt)
	return out, nil
}
