package repetition

import "github.com/DannyMichaels/code-dojo-app/pkg/models"

// BacklogThreshold is the number of high-priority queue items that makes the
// next session a training session regardless of assessment availability.
const BacklogThreshold = 3

// SuggestSessionType picks the session type a new session should default to.
func SuggestSessionType(skill *models.SkillProgress) models.SessionType {
	if skill == nil || len(skill.Concepts) == 0 {
		return models.SessionTypeOnboarding
	}

	high := 0
	for _, item := range skill.ReinforcementQueue {
		if item.Priority == models.PriorityHigh {
			high++
		}
	}
	if high >= BacklogThreshold {
		return models.SessionTypeTraining
	}
	if skill.AssessmentAvailable {
		return models.SessionTypeAssessment
	}
	return models.SessionTypeTraining
}
