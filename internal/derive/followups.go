package derive

import (
	"sort"

	"github.com/samber/lo"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SynthesizeFollowUp builds the implicit follow-up of a visit flagged
// followUpRequired. Its id is the visit id.
func SynthesizeFollowUp(v models.ServiceVisit) models.FollowUp {
	due := v.ServiceDate.Add(models.FollowUpDueAfter)
	description := v.FollowUpNotes
	if description == "" {
		description = "Follow-up for " + v.ServiceType
	}
	return models.FollowUp{
		ID:           v.ID,
		VisitID:      v.ID,
		ClientID:     v.ClientID,
		PoolID:       v.PoolID,
		TechnicianID: v.TechnicianID,
		Description:  description,
		Priority:     "medium",
		Status:       models.FollowUpPending,
		DueDate:      &due,
		Synthesized:  true,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

// MergeFollowUps combines stored follow-ups with ones synthesized from
// flagged visits that have no stored record, sorted by due date.
func MergeFollowUps(stored []models.FollowUp, visits []models.ServiceVisit, clientNames map[primitive.ObjectID]string) []models.FollowUp {
	seen := lo.SliceToMap(stored, func(f models.FollowUp) (primitive.ObjectID, struct{}) {
		return f.VisitID, struct{}{}
	})

	out := make([]models.FollowUp, 0, len(stored)+len(visits))
	out = append(out, stored...)
	for _, v := range visits {
		if !v.FollowUpRequired {
			continue
		}
		if _, ok := seen[v.ID]; ok {
			continue
		}
		seen[v.ID] = struct{}{}
		out = append(out, SynthesizeFollowUp(v))
	}

	for i := range out {
		if name, ok := clientNames[out[i].ClientID]; ok {
			out[i].ClientName = name
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DueDate, out[j].DueDate
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out
}

// FilterFollowUps keeps follow-ups matching status and priority; empty
// values match everything.
func FilterFollowUps(list []models.FollowUp, status, priority string) []models.FollowUp {
	return lo.Filter(list, func(f models.FollowUp, _ int) bool {
		return (status == "" || f.Status == status) && (priority == "" || f.Priority == priority)
	})
}
