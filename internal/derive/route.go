// Package derive computes the read-time views that are not stored: daily
// routes, synthesized follow-ups and inventory usage.
package derive

import (
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Where a stop's status came from, in precedence order.
const (
	SourceRouteStatus = "route_status"
	SourceVisit       = "visit"
	SourceDefault     = "default"
)

const slotSpacing = 90 * time.Minute

var baseHour = map[string]int{
	"morning":   8,
	"afternoon": 12,
	"evening":   16,
	"anytime":   9,
}

var frequencyMinutes = map[string]int{
	"weekly":    30,
	"bi-weekly": 45,
	"monthly":   60,
}

// RouteInput is everything needed to lay out one technician's day.
type RouteInput struct {
	Day        time.Time
	Clients    []models.Client
	PoolCounts map[primitive.ObjectID]int
	Statuses   []models.RouteStatus
	Visits     []models.ServiceVisit
}

// IsScheduledOn reports whether a client is an active maintenance client
// serviced on the given weekday.
func IsScheduledOn(c models.Client, wd time.Weekday) bool {
	return c.IsActive &&
		c.ClientType == models.ClientMaintenance &&
		c.Maintenance != nil &&
		c.Maintenance.ServiceDay == models.DayName(wd)
}

// EstimatedDuration is the expected minutes on site: a base by frequency
// plus 15 minutes for each pool beyond the first.
func EstimatedDuration(frequency string, pools int) int {
	base, ok := frequencyMinutes[frequency]
	if !ok {
		base = frequencyMinutes["weekly"]
	}
	if pools > 1 {
		base += 15 * (pools - 1)
	}
	return base
}

// slotTime formats a start offset from midnight as "3:04 PM".
func slotTime(offset time.Duration) string {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset).Format("3:04 PM")
}

// visitRouteStatus maps a visit status onto the route vocabulary.
func visitRouteStatus(status string) string {
	switch status {
	case models.VisitCompleted:
		return models.RouteCompleted
	case models.VisitInProgress:
		return models.RouteInProgress
	case models.VisitSkipped, models.VisitRescheduled:
		return models.RouteSkipped
	default:
		return models.RoutePending
	}
}

// BuildRoute lays out the day's stops. Clients sharing a preferred time are
// ordered by name and spaced 90 minutes apart from that bucket's base hour.
// Status comes from a route_status record, else the day's visit, else pending.
func BuildRoute(in RouteInput) ([]models.RouteStop, models.RouteSummary) {
	scheduled := lo.Filter(in.Clients, func(c models.Client, _ int) bool {
		return IsScheduledOn(c, in.Day.Weekday())
	})

	overrides := lo.KeyBy(in.Statuses, func(rs models.RouteStatus) primitive.ObjectID { return rs.ClientID })

	// latest visit per client wins
	visits := make(map[primitive.ObjectID]models.ServiceVisit, len(in.Visits))
	for _, v := range in.Visits {
		if prev, ok := visits[v.ClientID]; !ok || v.ServiceDate.After(prev.ServiceDate) {
			visits[v.ClientID] = v
		}
	}

	buckets := lo.GroupBy(scheduled, func(c models.Client) string {
		if _, ok := baseHour[c.Maintenance.PreferredTime]; ok {
			return c.Maintenance.PreferredTime
		}
		return "anytime"
	})

	type slotted struct {
		stop   models.RouteStop
		offset time.Duration
	}
	var all []slotted
	for bucket, clients := range buckets {
		sort.SliceStable(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
		for i, c := range clients {
			offset := time.Duration(baseHour[bucket])*time.Hour + time.Duration(i)*slotSpacing
			pools := in.PoolCounts[c.ID]
			stop := models.RouteStop{
				ClientID:      c.ID,
				ClientName:    c.Name,
				Address:       c.Address,
				Phone:         c.Phone,
				Frequency:     c.Maintenance.ServiceFrequency,
				PreferredTime: c.Maintenance.PreferredTime,
				PoolCount:     pools,
				EstimatedTime: slotTime(offset),
				Duration:      EstimatedDuration(c.Maintenance.ServiceFrequency, pools),
				Status:        models.RoutePending,
				StatusSource:  SourceDefault,
			}
			if rs, ok := overrides[c.ID]; ok {
				stop.Status = rs.Status
				stop.StatusSource = SourceRouteStatus
				stop.Notes = rs.Notes
				stop.VisitID = rs.VisitID
			} else if v, ok := visits[c.ID]; ok {
				id := v.ID
				stop.Status = visitRouteStatus(v.Status)
				stop.StatusSource = SourceVisit
				stop.VisitID = &id
			}
			all = append(all, slotted{stop: stop, offset: offset})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].offset != all[j].offset {
			return all[i].offset < all[j].offset
		}
		return all[i].stop.ClientName < all[j].stop.ClientName
	})

	stops := lo.Map(all, func(s slotted, _ int) models.RouteStop { return s.stop })
	return stops, Summarize(stops)
}

// Summarize counts stops by status.
func Summarize(stops []models.RouteStop) models.RouteSummary {
	sum := models.RouteSummary{Total: len(stops)}
	for _, s := range stops {
		sum.EstimatedMinutes += s.Duration
		switch s.Status {
		case models.RouteInProgress:
			sum.InProgress++
		case models.RouteCompleted:
			sum.Completed++
		case models.RouteSkipped:
			sum.Skipped++
		default:
			sum.Pending++
		}
	}
	return sum
}

// DayBounds returns the start of the day containing t and the last
// nanosecond of that day, in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
