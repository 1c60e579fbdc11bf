package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRouteStatusCollection implements RouteStatusCollection for MongoDB
type MongoRouteStatusCollection struct {
	Collection *mongo.Collection
}

// UpsertRouteStatus writes the status for (clientId, date), creating it on
// first use, and loads the stored id back into rs.
func (c *MongoRouteStatusCollection) UpsertRouteStatus(ctx context.Context, rs *models.RouteStatus) error {
	const op = "db.UpsertRouteStatus"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	rs.UpdatedAt = time.Now()
	set := bson.M{
		"technicianId": rs.TechnicianID,
		"status":       rs.Status,
		"notes":        rs.Notes,
		"updatedAt":    rs.UpdatedAt,
	}
	if rs.VisitID != nil {
		set["visitId"] = *rs.VisitID
	}

	var saved models.RouteStatus
	err := c.Collection.FindOneAndUpdate(ctx,
		bson.M{"clientId": rs.ClientID, "date": rs.Date},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&saved)
	if err != nil {
		return mapError(op, err)
	}
	*rs = saved
	return nil
}

func (f RouteStatusFilter) bson() bson.M {
	q := bson.M{}
	if f.Date != "" {
		q["date"] = f.Date
	}
	if f.TechnicianID != nil {
		q["technicianId"] = *f.TechnicianID
	}
	if f.ClientID != nil {
		q["clientId"] = *f.ClientID
	}
	return q
}

// FindRouteStatuses lists overrides matching the filter.
func (c *MongoRouteStatusCollection) FindRouteStatuses(ctx context.Context, filter RouteStatusFilter) ([]models.RouteStatus, error) {
	return findAll[models.RouteStatus](ctx, "db.FindRouteStatuses", c.Collection, filter.bson())
}

// DeleteRouteStatuses removes overrides matching the filter. An empty filter
// is refused so a reset can never wipe every day.
func (c *MongoRouteStatusCollection) DeleteRouteStatuses(ctx context.Context, filter RouteStatusFilter) (int64, error) {
	const op = "db.DeleteRouteStatuses"
	if c.Collection == nil {
		return 0, fmt.Errorf("%s: mongo collection is nil", op)
	}
	if filter.Date == "" {
		return 0, fmt.Errorf("%s: %w", op, models.Invalid("date is required"))
	}
	res, err := c.Collection.DeleteMany(ctx, filter.bson())
	if err != nil {
		return 0, mapError(op, err)
	}
	return res.DeletedCount, nil
}

