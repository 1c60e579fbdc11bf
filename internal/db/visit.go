package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoVisitCollection implements VisitCollection for MongoDB
type MongoVisitCollection struct {
	Collection *mongo.Collection
}

// InsertVisit inserts a new service visit. Totals must already be computed.
func (c *MongoVisitCollection) InsertVisit(ctx context.Context, visit *models.ServiceVisit) error {
	const op = "db.InsertVisit"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	now := time.Now()
	if visit.ID.IsZero() {
		visit.ID = primitive.NewObjectID()
	}
	visit.CreatedAt = now
	visit.UpdatedAt = now

	_, err := c.Collection.InsertOne(ctx, visit)
	return mapError(op, err)
}

// FindVisitByID finds a visit by its ID.
func (c *MongoVisitCollection) FindVisitByID(ctx context.Context, id primitive.ObjectID) (*models.ServiceVisit, error) {
	return findOne[models.ServiceVisit](ctx, "db.FindVisitByID", c.Collection, bson.M{"_id": id})
}

func (f VisitFilter) bson() bson.M {
	filter := bson.M{}
	if len(f.IDs) > 0 {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	applyClientMatch(filter, "clientId", f.Scope, f.ClientID)
	if f.PoolID != nil {
		filter["poolId"] = *f.PoolID
	}
	if f.TechnicianID != nil {
		filter["technicianId"] = *f.TechnicianID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.ServiceType != "" {
		filter["serviceType"] = f.ServiceType
	}
	if f.Start != nil || f.End != nil {
		date := bson.M{}
		if f.Start != nil {
			date["$gte"] = *f.Start
		}
		if f.End != nil {
			date["$lte"] = *f.End
		}
		filter["serviceDate"] = date
	}
	if f.FollowUpRequired != nil {
		filter["followUpRequired"] = *f.FollowUpRequired
	}
	return filter
}

// FindVisits lists visits newest first along with the total match count.
func (c *MongoVisitCollection) FindVisits(ctx context.Context, filter VisitFilter, page Page) ([]models.ServiceVisit, int64, error) {
	const op = "db.FindVisits"
	if c.Collection == nil {
		return nil, 0, fmt.Errorf("%s: mongo collection is nil", op)
	}

	q := filter.bson()
	total, err := c.Collection.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, mapError(op, err)
	}
	visits, err := findAll[models.ServiceVisit](ctx, op, c.Collection, q,
		page.findOptions(bson.D{{Key: "serviceDate", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, 0, err
	}
	return visits, total, nil
}

// UpdateVisit replaces a visit document.
func (c *MongoVisitCollection) UpdateVisit(ctx context.Context, visit *models.ServiceVisit) error {
	const op = "db.UpdateVisit"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	visit.UpdatedAt = time.Now()
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": visit.ID}, visit)
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// SetVisitStatus changes a visit's status and completion time.
func (c *MongoVisitCollection) SetVisitStatus(ctx context.Context, id primitive.ObjectID, status string, completedAt *time.Time) error {
	return updateByID(ctx, "db.SetVisitStatus", c.Collection, id, visitStatusUpdate(status, completedAt, time.Now()))
}

// visitStatusUpdate sets the status and drops completedAt unless the visit
// is completed.
func visitStatusUpdate(status string, completedAt *time.Time, now time.Time) bson.M {
	fields := bson.M{"status": status, "updatedAt": now}
	update := bson.M{"$set": fields}
	if status != models.VisitCompleted {
		update["$unset"] = bson.M{"completedAt": ""}
	} else if completedAt != nil {
		fields["completedAt"] = *completedAt
	}
	return update
}

// DeleteVisit deletes a visit by its ID.
func (c *MongoVisitCollection) DeleteVisit(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, "db.DeleteVisit", c.Collection, id)
}

// CountVisits counts visits matching the filter.
func (c *MongoVisitCollection) CountVisits(ctx context.Context, filter VisitFilter) (int64, error) {
	const op = "db.CountVisits"
	if c.Collection == nil {
		return 0, fmt.Errorf("%s: mongo collection is nil", op)
	}
	n, err := c.Collection.CountDocuments(ctx, filter.bson())
	return n, mapError(op, err)
}

// usagePipeline flattens chemicals and parts of completed visits in the
// window into one row per item name, heaviest cost first.
func usagePipeline(start, end time.Time) *Pipeline {
	chemicals := bson.M{"$map": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$maintenance.chemicalsAdded", bson.A{}}},
		"as":    "c",
		"in": bson.M{
			"name":     "$$c.name",
			"source":   "chemical",
			"unit":     "$$c.unit",
			"quantity": "$$c.amount",
			"cost":     "$$c.cost",
		},
	}}
	parts := bson.M{"$map": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$service.parts", bson.A{}}},
		"as":    "p",
		"in": bson.M{
			"name":     "$$p.name",
			"source":   "part",
			"unit":     "each",
			"quantity": "$$p.quantity",
			"cost":     bson.M{"$multiply": bson.A{"$$p.quantity", "$$p.unitCost"}},
		},
	}}

	return NewPipeline().
		Match(bson.M{
			"status":      models.VisitCompleted,
			"serviceDate": bson.M{"$gte": start, "$lte": end},
		}).
		Project(bson.M{"items": bson.M{"$concatArrays": bson.A{chemicals, parts}}}).
		Unwind("$items", false).
		Group(bson.M{
			"_id":       bson.M{"$toLower": "$items.name"},
			"name":      bson.M{"$first": "$items.name"},
			"source":    bson.M{"$first": "$items.source"},
			"unit":      bson.M{"$first": "$items.unit"},
			"quantity":  bson.M{"$sum": "$items.quantity"},
			"totalCost": bson.M{"$sum": "$items.cost"},
			"visits":    bson.M{"$addToSet": "$_id"},
		}).
		AddFields(bson.M{"visitCount": bson.M{"$size": "$visits"}}).
		Project(bson.M{"visits": 0}).
		Sort(bson.D{{Key: "totalCost", Value: -1}, {Key: "_id", Value: 1}})
}

// UsageByItem aggregates chemical and part usage from completed visits.
func (c *MongoVisitCollection) UsageByItem(ctx context.Context, start, end time.Time) ([]models.UsageRow, error) {
	return aggregate[models.UsageRow](ctx, "db.UsageByItem", c.Collection, usagePipeline(start, end))
}
