package db

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBillingCollection implements BillingCollection for MongoDB. Visits is
// the service visit collection unbilled totals are computed from.
type MongoBillingCollection struct {
	Collection *mongo.Collection
	Visits     *mongo.Collection
}

// stored drops the fields computed on read.
func stored(b *models.PendingBilling) models.PendingBilling {
	doc := *b
	doc.TotalAmount = 0
	doc.VisitCount = 0
	doc.Client = nil
	if doc.VisitIDs == nil {
		doc.VisitIDs = []primitive.ObjectID{}
	}
	if doc.OrderIDs == nil {
		doc.OrderIDs = []primitive.ObjectID{}
	}
	return doc
}

// InsertBilling stores a new billing record.
func (c *MongoBillingCollection) InsertBilling(ctx context.Context, b *models.PendingBilling) error {
	const op = "db.InsertBilling"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	now := time.Now()
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if b.Status == "" {
		b.Status = models.BillingDraft
	}
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := c.Collection.InsertOne(ctx, stored(b))
	return mapError(op, err)
}

// billingView joins visits, orders and the client and computes totals.
func billingView(p *Pipeline) *Pipeline {
	return p.
		Lookup(VisitsCollection, "visitIds", "_id", "visits").
		Lookup(VisitsCollection, "orderIds", "_id", "orders").
		Lookup(ClientsCollection, "clientId", "_id", "clientDocs").
		AddFields(bson.M{
			"totalAmount": bson.M{"$round": bson.A{
				bson.M{"$add": bson.A{SumOf("$visits", "totalAmount"), SumOf("$orders", "totalAmount")}},
				2,
			}},
			"visitCount": bson.M{"$add": bson.A{SizeOf("$visits"), SizeOf("$orders")}},
			"client":     FirstOf("$clientDocs"),
		}).
		Project(bson.M{"visits": 0, "orders": 0, "clientDocs": 0})
}

func (f BillingFilter) bson() bson.M {
	q := bson.M{}
	if f.ClientID != nil {
		q["clientId"] = *f.ClientID
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	return q
}

// FindBillingByID loads one billing record with computed totals.
func (c *MongoBillingCollection) FindBillingByID(ctx context.Context, id primitive.ObjectID) (*models.PendingBilling, error) {
	const op = "db.FindBillingByID"
	rows, err := aggregate[models.PendingBilling](ctx, op, c.Collection,
		billingView(NewPipeline().Match(bson.M{"_id": id})))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return &rows[0], nil
}

// FindBillings lists billing records newest first with computed totals.
func (c *MongoBillingCollection) FindBillings(ctx context.Context, filter BillingFilter, page Page) ([]models.PendingBilling, int64, error) {
	const op = "db.FindBillings"
	if c.Collection == nil {
		return nil, 0, fmt.Errorf("%s: mongo collection is nil", op)
	}

	q := filter.bson()
	total, err := c.Collection.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, mapError(op, err)
	}

	p := NewPipeline().
		Match(q).
		Sort(bson.D{{Key: "createdAt", Value: -1}}).
		Paginate(page)
	rows, err := aggregate[models.PendingBilling](ctx, op, c.Collection, billingView(p))
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// UpdateBilling replaces a billing record.
func (c *MongoBillingCollection) UpdateBilling(ctx context.Context, b *models.PendingBilling) error {
	const op = "db.UpdateBilling"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	b.UpdatedAt = time.Now()
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": b.ID}, stored(b))
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// Summary totals billing records per status.
func (c *MongoBillingCollection) Summary(ctx context.Context, filter BillingFilter) ([]models.BillingSummary, error) {
	p := billingView(NewPipeline().Match(filter.bson())).
		Group(bson.M{
			"_id":         "$status",
			"count":       bson.M{"$sum": 1},
			"totalAmount": bson.M{"$sum": "$totalAmount"},
		}).
		Sort(bson.D{{Key: "_id", Value: 1}})
	return aggregate[models.BillingSummary](ctx, "db.Summary", c.Collection, p)
}

// unbilledPipeline groups completed visits that appear on no billing record
// by client.
func unbilledPipeline(clientID *primitive.ObjectID, start, end *time.Time) *Pipeline {
	match := bson.M{"status": models.VisitCompleted}
	if clientID != nil {
		match["clientId"] = *clientID
	}
	if start != nil || end != nil {
		date := bson.M{}
		if start != nil {
			date["$gte"] = *start
		}
		if end != nil {
			date["$lte"] = *end
		}
		match["serviceDate"] = date
	}

	billed := NewPipeline().
		Match(bson.M{"$expr": bson.M{"$in": bson.A{
			"$$visitId",
			bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$visitIds", bson.A{}}},
				bson.M{"$ifNull": bson.A{"$orderIds", bson.A{}}},
			}},
		}}}).
		Limit(1).
		Project(bson.M{"_id": 1})

	return NewPipeline().
		Match(match).
		LookupPipeline(BillingCollectionName, bson.M{"visitId": "$_id"}, billed, "billed").
		Match(bson.M{"billed": bson.M{"$size": 0}}).
		Sort(bson.D{{Key: "serviceDate", Value: 1}}).
		Group(bson.M{
			"_id":         "$clientId",
			"visitIds":    bson.M{"$push": "$_id"},
			"visitCount":  bson.M{"$sum": 1},
			"totalAmount": bson.M{"$sum": "$totalAmount"},
		}).
		Lookup(ClientsCollection, "_id", "_id", "clientDocs").
		AddFields(bson.M{
			"client":      FirstOf("$clientDocs"),
			"totalAmount": bson.M{"$round": bson.A{"$totalAmount", 2}},
		}).
		Project(bson.M{"clientDocs": 0}).
		Sort(bson.D{{Key: "totalAmount", Value: -1}})
}

// UnbilledTotals reports each client's completed visits not yet billed.
func (c *MongoBillingCollection) UnbilledTotals(ctx context.Context, clientID *primitive.ObjectID, start, end *time.Time) ([]models.UnbilledTotal, error) {
	return aggregate[models.UnbilledTotal](ctx, "db.UnbilledTotals", c.Visits, unbilledPipeline(clientID, start, end))
}

// FindBilledVisitIDs returns the subset of ids already on a billing record
// with one of the given statuses. No statuses means any status.
func (c *MongoBillingCollection) FindBilledVisitIDs(ctx context.Context, ids []primitive.ObjectID, statuses []string) ([]primitive.ObjectID, error) {
	if len(ids) == 0 {
		return []primitive.ObjectID{}, nil
	}

	q := bson.M{"$or": bson.A{
		bson.M{"visitIds": bson.M{"$in": ids}},
		bson.M{"orderIds": bson.M{"$in": ids}},
	}}
	if len(statuses) > 0 {
		q["status"] = bson.M{"$in": statuses}
	}

	records, err := findAll[models.PendingBilling](ctx, "db.FindBilledVisitIDs", c.Collection, q,
		options.Find().SetProjection(bson.M{"visitIds": 1, "orderIds": 1, "status": 1}))
	if err != nil {
		return nil, err
	}

	billed := lo.FlatMap(records, func(b models.PendingBilling, _ int) []primitive.ObjectID {
		return append(append([]primitive.ObjectID{}, b.VisitIDs...), b.OrderIDs...)
	})
	return lo.Intersect(ids, lo.Uniq(billed)), nil
}
