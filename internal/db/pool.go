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

// MongoPoolCollection implements PoolCollection for MongoDB
type MongoPoolCollection struct {
	Collection *mongo.Collection
}

// InsertPool inserts a new pool. Volume must already be computed.
func (c *MongoPoolCollection) InsertPool(ctx context.Context, pool *models.Pool) error {
	const op = "db.InsertPool"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	now := time.Now()
	if pool.ID.IsZero() {
		pool.ID = primitive.NewObjectID()
	}
	pool.CreatedAt = now
	pool.UpdatedAt = now
	pool.IsActive = true

	doc := *pool
	doc.ClientName = ""
	_, err := c.Collection.InsertOne(ctx, doc)
	return mapError(op, err)
}

// FindPoolByID finds a pool by its ID.
func (c *MongoPoolCollection) FindPoolByID(ctx context.Context, id primitive.ObjectID) (*models.Pool, error) {
	return findOne[models.Pool](ctx, "db.FindPoolByID", c.Collection, bson.M{"_id": id})
}

func (f PoolFilter) bson() bson.M {
	filter := bson.M{}
	applyClientMatch(filter, "clientId", f.Scope, f.ClientID)
	if f.IsActive != nil {
		filter["isActive"] = *f.IsActive
	}
	return filter
}

// withClientName joins the owning client and exposes its name as clientName.
func withClientName(p *Pipeline) *Pipeline {
	return p.
		Lookup(ClientsCollection, "clientId", "_id", "client").
		AddFields(bson.M{"clientName": FirstOf("$client.name")}).
		Project(bson.M{"client": 0})
}

// FindPools lists pools with their client's name, sorted by pool name.
func (c *MongoPoolCollection) FindPools(ctx context.Context, filter PoolFilter) ([]models.Pool, error) {
	p := withClientName(NewPipeline().Match(filter.bson())).
		Sort(bson.D{{Key: "clientName", Value: 1}, {Key: "name", Value: 1}})
	return aggregate[models.Pool](ctx, "db.FindPools", c.Collection, p)
}

// UpdatePool replaces a pool document.
func (c *MongoPoolCollection) UpdatePool(ctx context.Context, pool *models.Pool) error {
	const op = "db.UpdatePool"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	pool.UpdatedAt = time.Now()
	doc := *pool
	doc.ClientName = ""
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": pool.ID}, doc)
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// SetPoolLastService records the most recent service date.
func (c *MongoPoolCollection) SetPoolLastService(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return setFields(ctx, "db.SetPoolLastService", c.Collection, id, bson.M{"lastServiceDate": at, "updatedAt": time.Now()})
}

// DeletePool deletes a pool by its ID.
func (c *MongoPoolCollection) DeletePool(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, "db.DeletePool", c.Collection, id)
}

// CountPools counts pools matching the filter.
func (c *MongoPoolCollection) CountPools(ctx context.Context, filter PoolFilter) (int64, error) {
	const op = "db.CountPools"
	if c.Collection == nil {
		return 0, fmt.Errorf("%s: mongo collection is nil", op)
	}
	n, err := c.Collection.CountDocuments(ctx, filter.bson())
	return n, mapError(op, err)
}

// CountPoolsByClient counts active pools per client.
func (c *MongoPoolCollection) CountPoolsByClient(ctx context.Context, clientIDs []primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	type row struct {
		ClientID primitive.ObjectID `bson:"_id"`
		Count    int                `bson:"count"`
	}

	counts := make(map[primitive.ObjectID]int, len(clientIDs))
	if len(clientIDs) == 0 {
		return counts, nil
	}

	p := NewPipeline().
		Match(bson.M{"clientId": bson.M{"$in": clientIDs}, "isActive": true}).
		Group(bson.M{"_id": "$clientId", "count": bson.M{"$sum": 1}})
	rows, err := aggregate[row](ctx, "db.CountPoolsByClient", c.Collection, p)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.ClientID] = r.Count
	}
	return counts, nil
}

// FindOrphanedPools lists pools whose client no longer exists.
func (c *MongoPoolCollection) FindOrphanedPools(ctx context.Context) ([]models.Pool, error) {
	p := NewPipeline().
		Lookup(ClientsCollection, "clientId", "_id", "client").
		Match(bson.M{"client": bson.M{"$size": 0}}).
		Project(bson.M{"client": 0}).
		Sort(bson.D{{Key: "createdAt", Value: 1}})
	return aggregate[models.Pool](ctx, "db.FindOrphanedPools", c.Collection, p)
}
