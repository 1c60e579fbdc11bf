package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoClientCollection implements ClientCollection for MongoDB
type MongoClientCollection struct {
	Collection *mongo.Collection
}

// InsertClient inserts a new, active client and sets its id and timestamps.
func (c *MongoClientCollection) InsertClient(ctx context.Context, client *models.Client) error {
	const op = "db.InsertClient"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	now := time.Now()
	if client.ID.IsZero() {
		client.ID = primitive.NewObjectID()
	}
	client.CreatedAt = now
	client.UpdatedAt = now
	client.IsActive = true

	_, err := c.Collection.InsertOne(ctx, client)
	return mapError(op, err)
}

// FindClientByID finds a client by its ID.
func (c *MongoClientCollection) FindClientByID(ctx context.Context, id primitive.ObjectID) (*models.Client, error) {
	return findOne[models.Client](ctx, "db.FindClientByID", c.Collection, bson.M{"_id": id})
}

// FindClientByEmail finds a client by normalized email.
func (c *MongoClientCollection) FindClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	return findOne[models.Client](ctx, "db.FindClientByEmail", c.Collection, bson.M{"email": email})
}

func (f ClientFilter) bson() bson.M {
	filter := bson.M{}
	if cond, ok := clientMatch(f.Scope, nil); ok {
		filter["_id"] = cond
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"email": re},
			bson.M{"phone": re},
			bson.M{"address.street": re},
			bson.M{"address.city": re},
		}
	}
	if f.ClientType != "" {
		filter["clientType"] = f.ClientType
	}
	if f.IsActive != nil {
		filter["isActive"] = *f.IsActive
	}
	if f.ServiceDay != "" {
		filter["maintenance.serviceDay"] = f.ServiceDay
	}
	return filter
}

// FindClients lists clients sorted by name along with the total match count.
func (c *MongoClientCollection) FindClients(ctx context.Context, filter ClientFilter, page Page) ([]models.Client, int64, error) {
	const op = "db.FindClients"
	if c.Collection == nil {
		return nil, 0, fmt.Errorf("%s: mongo collection is nil", op)
	}

	q := filter.bson()
	total, err := c.Collection.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, mapError(op, err)
	}
	clients, err := findAll[models.Client](ctx, op, c.Collection, q, page.findOptions(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}

// UpdateClient replaces a client document, keeping its creation time.
func (c *MongoClientCollection) UpdateClient(ctx context.Context, client *models.Client) error {
	const op = "db.UpdateClient"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	client.UpdatedAt = time.Now()
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": client.ID}, client)
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// SetClientActive sets the isActive flag.
func (c *MongoClientCollection) SetClientActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return setFields(ctx, "db.SetClientActive", c.Collection, id, bson.M{"isActive": active, "updatedAt": time.Now()})
}

// SetClientLastService records the most recent service date.
func (c *MongoClientCollection) SetClientLastService(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return setFields(ctx, "db.SetClientLastService", c.Collection, id, bson.M{"lastServiceDate": at, "updatedAt": time.Now()})
}

// DeleteClient deletes a client by its ID.
func (c *MongoClientCollection) DeleteClient(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, "db.DeleteClient", c.Collection, id)
}

// CountClients counts clients in scope.
func (c *MongoClientCollection) CountClients(ctx context.Context, scope Scope, activeOnly bool) (int64, error) {
	const op = "db.CountClients"
	if c.Collection == nil {
		return 0, fmt.Errorf("%s: mongo collection is nil", op)
	}
	f := ClientFilter{Scope: scope}
	if activeOnly {
		active := true
		f.IsActive = &active
	}
	n, err := c.Collection.CountDocuments(ctx, f.bson())
	return n, mapError(op, err)
}
