package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoFollowUpCollection implements FollowUpCollection for MongoDB
type MongoFollowUpCollection struct {
	Collection *mongo.Collection
}

// InsertFollowUp stores a follow-up. At most one exists per visit.
func (c *MongoFollowUpCollection) InsertFollowUp(ctx context.Context, f *models.FollowUp) error {
	const op = "db.InsertFollowUp"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	now := time.Now()
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := c.Collection.InsertOne(ctx, f)
	return mapError(op, err)
}

// FindFollowUpByID finds a stored follow-up by its ID.
func (c *MongoFollowUpCollection) FindFollowUpByID(ctx context.Context, id primitive.ObjectID) (*models.FollowUp, error) {
	return findOne[models.FollowUp](ctx, "db.FindFollowUpByID", c.Collection, bson.M{"_id": id})
}

// FindFollowUpByVisit finds the stored follow-up for a visit.
func (c *MongoFollowUpCollection) FindFollowUpByVisit(ctx context.Context, visitID primitive.ObjectID) (*models.FollowUp, error) {
	return findOne[models.FollowUp](ctx, "db.FindFollowUpByVisit", c.Collection, bson.M{"visitId": visitID})
}

// FindFollowUps lists stored follow-ups by due date.
func (c *MongoFollowUpCollection) FindFollowUps(ctx context.Context, filter FollowUpFilter) ([]models.FollowUp, error) {
	q := bson.M{}
	applyClientMatch(q, "clientId", filter.Scope, filter.ClientID)
	return findAll[models.FollowUp](ctx, "db.FindFollowUps", c.Collection, q,
		options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}}))
}

// UpdateFollowUp replaces a stored follow-up.
func (c *MongoFollowUpCollection) UpdateFollowUp(ctx context.Context, f *models.FollowUp) error {
	const op = "db.UpdateFollowUp"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	f.UpdatedAt = time.Now()
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": f.ID}, f)
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}
