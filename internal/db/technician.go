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

// MongoTechnicianCollection implements TechnicianCollection for MongoDB
type MongoTechnicianCollection struct {
	Collection *mongo.Collection
}

// InsertTechnician inserts a new technician into the database
func (c *MongoTechnicianCollection) InsertTechnician(ctx context.Context, tech *models.Technician) error {
	const op = "db.InsertTechnician"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	now := time.Now()
	if tech.ID.IsZero() {
		tech.ID = primitive.NewObjectID()
	}
	if tech.AssignedClients == nil {
		tech.AssignedClients = []primitive.ObjectID{}
	}
	tech.CreatedAt = now
	tech.UpdatedAt = now
	tech.IsActive = true

	_, err := c.Collection.InsertOne(ctx, tech)
	return mapError(op, err)
}

// FindTechnicianByID finds a technician by their hex ID
func (c *MongoTechnicianCollection) FindTechnicianByID(ctx context.Context, id string) (*models.Technician, error) {
	const op = "db.FindTechnicianByID"
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return findOne[models.Technician](ctx, op, c.Collection, bson.M{"_id": objectID})
}

// FindTechnicianByEmail finds a technician by their email
func (c *MongoTechnicianCollection) FindTechnicianByEmail(ctx context.Context, email string) (*models.Technician, error) {
	return findOne[models.Technician](ctx, "db.FindTechnicianByEmail", c.Collection, bson.M{"email": email})
}

// FindTechnicianByClient finds the technician a client is assigned to.
func (c *MongoTechnicianCollection) FindTechnicianByClient(ctx context.Context, clientID primitive.ObjectID) (*models.Technician, error) {
	return findOne[models.Technician](ctx, "db.FindTechnicianByClient", c.Collection, bson.M{"assignedClients": clientID})
}

// FindTechnicians finds technicians with optional filtering
func (c *MongoTechnicianCollection) FindTechnicians(ctx context.Context, filter TechnicianFilter) ([]models.Technician, error) {
	q := bson.M{}
	if filter.Role != "" {
		q["role"] = filter.Role
	}
	if filter.IsActive != nil {
		q["isActive"] = *filter.IsActive
	}
	return findAll[models.Technician](ctx, "db.FindTechnicians", c.Collection, q,
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
}

// UpdateTechnician replaces a technician document
func (c *MongoTechnicianCollection) UpdateTechnician(ctx context.Context, tech *models.Technician) error {
	const op = "db.UpdateTechnician"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	tech.UpdatedAt = time.Now()
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": tech.ID}, tech)
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// SetTechnicianActive sets the isActive flag
func (c *MongoTechnicianCollection) SetTechnicianActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return setFields(ctx, "db.SetTechnicianActive", c.Collection, id, bson.M{"isActive": active, "updatedAt": time.Now()})
}

// DeleteTechnician deletes a technician from the database
func (c *MongoTechnicianCollection) DeleteTechnician(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, "db.DeleteTechnician", c.Collection, id)
}

// UpdateLastLogin updates the last login time for a technician
func (c *MongoTechnicianCollection) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	return setFields(ctx, "db.UpdateLastLogin", c.Collection, id, bson.M{"lastLogin": now, "updatedAt": now})
}

// AssignClient adds a client to the technician's list. Callers remove the
// client from other technicians first to keep ownership exclusive.
func (c *MongoTechnicianCollection) AssignClient(ctx context.Context, techID, clientID primitive.ObjectID) error {
	const op = "db.AssignClient"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}
	res, err := c.Collection.UpdateOne(ctx, bson.M{"_id": techID}, bson.M{
		"$addToSet": bson.M{"assignedClients": clientID},
		"$set":      bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// RemoveClient removes a client from one technician's list.
func (c *MongoTechnicianCollection) RemoveClient(ctx context.Context, techID, clientID primitive.ObjectID) error {
	const op = "db.RemoveClient"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}
	res, err := c.Collection.UpdateOne(ctx, bson.M{"_id": techID}, bson.M{
		"$pull": bson.M{"assignedClients": clientID},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// UnassignClient removes a client from every technician.
func (c *MongoTechnicianCollection) UnassignClient(ctx context.Context, clientID primitive.ObjectID) error {
	const op = "db.UnassignClient"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}
	_, err := c.Collection.UpdateMany(ctx,
		bson.M{"assignedClients": clientID},
		bson.M{"$pull": bson.M{"assignedClients": clientID}, "$set": bson.M{"updatedAt": time.Now()}},
	)
	return mapError(op, err)
}

// CountTechnicians counts every technician regardless of status.
func (c *MongoTechnicianCollection) CountTechnicians(ctx context.Context) (int64, error) {
	const op = "db.CountTechnicians"
	if c.Collection == nil {
		return 0, fmt.Errorf("%s: mongo collection is nil", op)
	}
	n, err := c.Collection.CountDocuments(ctx, bson.M{})
	return n, mapError(op, err)
}
