package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoInventoryCollection implements InventoryCollection for MongoDB
type MongoInventoryCollection struct {
	Collection *mongo.Collection
}

// InsertItem inserts a prepared inventory item. Names are unique ignoring case.
func (c *MongoInventoryCollection) InsertItem(ctx context.Context, item *models.InventoryItem) error {
	const op = "db.InsertItem"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	now := time.Now()
	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	item.NameKey = models.ItemKey(item.Name)
	item.CreatedAt = now
	item.UpdatedAt = now
	item.IsActive = true

	_, err := c.Collection.InsertOne(ctx, item)
	return mapError(op, err)
}

func withLowStock(item *models.InventoryItem, err error) (*models.InventoryItem, error) {
	if err != nil {
		return nil, err
	}
	item.LowStock = item.IsLowStock()
	return item, nil
}

// FindItemByID finds an item by its ID.
func (c *MongoInventoryCollection) FindItemByID(ctx context.Context, id primitive.ObjectID) (*models.InventoryItem, error) {
	return withLowStock(findOne[models.InventoryItem](ctx, "db.FindItemByID", c.Collection, bson.M{"_id": id}))
}

// FindItemByName finds an item by name, ignoring case.
func (c *MongoInventoryCollection) FindItemByName(ctx context.Context, name string) (*models.InventoryItem, error) {
	return withLowStock(findOne[models.InventoryItem](ctx, "db.FindItemByName", c.Collection, bson.M{"nameKey": models.ItemKey(name)}))
}

// FindItems lists items by category and name. LowStock keeps only items at
// or below their reorder threshold.
func (c *MongoInventoryCollection) FindItems(ctx context.Context, filter InventoryFilter) ([]models.InventoryItem, error) {
	q := bson.M{}
	if filter.Category != "" {
		q["category"] = filter.Category
	}
	if filter.LowStock {
		q["reorderThreshold"] = bson.M{"$gt": 0}
		q["$expr"] = bson.M{"$lte": bson.A{"$quantityOnHand", "$reorderThreshold"}}
	}

	items, err := findAll[models.InventoryItem](ctx, "db.FindItems", c.Collection, q,
		options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "nameKey", Value: 1}}))
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].LowStock = items[i].IsLowStock()
	}
	return items, nil
}

// UpdateItem replaces an item document.
func (c *MongoInventoryCollection) UpdateItem(ctx context.Context, item *models.InventoryItem) error {
	const op = "db.UpdateItem"
	if c.Collection == nil {
		return fmt.Errorf("%s: mongo collection is nil", op)
	}

	item.NameKey = models.ItemKey(item.Name)
	item.UpdatedAt = time.Now()
	res, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": item.ID}, item)
	if err != nil {
		return mapError(op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	item.LowStock = item.IsLowStock()
	return nil
}

// AdjustQuantity adds delta to the stock level in one conditional update, so
// concurrent adjustments can never drive quantityOnHand below zero.
func (c *MongoInventoryCollection) AdjustQuantity(ctx context.Context, id primitive.ObjectID, delta float64) (*models.InventoryItem, error) {
	const op = "db.AdjustQuantity"
	if c.Collection == nil {
		return nil, fmt.Errorf("%s: mongo collection is nil", op)
	}

	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["quantityOnHand"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"quantityOnHand": delta},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	var item models.InventoryItem
	err := c.Collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, findErr := c.FindItemByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("%s: %w", op, models.Invalid("insufficient stock for adjustment"))
	}
	if err != nil {
		return nil, mapError(op, err)
	}
	item.LowStock = item.IsLowStock()
	return &item, nil
}
