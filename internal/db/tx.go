package db

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Transactor runs a function atomically across collections.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MongoTransactor uses multi-document transactions when the deployment
// supports them. Standalone servers cannot, so writes then run in sequence.
type MongoTransactor struct {
	client       *mongo.Client
	transactions bool
}

// NewTransactor inspects the deployment once to decide whether
// transactions are available.
func NewTransactor(ctx context.Context, client *mongo.Client) *MongoTransactor {
	t := &MongoTransactor{client: client}

	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	switch {
	case err != nil:
		log.WithError(err).Warn("Could not inspect MongoDB topology, transactions disabled")
	case hello.SetName != "" || hello.Msg == "isdbgrid":
		t.transactions = true
	default:
		log.Warn("MongoDB is standalone, multi-document writes run without transactions")
	}
	return t
}

// WithTransaction runs fn inside a session transaction, retrying on
// transient errors as the driver does.
func (t *MongoTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !t.transactions {
		return fn(ctx)
	}

	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
