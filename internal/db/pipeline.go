package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Pipeline builds aggregation stages so the join-and-sum boilerplate shared
// by billing, pools and usage reports lives in one place.
type Pipeline struct {
	stages mongo.Pipeline
}

// NewPipeline starts an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{stages: mongo.Pipeline{}}
}

func (p *Pipeline) add(op string, value interface{}) *Pipeline {
	p.stages = append(p.stages, bson.D{{Key: op, Value: value}})
	return p
}

// Match adds a $match stage. Empty filters are skipped.
func (p *Pipeline) Match(filter bson.M) *Pipeline {
	if len(filter) == 0 {
		return p
	}
	return p.add("$match", filter)
}

// Lookup joins documents from another collection into an array field.
func (p *Pipeline) Lookup(from, localField, foreignField, as string) *Pipeline {
	return p.add("$lookup", bson.M{
		"from":         from,
		"localField":   localField,
		"foreignField": foreignField,
		"as":           as,
	})
}

// LookupPipeline joins with a correlated sub-pipeline.
func (p *Pipeline) LookupPipeline(from string, let bson.M, sub *Pipeline, as string) *Pipeline {
	return p.add("$lookup", bson.M{
		"from":     from,
		"let":      let,
		"pipeline": sub.Stages(),
		"as":       as,
	})
}

// Unwind flattens an array field; preserve keeps documents with no elements.
func (p *Pipeline) Unwind(path string, preserve bool) *Pipeline {
	return p.add("$unwind", bson.M{"path": path, "preserveNullAndEmptyArrays": preserve})
}

// AddFields adds computed fields.
func (p *Pipeline) AddFields(fields bson.M) *Pipeline {
	return p.add("$addFields", fields)
}

// Project reshapes documents.
func (p *Pipeline) Project(fields bson.M) *Pipeline {
	return p.add("$project", fields)
}

// Group adds a $group stage.
func (p *Pipeline) Group(group bson.M) *Pipeline {
	return p.add("$group", group)
}

// Sort adds a $sort stage.
func (p *Pipeline) Sort(sort bson.D) *Pipeline {
	return p.add("$sort", sort)
}

// Limit adds a $limit stage.
func (p *Pipeline) Limit(n int64) *Pipeline {
	return p.add("$limit", n)
}

// Paginate adds $skip and $limit for the page when it has a limit.
func (p *Pipeline) Paginate(page Page) *Pipeline {
	if page.Limit <= 0 {
		return p
	}
	if skip := page.skip(); skip > 0 {
		p.add("$skip", skip)
	}
	return p.add("$limit", int64(page.Limit))
}

// Stages returns the built pipeline.
func (p *Pipeline) Stages() mongo.Pipeline {
	return p.stages
}

// SumOf sums a numeric field across an array expression, treating a missing
// array or field as zero.
func SumOf(arrayExpr, field string) bson.M {
	return bson.M{"$sum": bson.M{"$map": bson.M{
		"input": bson.M{"$ifNull": bson.A{arrayExpr, bson.A{}}},
		"as":    "el",
		"in":    bson.M{"$ifNull": bson.A{"$$el." + field, 0}},
	}}}
}

// SizeOf counts an array expression, treating a missing array as empty.
func SizeOf(arrayExpr string) bson.M {
	return bson.M{"$size": bson.M{"$ifNull": bson.A{arrayExpr, bson.A{}}}}
}

// FirstOf picks the first element of an array expression.
func FirstOf(arrayExpr string) bson.M {
	return bson.M{"$arrayElemAt": bson.A{arrayExpr, 0}}
}

// aggregate runs the pipeline and decodes every result into T.
func aggregate[T any](ctx context.Context, op string, coll *mongo.Collection, p *Pipeline) ([]T, error) {
	if coll == nil {
		return nil, fmt.Errorf("%s: mongo collection is nil", op)
	}
	cur, err := coll.Aggregate(ctx, p.Stages())
	if err != nil {
		return nil, mapError(op, err)
	}
	defer closeCursor(ctx, op, cur)

	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%s decode: %w", op, err)
	}
	return out, nil
}
