package db

import (
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// clientMatch combines an explicit client id with a scope into one
// condition on a clientId-like field. ok is false when there is no condition.
func clientMatch(scope Scope, clientID *primitive.ObjectID) (cond interface{}, ok bool) {
	switch {
	case clientID != nil:
		if scope != nil && !lo.Contains(scope, *clientID) {
			return bson.M{"$in": bson.A{}}, true
		}
		return *clientID, true
	case scope != nil:
		ids := make([]primitive.ObjectID, len(scope))
		copy(ids, scope)
		return bson.M{"$in": ids}, true
	default:
		return nil, false
	}
}

func applyClientMatch(filter bson.M, field string, scope Scope, clientID *primitive.ObjectID) {
	if cond, ok := clientMatch(scope, clientID); ok {
		filter[field] = cond
	}
}
