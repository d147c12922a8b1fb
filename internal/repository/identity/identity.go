package identity

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"qs_chat/internal/model"
)

type (
	IdentityRepo struct {
		collection *mongo.Collection
	}
)

func NewIdentityRepo(db *mongo.Database) *IdentityRepo {
	return &IdentityRepo{
		collection: db.Collection("identities"),
	}
}

func (r *IdentityRepo) GetByName(ctx context.Context, name string) (*model.Identity, error) {
	filter := bson.M{
		"name": name,
	}

	var id model.Identity
	err := r.collection.FindOne(ctx, filter).Decode(&id)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &id, nil
}

func (r *IdentityRepo) Create(ctx context.Context, id *model.Identity) (primitive.ObjectID, error) {
	res, err := r.collection.InsertOne(ctx, id)
	if err != nil {
		return primitive.NilObjectID, err
	}

	oid := res.InsertedID.(primitive.ObjectID)
	id.ID = oid
	return oid, nil
}
