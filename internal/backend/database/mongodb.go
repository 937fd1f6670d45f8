package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jo-hoe/chestxray/internal/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	DefaultMongoDatabaseName = "ChestXraydb"
	usersCollection          = "users"
)

// MongoDatabase stores one document per user with an embedded images array.
// Image mutations use $push and the positional $set operator.
type MongoDatabase struct {
	client *mongo.Client
	users  *mongo.Collection
}

func NewMongoDatabase(connectionString, databaseName string) (*MongoDatabase, error) {
	if databaseName == "" {
		databaseName = DefaultMongoDatabaseName
	}
	client, err := mongo.Connect(options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	return &MongoDatabase{
		client: client,
		users:  client.Database(databaseName).Collection(usersCollection),
	}, nil
}

func (m *MongoDatabase) CreateDatabase(ctx context.Context) error {
	_, err := m.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "_username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "_username", Value: 1}, {Key: "images.uid", Value: 1}},
		},
	})
	if err != nil {
		return storeError("create indexes", err)
	}
	return nil
}

func (m *MongoDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return m.client.Ping(ctx, nil) == nil
}

func (m *MongoDatabase) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoDatabase) CreateUser(ctx context.Context, user *User) error {
	document := *user
	// $push needs an array, never a null field
	document.Images = []*Image{}
	if _, err := m.users.InsertOne(ctx, &document); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return common.ErrUserExists
		}
		return storeError("create user", err)
	}
	return nil
}

func (m *MongoDatabase) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	err := m.users.FindOne(ctx, userFilter(username),
		options.FindOne().SetProjection(bson.D{{Key: "images", Value: 0}})).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", username, common.ErrNotFound)
		}
		return nil, storeError("get user", err)
	}
	return &user, nil
}

func (m *MongoDatabase) AppendImage(ctx context.Context, username string, image *Image) error {
	stored := *image
	stored.Predictions = nonNilPredictions(image.Predictions)
	result, err := m.users.UpdateOne(ctx, userFilter(username), appendImageUpdate(&stored))
	if err != nil {
		return storeError("append image", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", username, common.ErrNotFound)
	}
	return nil
}

func (m *MongoDatabase) CompleteImage(ctx context.Context, username, uid, filename string, predictions []float64, heatmap []byte) error {
	result, err := m.users.UpdateOne(ctx,
		pendingImageFilter(username, uid, filename),
		completeImageUpdate(nonNilPredictions(predictions), heatmap))
	if err != nil {
		return storeError("complete image", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("pending image %s: %w", uid, common.ErrNotFound)
	}
	return nil
}

func (m *MongoDatabase) FailImage(ctx context.Context, username, uid, filename, cause string) error {
	result, err := m.users.UpdateOne(ctx,
		pendingImageFilter(username, uid, filename),
		failImageUpdate(cause))
	if err != nil {
		return storeError("fail image", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("pending image %s: %w", uid, common.ErrNotFound)
	}
	return nil
}

func (m *MongoDatabase) GetImages(ctx context.Context, username string) ([]*Image, error) {
	var user User
	err := m.users.FindOne(ctx, userFilter(username),
		options.FindOne().SetProjection(bson.D{{Key: "images", Value: 1}})).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", username, common.ErrNotFound)
		}
		return nil, storeError("get images", err)
	}
	images := make([]*Image, 0, len(user.Images))
	for _, image := range user.Images {
		images = append(images, normalizeImage(image))
	}
	return images, nil
}

func (m *MongoDatabase) GetImageByID(ctx context.Context, username, uid string) (*Image, error) {
	var user User
	err := m.users.FindOne(ctx,
		bson.D{{Key: "_username", Value: username}, {Key: "images.uid", Value: uid}},
		options.FindOne().SetProjection(bson.D{{Key: "images.$", Value: 1}})).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("image %s: %w", uid, common.ErrNotFound)
		}
		return nil, storeError("get image", err)
	}
	if len(user.Images) == 0 {
		return nil, fmt.Errorf("image %s: %w", uid, common.ErrNotFound)
	}
	return normalizeImage(user.Images[0]), nil
}

func userFilter(username string) bson.D {
	return bson.D{{Key: "_username", Value: username}}
}

// pendingImageFilter matches the user document whose images array holds the pending
// image; the positional operator in the update then targets exactly that element.
func pendingImageFilter(username, uid, filename string) bson.D {
	return bson.D{
		{Key: "_username", Value: username},
		{Key: "images", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "uid", Value: uid},
			{Key: "filename", Value: filename},
			{Key: "status", Value: string(StatusPending)},
		}}}},
	}
}

func appendImageUpdate(image *Image) bson.D {
	return bson.D{{Key: "$push", Value: bson.D{{Key: "images", Value: image}}}}
}

func completeImageUpdate(predictions []float64, heatmap []byte) bson.D {
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "images.$.predictions", Value: predictions},
		{Key: "images.$.heatmap", Value: heatmap},
		{Key: "images.$.status", Value: string(StatusCompleted)},
	}}}
}

func failImageUpdate(cause string) bson.D {
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "images.$.status", Value: string(StatusFailed)},
		{Key: "images.$.failure", Value: cause},
	}}}
}

func normalizeImage(image *Image) *Image {
	image.Timestamp = image.Timestamp.UTC()
	image.Predictions = nonNilPredictions(image.Predictions)
	return image
}
