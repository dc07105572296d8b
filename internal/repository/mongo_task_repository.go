package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gurkanbulca/taskflow/internal/models"
)

// MongoTaskStore keeps each task as one document with the history embedded
// as an ordered array. The CAS is a single FindOneAndUpdate filtered on
// the version field.
type MongoTaskStore struct {
	coll *mongo.Collection
}

func NewMongoTaskStore(db *mongo.Database) *MongoTaskStore {
	return &MongoTaskStore{
		coll: db.Collection("tasks"),
	}
}

// EnsureIndexes creates the indexes used by ListByProject.
func (s *MongoTaskStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create task indexes: %w", err)
	}
	return nil
}

func (s *MongoTaskStore) Create(ctx context.Context, t *models.Task) error {
	doc := t.Clone()
	// $push requires an array, never null
	if doc.History == nil {
		doc.History = []models.HistoryEntry{}
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

func (s *MongoTaskStore) Get(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	normalize(&t)
	return &t, nil
}

func (s *MongoTaskStore) ListByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"project_id": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list tasks for project %s: %w", projectID, err)
	}

	var tasks []*models.Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks for project %s: %w", projectID, err)
	}
	for _, t := range tasks {
		normalize(t)
	}
	return tasks, nil
}

func (s *MongoTaskStore) CompareAndSwapStatus(ctx context.Context, id string, expectedVersion int64, update StatusUpdate) (*models.Task, error) {
	set := bson.M{
		"status":     update.Status,
		"updated_at": update.Entry.UpdatedAt,
	}
	if update.Remarks != nil {
		set["remarks"] = *update.Remarks
	}
	if update.ClosedBy != nil {
		set["closed_by"] = *update.ClosedBy
	}
	change := bson.M{
		"$set":  set,
		"$inc":  bson.M{"version": 1},
		"$push": bson.M{"history": update.Entry},
	}

	var t models.Task
	err := s.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "version": expectedVersion},
		change,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if err == nil {
		normalize(&t)
		return &t, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("check task %s: %w", id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil, fmt.Errorf("task %s expected version %d: %w", id, expectedVersion, ErrVersionConflict)
}

func (s *MongoTaskStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

func normalize(t *models.Task) {
	if t.History == nil {
		t.History = []models.HistoryEntry{}
	}
}
