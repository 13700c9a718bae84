package store

import (
	"context"
	"errors"
	"time"

	"esim-service/internal/model"
	"esim-service/prometheus"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists into three collections. Transitions and their log
// entries commit in one multi-document transaction.
type MongoStore struct {
	client     *mongo.Client
	profiles   *mongo.Collection
	logs       *mongo.Collection
	migrations *mongo.Collection
}

// NewMongoStore binds the collections of database and ensures indexes
func NewMongoStore(ctx context.Context, client *mongo.Client, database string) (*MongoStore, error) {
	db := client.Database(database)
	s := &MongoStore{
		client:     client,
		profiles:   db.Collection(model.Profile{}.TableName()),
		logs:       db.Collection(model.OperationLogEntry{}.TableName()),
		migrations: db.Collection(model.MigrationRecord{}.TableName()),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.profiles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "status", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := s.logs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "profileId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "timestamp", Value: -1}}},
	}); err != nil {
		return err
	}
	_, err := s.migrations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "profileId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return err
}

// inTransaction runs fn inside a session transaction
func (s *MongoStore) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) CreateProfile(ctx context.Context, p *model.Profile, entry *model.OperationLogEntry) error {
	defer prometheus.TrackDBOperation("create_profile")(time.Now())

	if p.Version == 0 {
		p.Version = 1
	}
	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.profiles.InsertOne(sc, p); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return model.ErrVersionConflict
			}
			return err
		}
		if entry != nil {
			_, err := s.logs.InsertOne(sc, entry)
			return err
		}
		return nil
	})
}

func (s *MongoStore) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	defer prometheus.TrackDBOperation("get_profile")(time.Now())

	var p model.Profile
	if err := s.profiles.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) ListProfiles(ctx context.Context, tenantID string, filter ProfileFilter) ([]model.Profile, int64, error) {
	defer prometheus.TrackDBOperation("list_profiles")(time.Now())

	query := bson.M{"tenantId": tenantID}
	if filter.Provider != "" {
		query["provider"] = filter.Provider
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	total, err := s.profiles.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	skip, limit := NormalizePage(filter.Skip, filter.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cursor, err := s.profiles.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	profiles := []model.Profile{}
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

func (s *MongoStore) UpdateProfile(ctx context.Context, p *model.Profile, expectedVersion int64, entry *model.OperationLogEntry) error {
	defer prometheus.TrackDBOperation("update_profile")(time.Now())

	next := p.Clone()
	next.Version = expectedVersion + 1
	err := s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := s.profiles.ReplaceOne(sc, bson.M{"_id": p.ID, "version": expectedVersion}, next)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return s.missOrConflict(sc, p.ID)
		}
		if entry != nil {
			_, err := s.logs.InsertOne(sc, entry)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.Version = next.Version
	return nil
}

func (s *MongoStore) DeleteProfile(ctx context.Context, tenantID, id string, expectedVersion int64, entry *model.OperationLogEntry) error {
	defer prometheus.TrackDBOperation("delete_profile")(time.Now())

	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := s.profiles.DeleteOne(sc, bson.M{"_id": id, "tenantId": tenantID, "version": expectedVersion})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return s.missOrConflict(sc, id)
		}
		if entry != nil {
			_, err := s.logs.InsertOne(sc, entry)
			return err
		}
		return nil
	})
}

func (s *MongoStore) missOrConflict(ctx context.Context, id string) error {
	count, err := s.profiles.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if count == 0 {
		return model.ErrNotFound
	}
	return model.ErrVersionConflict
}

func (s *MongoStore) CountByStatus(ctx context.Context, tenantID string) (map[model.Status]int64, error) {
	defer prometheus.TrackDBOperation("count_by_status")(time.Now())

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"tenantId": tenantID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.profiles.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status model.Status `bson:"_id"`
		Count  int64        `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := make(map[model.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *MongoStore) AppendLog(ctx context.Context, entry *model.OperationLogEntry) error {
	defer prometheus.TrackDBOperation("append_log")(time.Now())
	_, err := s.logs.InsertOne(ctx, entry)
	return err
}

func (s *MongoStore) ListLogs(ctx context.Context, filter LogFilter) ([]model.OperationLogEntry, int64, error) {
	defer prometheus.TrackDBOperation("list_logs")(time.Now())

	query := bson.M{}
	if filter.ProfileID != "" {
		query["profileId"] = filter.ProfileID
	}
	if filter.TenantID != "" {
		query["tenantId"] = filter.TenantID
	}
	if filter.Operation != "" {
		query["operation"] = filter.Operation
	}

	total, err := s.logs.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	skip, limit := NormalizePage(filter.Skip, filter.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cursor, err := s.logs.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	entries := []model.OperationLogEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *MongoStore) SaveMigration(ctx context.Context, m *model.MigrationRecord) error {
	defer prometheus.TrackDBOperation("save_migration")(time.Now())
	_, err := s.migrations.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetMigration(ctx context.Context, id string) (*model.MigrationRecord, error) {
	defer prometheus.TrackDBOperation("get_migration")(time.Now())

	var m model.MigrationRecord
	if err := s.migrations.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
