package store

import (
	"context"
	"time"

	"CProject/module/collab/model"
	errs "CProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// logDoc 是 LogEntry 在 Mongo 里的落盘形态。
// expire_date 是给 TTL 索引用的 BSON 日期；expire_at(Unix秒) 才是
// 读路径过滤的依据。TTL 索引只是存储回收，晚删不影响正确性。
type logDoc struct {
	ID         string    `bson:"_id"`
	SceneID    string    `bson:"scene_id"`
	UserID     string    `bson:"user_id"`
	UserName   string    `bson:"user_name,omitempty"`
	Action     string    `bson:"action"`
	Details    string    `bson:"details,omitempty"`
	Timestamp  time.Time `bson:"timestamp"`
	ExpireAt   int64     `bson:"expire_at"`
	ExpireDate time.Time `bson:"expire_date"`
}

func toLogDoc(e *model.LogEntry) *logDoc {
	return &logDoc{
		ID:         e.ID,
		SceneID:    e.SceneID,
		UserID:     e.UserID,
		UserName:   e.UserName,
		Action:     e.Action,
		Details:    e.Details,
		Timestamp:  e.Timestamp,
		ExpireAt:   e.ExpireAt,
		ExpireDate: time.Unix(e.ExpireAt, 0),
	}
}

func (d *logDoc) toEntry() *model.LogEntry {
	return &model.LogEntry{
		ID:        d.ID,
		SceneID:   d.SceneID,
		UserID:    d.UserID,
		UserName:  d.UserName,
		Action:    d.Action,
		Details:   d.Details,
		Timestamp: d.Timestamp,
		ExpireAt:  d.ExpireAt,
	}
}

type MongoLogStore struct {
	coll *mongo.Collection
}

func NewMongoLogStore(db *mongo.Database) *MongoLogStore {
	return &MongoLogStore{coll: db.Collection(model.LogCollection)}
}

// EnsureIndexes 建 (scene_id, expire_at) 查询索引和 expire_date TTL 索引。
// 幂等，启动时调用一次。
func (s *MongoLogStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "scene_id", Value: 1}, {Key: "expire_at", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expire_date", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	return errs.WrapMsg(err, "ensure log indexes")
}

func (s *MongoLogStore) Append(ctx context.Context, entry *model.LogEntry) error {
	if _, err := s.coll.InsertOne(ctx, toLogDoc(entry)); err != nil {
		return errs.WrapMsg(err, "append log", "scene", entry.SceneID)
	}
	return nil
}

func (s *MongoLogStore) List(ctx context.Context, sceneID string, now time.Time) ([]*model.LogEntry, error) {
	filter := bson.M{
		"scene_id":  sceneID,
		"expire_at": bson.M{"$gt": now.Unix()},
	}
	// 这里故意不排序：排序和截断属于 service 层。
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, errs.WrapMsg(err, "list logs", "scene", sceneID)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*model.LogEntry
	for cur.Next(ctx) {
		var d logDoc
		if err := cur.Decode(&d); err != nil {
			continue
		}
		out = append(out, d.toEntry())
	}
	return out, cur.Err()
}
