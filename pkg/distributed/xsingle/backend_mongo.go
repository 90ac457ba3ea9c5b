package xsingle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	// DefaultMongoDatabase URI 未指定数据库时使用的数据库名。
	DefaultMongoDatabase = "xsingle"

	// mongoConnectTimeout OpenMongo 探活超时。
	mongoConnectTimeout = 5 * time.Second
)

// mongoLock 锁集合中的文档。
type mongoLock struct {
	LockIdentifier string     `bson:"lock_identifier"`
	Created        *time.Time `bson:"created,omitempty"`
}

// MongoBackend 基于 MongoDB 的锁后端。
//
// 与数据库后端语义一致：lock_identifier 上有唯一索引，插入成功即获取；
// 重复键时以 created <= now - timeout 为条件更新，匹配一条即接管；
// 两者都失败且文档已不存在时重试一次。
type MongoBackend struct {
	coll   *mongo.Collection
	client *mongo.Client // 仅由 OpenMongo 设置，Close 时断开
	now    func() time.Time
}

// NewMongoBackend 基于已有集合创建后端，并确保唯一索引存在。
func NewMongoBackend(ctx context.Context, coll *mongo.Collection) (*MongoBackend, error) {
	if coll == nil {
		return nil, ErrNilClient
	}

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "lock_identifier", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("xsingle: failed to create mongo index: %w", err)
	}

	return &MongoBackend{coll: coll, now: time.Now}, nil
}

// OpenMongo 根据 mongodb://host:27017/db?collection=name URI 创建后端。
//
// collection 参数默认为 "xsingle_lock"，数据库默认为 "xsingle"。
// 返回的后端拥有该客户端，Close 时断开。
func OpenMongo(ctx context.Context, uri string, collection string) (*MongoBackend, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("xsingle: invalid mongo uri: %w", err)
	}

	query := u.Query()
	if name := query.Get("collection"); name != "" && collection == "" {
		collection = name
	}
	if collection == "" {
		collection = DefaultTable
	}
	query.Del("collection")
	u.RawQuery = query.Encode()

	database := strings.Trim(u.Path, "/")
	if database == "" {
		database = DefaultMongoDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(u.String()))
	if err != nil {
		return nil, fmt.Errorf("xsingle: failed to connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("xsingle: mongo ping failed: %w", err)
	}

	b, err := NewMongoBackend(ctx, client.Database(database).Collection(collection))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	b.client = client
	return b, nil
}

// Acquire 尝试获取锁。
func (b *MongoBackend) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return false, err
	}

	acquired, err := retryOnConflict(ctx, func() (bool, error) {
		return b.tryAcquire(ctx, key, timeout)
	})
	if err != nil {
		return false, fmt.Errorf("xsingle: mongo acquire failed: %w", err)
	}
	return acquired, nil
}

func (b *MongoBackend) tryAcquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	now := b.now().UTC()

	_, err := b.coll.InsertOne(ctx, mongoLock{LockIdentifier: key, Created: &now})
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, err
	}

	filter := bson.D{
		{Key: "lock_identifier", Value: key},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "created", Value: nil}},
			bson.D{{Key: "created", Value: bson.D{{Key: "$lte", Value: now.Add(-timeout)}}}},
		}},
	}
	res, err := b.coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: bson.D{{Key: "created", Value: now}}}})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	count, err := b.coll.CountDocuments(ctx, bson.D{{Key: "lock_identifier", Value: key}})
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, errTransientConflict
	}
	return false, nil
}

// Release 删除锁文档，文档不存在不是错误。
func (b *MongoBackend) Release(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := b.coll.DeleteOne(ctx, bson.D{{Key: "lock_identifier", Value: key}}); err != nil {
		return fmt.Errorf("xsingle: mongo delete failed: %w", err)
	}
	return nil
}

// Exists 检查是否存在未过期的锁文档。
func (b *MongoBackend) Exists(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	if err := validateAcquire(key, timeout); err != nil {
		return false, err
	}

	var doc mongoLock
	err := b.coll.FindOne(ctx, bson.D{{Key: "lock_identifier", Value: key}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("xsingle: mongo find failed: %w", err)
	}
	if doc.Created == nil {
		return false, nil
	}
	return isValid(*doc.Created, b.now(), timeout), nil
}

// Collection 返回锁集合。
func (b *MongoBackend) Collection() *mongo.Collection {
	return b.coll
}

// Close 断开由 OpenMongo 创建的客户端。
func (b *MongoBackend) Close() error {
	if b.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return b.client.Disconnect(ctx)
}

// 确保 MongoBackend 实现了 Backend 接口
var _ Backend = (*MongoBackend)(nil)
