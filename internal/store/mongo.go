package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// MongoConfig MongoDB连接配置
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// MongoSink 每个 (platform, kind, record) 一个集合, 文档带 day 字段
type MongoSink struct {
	client   *mongo.Client
	database string
	timeout  time.Duration
}

// 文档在记录字段之外附带分区字段
type itemDoc struct {
	Day                string `bson:"day"`
	Kind               string `bson:"kind"`
	models.ContentItem `bson:",inline"`
}

type creatorDoc struct {
	Day            string `bson:"day"`
	Kind           string `bson:"kind"`
	models.Creator `bson:",inline"`
}

type commentDoc struct {
	Day            string `bson:"day"`
	Kind           string `bson:"kind"`
	models.Comment `bson:",inline"`
}

// NewMongoSink 连接MongoDB并检查连通性
func NewMongoSink(cfg MongoConfig) (*MongoSink, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, fmt.Errorf("MongoDB URI 与数据库名不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetWriteConcern(writeconcern.W1()).
		SetRetryWrites(true)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("MongoDB连接失败: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB Ping失败: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("MongoDB连接成功")
	return &MongoSink{client: client, database: cfg.Database, timeout: cfg.Timeout}, nil
}

// CollectionName 集合名, 如 xhs_search_items
func CollectionName(platform models.Platform, kind models.OperationKind, record string) string {
	return fmt.Sprintf("%s_%s_%s", platform, kind, record)
}

// Persist 无序批量插入
func (s *MongoSink) Persist(ctx context.Context, batch models.RecordBatch) error {
	if err := validateBatch(batch); err != nil {
		return err
	}
	docs := mongoDocuments(batch)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.InsertMany().SetOrdered(false)
	db := s.client.Database(s.database)
	for record, list := range docs {
		if len(list) == 0 {
			continue
		}
		coll := db.Collection(CollectionName(batch.Platform, batch.Kind, record))
		res, err := coll.InsertMany(ctx, list, opts)
		if err != nil {
			return fmt.Errorf("保存到MongoDB失败: %w", err)
		}
		log.Debug().
			Str("collection", coll.Name()).
			Str("day", batch.Day).
			Int("inserted", len(res.InsertedIDs)).
			Msg("MongoDB写入完成")
	}
	return nil
}

// mongoDocuments 按记录类型分组并附加分区字段
func mongoDocuments(batch models.RecordBatch) map[string][]interface{} {
	docs := map[string][]interface{}{}
	kind := string(batch.Kind)
	for _, it := range batch.Items {
		docs[RecordItems] = append(docs[RecordItems], itemDoc{Day: batch.Day, Kind: kind, ContentItem: it})
	}
	for _, c := range batch.Creators {
		docs[RecordCreators] = append(docs[RecordCreators], creatorDoc{Day: batch.Day, Kind: kind, Creator: c})
	}
	for _, c := range batch.Comments {
		docs[RecordComments] = append(docs[RecordComments], commentDoc{Day: batch.Day, Kind: kind, Comment: c})
	}
	return docs
}

// Close 断开连接
func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
