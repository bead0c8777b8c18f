package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"company_spider/internal/config"
	"company_spider/internal/models"
)

type MongoDB struct {
	cfg       config.DBConfig
	client    *mongo.Client
	companies *mongo.Collection
	log       zerolog.Logger
}

func NewMongoDB(cfg config.DBConfig, log zerolog.Logger) *MongoDB {
	return &MongoDB{cfg: cfg, log: log}
}

func (d *MongoDB) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(d.cfg.DSN))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return fmt.Errorf("can't ping MongoDB: %w", err)
	}

	d.client = client
	d.companies = client.Database(d.cfg.Database).Collection(d.cfg.Collection)

	if err := d.createIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		d.client, d.companies = nil, nil
		return fmt.Errorf("can't create indexes: %w", err)
	}

	d.log.Info().Str("database", d.Location()).Msg("Database initialized.")
	return nil
}

// createIndexes makes company_id unique among documents that have one;
// companies scraped without an identifier don't collide with each other.
func (d *MongoDB) createIndexes(ctx context.Context) error {
	_, err := d.companies.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "company_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"company_id": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "category_url", Value: 1}},
		},
	})
	return err
}

func (d *MongoDB) SaveBatch(ctx context.Context, companies []models.Company, categoryURL string) (int, error) {
	if len(companies) == 0 {
		return 0, nil
	}
	if d.companies == nil {
		return 0, errors.New("store is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(companies))
	for _, c := range companies {
		row := models.CompanyRow{Company: c, CategoryURL: categoryURL, ParsedAt: now}
		if c.CompanyID == "" {
			writes = append(writes, mongo.NewInsertOneModel().SetDocument(row))
			continue
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"company_id": c.CompanyID}).
			SetUpdate(bson.M{"$setOnInsert": row}).
			SetUpsert(true))
	}

	res, err := d.companies.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("bulk write companies: %w", err)
	}

	inserted := int(res.InsertedCount + res.UpsertedCount)
	d.log.Info().Int("new", inserted).Int("batch", len(companies)).Msg("Saved companies to database.")
	return inserted, nil
}

func (d *MongoDB) Count(ctx context.Context) (int64, error) {
	if d.companies == nil {
		return 0, errors.New("store is not initialized")
	}
	return d.companies.CountDocuments(ctx, bson.M{})
}

func (d *MongoDB) Location() string {
	return d.cfg.Database + "." + d.cfg.Collection
}

func (d *MongoDB) Close() error {
	if d.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}
