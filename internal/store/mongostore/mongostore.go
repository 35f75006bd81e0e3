// Package mongostore implements core.Store on a MongoDB collection.
//
// Documents keep the shape {_id, name, mobile, categories} so existing
// collections written by earlier versions of the tool remain readable.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

// nameCollation orders names case-insensitively (strength 2 ignores case
// but not accents).
var nameCollation = &options.Collation{Locale: "en_US", Strength: 2}

// Config holds connection settings.
type Config struct {
	URI            string
	Database       string
	Collection     string
	MaxConns       uint64
	MinConns       uint64
	ConnectTimeout time.Duration
	MaxConnIdle    time.Duration
}

// Store is a MongoDB-backed core.Store.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ core.Store = (*Store)(nil)

type document struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Name       string             `bson:"name"`
	Mobile     int64              `bson:"mobile"`
	Categories string             `bson:"categories"`
}

func (d document) record() core.Record {
	return core.Record{
		ID:         d.ID.Hex(),
		Name:       d.Name,
		Mobile:     d.Mobile,
		Categories: d.Categories,
	}
}

// Open connects, pings, and ensures the name index exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxConns).
		SetMinPoolSize(cfg.MinConns).
		SetMaxConnIdleTime(cfg.MaxConnIdle).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_ci").SetCollation(nameCollation),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}, {Key: "mobile", Value: 1}},
			Options: options.Index().SetName("name_mobile"),
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", core.ErrInvalidID, id)
	}
	return oid, nil
}

func (s *Store) InsertMany(ctx context.Context, rows []core.ImportRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	docs := make([]any, len(rows))
	for i, r := range rows {
		docs[i] = document{
			ID:         primitive.NewObjectID(),
			Name:       r.Name,
			Mobile:     r.Mobile,
			Categories: core.DefaultCategory,
		}
	}

	// Ordered inserts stop at the first failure; the caller reports the whole
	// import as failed either way.
	res, err := s.coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert records: %w", err)
	}
	return len(res.InsertedIDs), nil
}

func (s *Store) Find(ctx context.Context, q core.ListQuery) (core.Page, error) {
	q = q.Normalize()

	total, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return core.Page{}, fmt.Errorf("count records: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: int(q.Sort)}, {Key: "_id", Value: 1}}).
		SetCollation(nameCollation).
		SetSkip(int64(q.Skip())).
		SetLimit(int64(q.PerPage))

	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return core.Page{}, fmt.Errorf("find records: %w", err)
	}
	recs, err := decodeAll(ctx, cur)
	if err != nil {
		return core.Page{}, err
	}

	return core.Page{
		Records: recs,
		Total:   total,
		Page:    q.Page,
		PerPage: q.PerPage,
		Sort:    q.Sort,
	}, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (core.Record, error) {
	oid, err := parseID(id)
	if err != nil {
		return core.Record{}, err
	}

	var doc document
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Record{}, core.ErrNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("find record %s: %w", id, err)
	}
	return doc.record(), nil
}

func (s *Store) UpdateByID(ctx context.Context, id, name string, mobile int64) (core.Record, error) {
	oid, err := parseID(id)
	if err != nil {
		return core.Record{}, err
	}

	update := bson.M{"$set": bson.M{"name": name, "mobile": mobile}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc document
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Record{}, core.ErrNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("update record %s: %w", id, err)
	}
	return doc.record(), nil
}

func (s *Store) UpdateCategoriesByNameAndMobile(ctx context.Context, name string, mobile int64, category string) (core.UpdateResult, error) {
	filter := bson.M{"name": name, "mobile": mobile}
	res, err := s.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"categories": category}})
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("update categories: %w", err)
	}
	return core.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (s *Store) Search(ctx context.Context, q string, limit int) ([]core.Record, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
	or := bson.A{
		bson.M{"name": pattern},
		bson.M{"categories": pattern},
	}
	if m, err := strconv.ParseInt(q, 10, 64); err == nil {
		or = append(or, bson.M{"mobile": m})
	}

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetCollation(nameCollation)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{"$or": or}, opts)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	return decodeAll(ctx, cur)
}

func (s *Store) Each(ctx context.Context, fn func(core.Record) error) error {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		if err := fn(doc.record()); err != nil {
			return err
		}
	}
	return cur.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]core.Record, error) {
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	recs := make([]core.Record, len(docs))
	for i, d := range docs {
		recs[i] = d.record()
	}
	return recs, nil
}
