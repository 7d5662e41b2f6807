// Package mongo persists watch progress so playback positions survive both
// session removal and process restarts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamgate/internal/domain"
)

type watchProgressDoc struct {
	ID          string  `bson:"_id"`
	InfoHash    string  `bson:"infoHash"`
	FileIndex   int     `bson:"fileIndex"`
	Position    float64 `bson:"position"`
	Duration    float64 `bson:"duration"`
	TorrentName string  `bson:"torrentName"`
	FilePath    string  `bson:"filePath"`
	UpdatedAt   int64   `bson:"updatedAt"`
}

type WatchProgressRepository struct {
	collection *mongo.Collection
}

func NewWatchProgressRepository(client *mongo.Client, dbName string) *WatchProgressRepository {
	return &WatchProgressRepository{collection: client.Database(dbName).Collection("watch_progress")}
}

func progressDocID(infoHash string, fileIndex int) string {
	return fmt.Sprintf("%s:%d", infoHash, fileIndex)
}

// Save upserts unconditionally: last write wins, no merging. Callers are
// expected to rate-limit themselves (one save per few seconds of playback).
func (r *WatchProgressRepository) Save(ctx context.Context, w domain.WatchProgress) error {
	update := bson.M{
		"$set": bson.M{
			"infoHash":    w.InfoHash,
			"fileIndex":   w.FileIndex,
			"position":    w.Position,
			"duration":    w.Duration,
			"torrentName": w.TorrentName,
			"filePath":    w.FilePath,
			"updatedAt":   time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": progressDocID(w.InfoHash, w.FileIndex)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *WatchProgressRepository) Get(ctx context.Context, infoHash string, fileIndex int) (domain.WatchProgress, error) {
	var doc watchProgressDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": progressDocID(infoHash, fileIndex)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.WatchProgress{}, domain.ErrNotFound
		}
		return domain.WatchProgress{}, err
	}
	return docToProgress(doc), nil
}

func (r *WatchProgressRepository) Remove(ctx context.Context, infoHash string, fileIndex int) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": progressDocID(infoHash, fileIndex)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *WatchProgressRepository) Clear(ctx context.Context) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{})
	return err
}

func (r *WatchProgressRepository) ListRecent(ctx context.Context, limit int) ([]domain.WatchProgress, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []watchProgressDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	progresses := make([]domain.WatchProgress, 0, len(docs))
	for _, doc := range docs {
		progresses = append(progresses, docToProgress(doc))
	}
	return progresses, nil
}

func docToProgress(doc watchProgressDoc) domain.WatchProgress {
	return domain.WatchProgress{
		InfoHash:    doc.InfoHash,
		FileIndex:   doc.FileIndex,
		Position:    doc.Position,
		Duration:    doc.Duration,
		TorrentName: doc.TorrentName,
		FilePath:    doc.FilePath,
		UpdatedAt:   time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}
