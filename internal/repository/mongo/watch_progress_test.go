package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestProgressDocID(t *testing.T) {
	got := progressDocID("abcdef0123456789abcdef0123456789abcdef01", 3)
	want := "abcdef0123456789abcdef0123456789abcdef01:3"
	if got != want {
		t.Fatalf("progressDocID = %q, want %q", got, want)
	}
}

func TestDocToProgress(t *testing.T) {
	at := time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)
	doc := watchProgressDoc{
		ID:          "hash:0",
		InfoHash:    "hash",
		FileIndex:   0,
		Position:    120.5,
		Duration:    3600,
		TorrentName: "Sintel",
		FilePath:    "sintel.mkv",
		UpdatedAt:   at.Unix(),
	}
	got := docToProgress(doc)
	if got.InfoHash != "hash" || got.FileIndex != 0 {
		t.Fatalf("key fields: %+v", got)
	}
	if got.Position != 120.5 || got.Duration != 3600 {
		t.Fatalf("position/duration: %+v", got)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, at)
	}
}

func TestWatchProgressDocBSONRoundtrip(t *testing.T) {
	doc := watchProgressDoc{
		ID:          "hash:2",
		InfoHash:    "hash",
		FileIndex:   2,
		Position:    42.25,
		Duration:    900,
		TorrentName: "Tears of Steel",
		FilePath:    "tos/tos.mp4",
		UpdatedAt:   1750000000,
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back watchProgressDoc
	if err := bson.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != doc {
		t.Fatalf("roundtrip mismatch: %+v != %+v", back, doc)
	}
}

func TestDocIDMappedToMongoID(t *testing.T) {
	raw, err := bson.Marshal(watchProgressDoc{ID: "hash:1", InfoHash: "hash", FileIndex: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["_id"] != "hash:1" {
		t.Fatalf("_id = %v, want hash:1", m["_id"])
	}
}
