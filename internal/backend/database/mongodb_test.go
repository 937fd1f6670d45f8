package database

import (
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestPendingImageFilter(t *testing.T) {
	filter := pendingImageFilter("alice", "uid-1", "scan1.jpg")

	if filter[0].Key != "_username" || filter[0].Value != "alice" {
		t.Fatalf("unexpected user clause: %+v", filter[0])
	}
	if filter[1].Key != "images" {
		t.Fatalf("expected images clause, got %q", filter[1].Key)
	}
	elemMatch, ok := filter[1].Value.(bson.D)
	if !ok || len(elemMatch) != 1 || elemMatch[0].Key != "$elemMatch" {
		t.Fatalf("expected $elemMatch, got %+v", filter[1].Value)
	}
	fields, ok := elemMatch[0].Value.(bson.D)
	if !ok {
		t.Fatalf("unexpected $elemMatch value: %+v", elemMatch[0].Value)
	}
	want := map[string]string{"uid": "uid-1", "filename": "scan1.jpg", "status": "Pending"}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for _, field := range fields {
		if want[field.Key] != field.Value {
			t.Errorf("field %s = %v, want %v", field.Key, field.Value, want[field.Key])
		}
	}
}

func TestAppendImageUpdate(t *testing.T) {
	image := &Image{UID: "uid-1"}
	update := appendImageUpdate(image)
	if update[0].Key != "$push" {
		t.Fatalf("expected $push, got %q", update[0].Key)
	}
	push := update[0].Value.(bson.D)
	if push[0].Key != "images" || push[0].Value != image {
		t.Fatalf("unexpected $push body: %+v", push)
	}
}

func TestCompleteImageUpdate_UsesPositionalOperator(t *testing.T) {
	update := completeImageUpdate([]float64{0.87, 0.13}, []byte("heat"))
	if update[0].Key != "$set" {
		t.Fatalf("expected $set, got %q", update[0].Key)
	}
	set := update[0].Value.(bson.D)
	keys := map[string]bool{}
	for _, e := range set {
		keys[e.Key] = true
		if e.Key == "images.$.status" && e.Value != "Completed" {
			t.Errorf("expected status Completed, got %v", e.Value)
		}
	}
	for _, key := range []string{"images.$.predictions", "images.$.heatmap", "images.$.status"} {
		if !keys[key] {
			t.Errorf("missing %s in update", key)
		}
	}
}

func TestFailImageUpdate(t *testing.T) {
	set := failImageUpdate("timeout")[0].Value.(bson.D)
	got := map[string]any{}
	for _, e := range set {
		got[e.Key] = e.Value
	}
	if got["images.$.status"] != "Failed" || got["images.$.failure"] != "timeout" {
		t.Fatalf("unexpected fail update: %+v", got)
	}
}

func TestImageDocumentShape(t *testing.T) {
	raw, err := bson.Marshal(&User{Username: "alice", PasswordHash: "hash", FullName: "Alice", Images: []*Image{}})
	if err != nil {
		t.Fatalf("bson.Marshal failed: %v", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("bson.Unmarshal failed: %v", err)
	}
	for _, key := range []string{"_username", "user_pass", "fullName", "images"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing document key %s", key)
		}
	}
}
