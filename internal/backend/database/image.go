package database

import "time"

type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Image is one uploaded X-ray and its inference outcome, stored inside a user's document
type Image struct {
	UID         string    `bson:"uid"`
	Filename    string    `bson:"filename"`
	Data        []byte    `bson:"data"`                // JPEG image data stored as binary
	Predictions []float64 `bson:"predictions"`         // empty until completed
	Heatmap     []byte    `bson:"heatmap,omitempty"`   // JPEG image data, absent until completed
	Timestamp   time.Time `bson:"timestamp"`
	Status      Status    `bson:"status"`
	Failure     string    `bson:"failure,omitempty"` // cause, only set for StatusFailed
}

// User is the per-user document owning an ordered list of images
type User struct {
	Username     string   `bson:"_username"`
	PasswordHash string   `bson:"user_pass"`
	FullName     string   `bson:"fullName"`
	Images       []*Image `bson:"images"`
}
