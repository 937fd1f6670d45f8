package database

import "context"

// DatabaseService is the document store. Mutations of a user's image list are single
// atomic operations of the backend; callers never read, modify and write back.
type DatabaseService interface {
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist(ctx context.Context) bool
	Close() error

	// CreateUser fails with common.ErrUserExists when the username is taken.
	CreateUser(ctx context.Context, user *User) error
	// GetUser returns the user without images, or common.ErrNotFound.
	GetUser(ctx context.Context, username string) (*User, error)

	// AppendImage pushes the image to the end of the user's list. It fails with
	// common.ErrNotFound when no such user exists.
	AppendImage(ctx context.Context, username string, image *Image) error
	// CompleteImage moves the pending image matching (uid, filename) to StatusCompleted.
	CompleteImage(ctx context.Context, username, uid, filename string, predictions []float64, heatmap []byte) error
	// FailImage moves the pending image matching (uid, filename) to StatusFailed.
	FailImage(ctx context.Context, username, uid, filename, cause string) error

	// GetImages returns the user's images in upload order.
	GetImages(ctx context.Context, username string) ([]*Image, error)
	// GetImageByID returns a single image, or common.ErrNotFound.
	GetImageByID(ctx context.Context, username, uid string) (*Image, error)
}
