package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jo-hoe/chestxray/internal/common"

	_ "modernc.org/sqlite"
)

// SQLiteDatabase keeps users and their images in two tables. The image list order
// is the autoincrement sequence, so appends never need to read the current list.
type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL REFERENCES users(username),
			filename TEXT NOT NULL,
			data BLOB NOT NULL,
			predictions TEXT NOT NULL DEFAULT '[]',
			heatmap BLOB,
			timestamp INTEGER NOT NULL,
			status TEXT NOT NULL,
			failure TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_username ON images (username, seq)`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return storeError("create schema", err)
		}
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist(ctx context.Context) bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	return s.db.PingContext(ctx) == nil
}

func (s *SQLiteDatabase) CreateUser(ctx context.Context, user *User) error {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, full_name) VALUES (?, ?, ?) ON CONFLICT (username) DO NOTHING",
		user.Username, user.PasswordHash, user.FullName)
	if err != nil {
		return storeError("create user", err)
	}
	return requireAffected(result, common.ErrUserExists)
}

func (s *SQLiteDatabase) GetUser(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT username, password_hash, full_name FROM users WHERE username = ?", username)
	var user User
	if err := row.Scan(&user.Username, &user.PasswordHash, &user.FullName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", username, common.ErrNotFound)
		}
		return nil, storeError("get user", err)
	}
	return &user, nil
}

func (s *SQLiteDatabase) AppendImage(ctx context.Context, username string, image *Image) error {
	predictions, err := json.Marshal(nonNilPredictions(image.Predictions))
	if err != nil {
		return fmt.Errorf("failed to encode predictions: %w", err)
	}

	// insert only when the owning user exists, in one statement
	result, err := s.db.ExecContext(ctx, `INSERT INTO images
		(uid, username, filename, data, predictions, heatmap, timestamp, status, failure)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM users WHERE username = ?)`,
		image.UID, username, image.Filename, image.Data, string(predictions), image.Heatmap,
		image.Timestamp.UnixNano(), string(image.Status), image.Failure, username)
	if err != nil {
		return storeError("append image", err)
	}
	return requireAffected(result, fmt.Errorf("user %s: %w", username, common.ErrNotFound))
}

func (s *SQLiteDatabase) CompleteImage(ctx context.Context, username, uid, filename string, predictions []float64, heatmap []byte) error {
	encoded, err := json.Marshal(nonNilPredictions(predictions))
	if err != nil {
		return fmt.Errorf("failed to encode predictions: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE images
		SET predictions = ?, heatmap = ?, status = ?
		WHERE username = ? AND uid = ? AND filename = ? AND status = ?`,
		string(encoded), heatmap, string(StatusCompleted),
		username, uid, filename, string(StatusPending))
	if err != nil {
		return storeError("complete image", err)
	}
	return requireAffected(result, fmt.Errorf("pending image %s: %w", uid, common.ErrNotFound))
}

func (s *SQLiteDatabase) FailImage(ctx context.Context, username, uid, filename, cause string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE images
		SET status = ?, failure = ?
		WHERE username = ? AND uid = ? AND filename = ? AND status = ?`,
		string(StatusFailed), cause,
		username, uid, filename, string(StatusPending))
	if err != nil {
		return storeError("fail image", err)
	}
	return requireAffected(result, fmt.Errorf("pending image %s: %w", uid, common.ErrNotFound))
}

const imageColumns = "uid, filename, data, predictions, heatmap, timestamp, status, failure"

func (s *SQLiteDatabase) GetImages(ctx context.Context, username string) ([]*Image, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE username = ? ORDER BY seq ASC", username)
	if err != nil {
		return nil, storeError("get images", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	images := []*Image{}
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("get images", err)
	}
	return images, nil
}

func (s *SQLiteDatabase) GetImageByID(ctx context.Context, username, uid string) (*Image, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE username = ? AND uid = ?", username, uid)
	image, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %s: %w", uid, common.ErrNotFound)
	}
	return image, err
}

func (s *SQLiteDatabase) requireUser(ctx context.Context, username string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)", username).Scan(&exists)
	if err != nil {
		return storeError("lookup user", err)
	}
	if !exists {
		return fmt.Errorf("user %s: %w", username, common.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*Image, error) {
	var (
		image       Image
		predictions string
		timestamp   int64
		status      string
	)
	err := row.Scan(&image.UID, &image.Filename, &image.Data, &predictions, &image.Heatmap,
		&timestamp, &status, &image.Failure)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeError("scan image", err)
	}
	if err := json.Unmarshal([]byte(predictions), &image.Predictions); err != nil {
		return nil, storeError("decode predictions", err)
	}
	image.Timestamp = time.Unix(0, timestamp).UTC()
	image.Status = Status(status)
	return &image, nil
}

func requireAffected(result sql.Result, notAffected error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return storeError("rows affected", err)
	}
	if affected == 0 {
		return notAffected
	}
	return nil
}

func nonNilPredictions(predictions []float64) []float64 {
	if predictions == nil {
		return []float64{}
	}
	return predictions
}

func storeError(operation string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrStore, operation, err)
}
