package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/jo-hoe/chestxray/internal/backend/database"
	"github.com/jo-hoe/chestxray/internal/backend/inference"
	"github.com/jo-hoe/chestxray/internal/backend/session"
	"github.com/jo-hoe/chestxray/internal/common"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Upload is a single file received from a client
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadResult describes a completed upload
type UploadResult struct {
	UID         string
	Predictions inference.Predictions
}

// Authenticate resolves a session cookie value
func (service *CoreService) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, common.ErrNotAuthenticated
	}
	return service.sessionStore.Get(ctx, token)
}

// UploadImage compresses the upload, stores it as pending, runs the inference and
// stores its outcome. Once the record exists every failure marks it as failed.
func (service *CoreService) UploadImage(ctx context.Context, sess *session.Session, upload Upload) (*UploadResult, error) {
	if sess == nil || strings.TrimSpace(sess.Username) == "" {
		return nil, common.ErrInvalidSession
	}
	if len(upload.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", common.ErrValidation)
	}
	if !isAllowedContentType(upload.ContentType) {
		return nil, common.ErrUnsupportedType
	}

	compressed, err := service.codec.Execute(upload.Data)
	if err != nil {
		return nil, err
	}

	image := &database.Image{
		UID:         database.GenerateID(),
		Filename:    upload.Filename,
		Data:        compressed,
		Predictions: []float64{},
		Timestamp:   service.now().UTC(),
		Status:      database.StatusPending,
	}
	storeCtx, cancel := service.storeContext(ctx)
	err = service.databaseService.AppendImage(storeCtx, sess.Username, image)
	cancel()
	if err != nil {
		return nil, err
	}
	slog.Info("image stored as pending", "uid", image.UID, "username", sess.Username, "size_bytes", len(compressed))

	predictions, err := service.completeImage(ctx, sess.Username, image)
	if err != nil {
		service.markFailed(ctx, sess.Username, image, err)
		return nil, err
	}

	return &UploadResult{UID: image.UID, Predictions: predictions}, nil
}

func (service *CoreService) completeImage(ctx context.Context, username string, image *database.Image) (inference.Predictions, error) {
	result, err := service.predictor.Predict(ctx, base64.StdEncoding.EncodeToString(image.Data))
	if err != nil {
		return nil, err
	}

	heatmap, err := result.DecodeHeatmap()
	if err != nil {
		return nil, err
	}
	heatmap, err = service.codec.Execute(heatmap)
	if err != nil {
		return nil, fmt.Errorf("heatmap: %w", err)
	}

	storeCtx, cancel := service.storeContext(ctx)
	defer cancel()
	if err := service.databaseService.CompleteImage(storeCtx, username, image.UID, image.Filename, result.Predictions.Scores(), heatmap); err != nil {
		return nil, err
	}
	slog.Info("image completed", "uid", image.UID, "username", username, "labels", len(result.Predictions))

	return result.Predictions, nil
}

// markFailed records the cause on the pending image. It runs detached from the
// request context so that a cancelled request still leaves a final status.
func (service *CoreService) markFailed(ctx context.Context, username string, image *database.Image, cause error) {
	storeCtx, cancel := service.storeContext(context.WithoutCancel(ctx))
	defer cancel()

	if err := service.databaseService.FailImage(storeCtx, username, image.UID, image.Filename, cause.Error()); err != nil {
		slog.Error("failed to mark image as failed", "uid", image.UID, "username", username, "cause", cause, "error", err)
		return
	}
	slog.Warn("image marked as failed", "uid", image.UID, "username", username, "cause", cause)
}

func isAllowedContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return allowedContentTypes[strings.ToLower(mediaType)]
}
