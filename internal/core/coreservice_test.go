package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/chestxray/internal/backend/database"
	"github.com/jo-hoe/chestxray/internal/backend/imageprocessing"
	"github.com/jo-hoe/chestxray/internal/backend/inference"
	"github.com/jo-hoe/chestxray/internal/backend/session"
	"golang.org/x/crypto/bcrypt"
)

// fakePredictor answers Predict with predictFunc, or with a fixed result
type fakePredictor struct {
	mu          sync.Mutex
	calls       int
	lastImage   string
	result      *inference.Result
	err         error
	predictFunc func(ctx context.Context) (*inference.Result, error)
}

func (p *fakePredictor) Predict(ctx context.Context, base64Image string) (*inference.Result, error) {
	p.mu.Lock()
	p.calls++
	p.lastImage = base64Image
	p.mu.Unlock()
	if p.predictFunc != nil {
		return p.predictFunc(ctx)
	}
	return p.result, p.err
}

// countingDatabase records the mutations reaching the wrapped store
type countingDatabase struct {
	database.DatabaseService
	mu        sync.Mutex
	appends   []string
	completes []string
	fails     []string
}

func (d *countingDatabase) AppendImage(ctx context.Context, username string, image *database.Image) error {
	err := d.DatabaseService.AppendImage(ctx, username, image)
	if err == nil {
		d.mu.Lock()
		d.appends = append(d.appends, image.UID)
		d.mu.Unlock()
	}
	return err
}

func (d *countingDatabase) CompleteImage(ctx context.Context, username, uid, filename string, predictions []float64, heatmap []byte) error {
	err := d.DatabaseService.CompleteImage(ctx, username, uid, filename, predictions, heatmap)
	if err == nil {
		d.mu.Lock()
		d.completes = append(d.completes, uid)
		d.mu.Unlock()
	}
	return err
}

func (d *countingDatabase) FailImage(ctx context.Context, username, uid, filename, cause string) error {
	err := d.DatabaseService.FailImage(ctx, username, uid, filename, cause)
	if err == nil {
		d.mu.Lock()
		d.fails = append(d.fails, uid)
		d.mu.Unlock()
	}
	return err
}

func newTestCoreService(t *testing.T, predictor Predictor) (*CoreService, *countingDatabase) {
	t.Helper()

	config := &ServiceConfig{
		ReportTimezone: DefaultReportTimezone,
		Database:       Database{Timeout: 5 * time.Second},
	}

	db, err := database.NewDatabase(context.Background(), database.TypeSQLite, ":memory:", "")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	counting := &countingDatabase{DatabaseService: db}

	sessions, err := session.NewJWTStore([]byte("test-secret-0123456789"), time.Hour)
	if err != nil {
		t.Fatalf("NewJWTStore error: %v", err)
	}

	service, err := newCoreService(config, counting, sessions, predictor, imageprocessing.NewDefaultInvoker())
	if err != nil {
		t.Fatalf("newCoreService error: %v", err)
	}
	service.passwordCost = bcrypt.MinCost
	t.Cleanup(func() { _ = service.Close() })
	return service, counting
}

// loginTestUser signs up and logs in, returning the resolved session
func loginTestUser(t *testing.T, service *CoreService, username, fullName string) *session.Session {
	t.Helper()
	ctx := context.Background()

	if err := service.Signup(ctx, username, "secret-password", fullName); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	token, err := service.Login(ctx, username, "secret-password")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	sess, err := service.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	return sess
}

func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(width, height), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg encode error: %v", err)
	}
	return buf.Bytes()
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(width, height)); err != nil {
		t.Fatalf("png encode error: %v", err)
	}
	return buf.Bytes()
}

// completedResult is the inference outcome of the alice/scan1.jpg scenario
func completedResult(t *testing.T) *inference.Result {
	t.Helper()
	return &inference.Result{
		Predictions: inference.Predictions{
			{Label: "Pneumonia", Score: 0.87},
			{Label: "Normal", Score: 0.13},
		},
		Heatmap: base64.StdEncoding.EncodeToString(testPNG(t, 224, 224)),
	}
}

func isJPEG(data []byte) bool {
	return len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8
}

func TestNewCoreService_InvalidTimezone(t *testing.T) {
	config := &ServiceConfig{ReportTimezone: "Mars/Olympus_Mons"}
	if _, err := newCoreService(config, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestNewCoreService_FromConfig(t *testing.T) {
	config := &ServiceConfig{
		Database:  Database{Type: database.TypeSQLite, ConnectionString: ":memory:"},
		Session:   Session{Type: session.TypeJWT, Secret: "test-secret-0123456789"},
		Inference: Inference{BaseURL: "http://localhost:7860"},
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	service, err := NewCoreService(context.Background(), config)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	defer func() { _ = service.Close() }()

	if service.SessionTTL() != session.DefaultTTL {
		t.Errorf("expected default session TTL, got %v", service.SessionTTL())
	}
	if !service.databaseService.DoesDatabaseExist(context.Background()) {
		t.Error("expected database schema to exist")
	}
}
