package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/jo-hoe/chestxray/internal/backend/database"
	"github.com/jo-hoe/chestxray/internal/backend/session"
)

const jpegDataURIPrefix = "data:image/jpeg;base64,"

// ReportSummary is one row of the report list
type ReportSummary struct {
	UID         string    `json:"uid"`
	Date        string    `json:"date"`
	Filename    string    `json:"filename"`
	PatientName string    `json:"patientName"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

type ReportList struct {
	Reports      []ReportSummary `json:"reports"`
	TotalReports int             `json:"totalReports"`
}

// ReportDetail is a single report with its images embedded as data URIs
type ReportDetail struct {
	UID         string    `json:"uid"`
	Filename    string    `json:"filename"`
	Status      string    `json:"status"`
	ImageURL    string    `json:"imageUrl"`
	Predictions []float64 `json:"predictions"`
	HeatmapURL  string    `json:"heatmapUrl,omitempty"`
	Failure     string    `json:"failure,omitempty"`
}

// ListReports returns the user's reports, newest first
func (service *CoreService) ListReports(ctx context.Context, sess *session.Session) (*ReportList, error) {
	storeCtx, cancel := service.storeContext(ctx)
	defer cancel()

	images, err := service.databaseService.GetImages(storeCtx, sess.Username)
	if err != nil {
		return nil, err
	}

	reports := make([]ReportSummary, 0, len(images))
	for _, image := range images {
		reports = append(reports, ReportSummary{
			UID:         image.UID,
			Date:        formatReportDate(image.Timestamp, service.location),
			Filename:    image.Filename,
			PatientName: sess.FullName,
			Status:      string(image.Status),
			Timestamp:   image.Timestamp,
		})
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})

	return &ReportList{Reports: reports, TotalReports: len(reports)}, nil
}

// GetReport returns a single report of the user
func (service *CoreService) GetReport(ctx context.Context, sess *session.Session, uid string) (*ReportDetail, error) {
	storeCtx, cancel := service.storeContext(ctx)
	defer cancel()

	image, err := service.databaseService.GetImageByID(storeCtx, sess.Username, uid)
	if err != nil {
		return nil, err
	}
	return newReportDetail(image), nil
}

func newReportDetail(image *database.Image) *ReportDetail {
	predictions := image.Predictions
	if predictions == nil {
		predictions = []float64{}
	}
	detail := &ReportDetail{
		UID:         image.UID,
		Filename:    image.Filename,
		Status:      string(image.Status),
		ImageURL:    toDataURI(image.Data),
		Predictions: predictions,
		Failure:     image.Failure,
	}
	if len(image.Heatmap) > 0 {
		detail.HeatmapURL = toDataURI(image.Heatmap)
	}
	return detail
}

func toDataURI(data []byte) string {
	return jpegDataURIPrefix + base64.StdEncoding.EncodeToString(data)
}

// formatReportDate renders a timestamp like "March 3rd, 2025 at 2:07 PM EST"
func formatReportDate(timestamp time.Time, location *time.Location) string {
	local := timestamp.In(location)
	return fmt.Sprintf("%s %d%s, %d at %s",
		local.Month(), local.Day(), ordinalSuffix(local.Day()), local.Year(), local.Format("3:04 PM MST"))
}

func ordinalSuffix(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
