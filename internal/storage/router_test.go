package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"content_engine/internal/domain"
)

type fakeSink struct {
	appended []*Record
	updated  []*Record
	err      error
}

func (f *fakeSink) Append(_ context.Context, _ *domain.RoutingConfig, rec *Record) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, rec)
	return nil
}

func (f *fakeSink) Update(_ context.Context, _ *domain.RoutingConfig, rec *Record) error {
	if f.err != nil {
		return f.err
	}
	f.updated = append(f.updated, rec)
	return nil
}

type staticResolver struct {
	routing *domain.RoutingConfig
}

func (s *staticResolver) RoutingFor(string) *domain.RoutingConfig { return s.routing }

type RouterSuite struct {
	suite.Suite
	sheets   *fakeSink
	airtable *fakeSink
	logger   *slog.Logger
}

func (s *RouterSuite) SetupTest() {
	s.sheets = &fakeSink{}
	s.airtable = &fakeSink{}
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *RouterSuite) newRouter(routing *domain.RoutingConfig) *Router {
	return NewRouter(&staticResolver{routing: routing}, s.sheets, s.airtable, s.logger)
}

func testPackage() *domain.ContentPackage {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &domain.ContentPackage{
		ID:        "pkg_20260801120000_abcd",
		ChannelID: "calm-music",
		Input:     domain.InputData{ChannelName: "Calm Music", CreatedBy: "Team AI"},
		GeneratedContent: &domain.GeneratedContent{
			Title:         "Peaceful Ocean Waves",
			Description:   "Long description",
			Tags:          []string{"Ocean Waves", "deep-sleep", "x"},
			ThumbnailText: "OCEAN",
		},
		GeneratedImages: &domain.GeneratedImages{
			BatchURLs: []string{"https://img/1.png", "https://img/2.png"},
		},
		Status:    domain.StatusGenerated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *RouterSuite) TestSaveFansOutToBothSinks() {
	router := s.newRouter(&domain.RoutingConfig{
		ChannelID:      "calm-music",
		GoogleSheetsID: "sheet-1",
		AirtableBaseID: "appX",
		AirtableTable:  "Content",
	})

	s.Require().NoError(router.SavePackage(context.Background(), testPackage()))
	s.Require().Len(s.sheets.appended, 1)
	s.Require().Len(s.airtable.appended, 1)

	rec := s.sheets.appended[0]
	s.Equal("oceanwaves, deepsleep", rec.Tags)
	s.Equal("https://img/1.png | https://img/2.png", rec.ImageURL)
	s.Equal("generated", rec.Status)
}

func (s *RouterSuite) TestSaveSucceedsWithOneSinkDown() {
	s.sheets.err = fmt.Errorf("sheets unavailable")
	router := s.newRouter(&domain.RoutingConfig{
		ChannelID:      "calm-music",
		GoogleSheetsID: "sheet-1",
		AirtableBaseID: "appX",
	})

	s.NoError(router.SavePackage(context.Background(), testPackage()))
	s.Len(s.airtable.appended, 1)
}

func (s *RouterSuite) TestSaveFailsWhenAllSinksFail() {
	s.sheets.err = fmt.Errorf("sheets unavailable")
	s.airtable.err = fmt.Errorf("airtable unavailable")
	router := s.newRouter(&domain.RoutingConfig{
		ChannelID:      "calm-music",
		GoogleSheetsID: "sheet-1",
		AirtableBaseID: "appX",
	})

	err := router.SavePackage(context.Background(), testPackage())
	s.Error(err)
	s.Contains(err.Error(), "all 2 sinks failed")
}

func (s *RouterSuite) TestSaveFailsWithoutRouting() {
	router := s.newRouter(&domain.RoutingConfig{ChannelID: "calm-music"})
	err := router.SavePackage(context.Background(), testPackage())
	s.Error(err)
	s.Contains(err.Error(), "no sinks configured")
}

func (s *RouterSuite) TestUpdateOnlyRoutedSink() {
	router := s.newRouter(&domain.RoutingConfig{
		ChannelID:      "calm-music",
		AirtableBaseID: "appX",
	})

	s.Require().NoError(router.UpdatePackage(context.Background(), testPackage()))
	s.Empty(s.sheets.updated)
	s.Len(s.airtable.updated, 1)
}

func (s *RouterSuite) TestSheetURLEnablesSheetsSink() {
	router := s.newRouter(&domain.RoutingConfig{
		ChannelID:      "calm-music",
		GoogleSheetURL: "https://docs.google.com/spreadsheets/d/sheet-url-id/edit#gid=7",
	})

	s.Require().NoError(router.SavePackage(context.Background(), testPackage()))
	s.Len(s.sheets.appended, 1)
}

func (s *RouterSuite) TestRecordWithoutContent() {
	rec := FromPackage(&domain.ContentPackage{
		ID:        "pkg_x",
		ChannelID: "c",
		Status:    domain.StatusFailed,
	})
	s.Equal("No Title", rec.Title)
	s.Equal("Unknown Channel", rec.ChannelName)
	s.Empty(rec.ImageURL)
}

func (s *RouterSuite) TestDescriptionCappedForSinks() {
	pkg := testPackage()
	long := make([]rune, 1500)
	for i := range long {
		long[i] = 'd'
	}
	pkg.GeneratedContent.Description = string(long)

	rec := FromPackage(pkg)
	s.Len([]rune(rec.Description), 1000)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
