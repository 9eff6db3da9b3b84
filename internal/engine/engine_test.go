package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"content_engine/internal/domain"
	"content_engine/internal/engine/mocks"
)

type EngineSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	generator *mocks.MockContentGenerator
	images    *mocks.MockImageGenerator
	store     *mocks.MockRecordStore
	directory *mocks.MockChannelDirectory
	frames    *mocks.MockFrameResolver
	engine    *Engine
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.generator = mocks.NewMockContentGenerator(s.ctrl)
	s.images = mocks.NewMockImageGenerator(s.ctrl)
	s.store = mocks.NewMockRecordStore(s.ctrl)
	s.directory = mocks.NewMockChannelDirectory(s.ctrl)
	s.frames = mocks.NewMockFrameResolver(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s.engine = New(s.generator, s.images, s.store, s.directory, s.frames, Config{
		AutoGenerateImages: true,
		MaxPackageAge:      24 * time.Hour,
	}, nil, logger)
}

func (s *EngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func managedChannel() *domain.ChannelConfig {
	return &domain.ChannelConfig{
		ChannelID:   "calm-music",
		ChannelName: "Calm Music",
		IsActive:    true,
	}
}

func sampleContent() *domain.GeneratedContent {
	return &domain.GeneratedContent{
		Title:         "Peaceful Ocean Waves For Deep Sleep",
		Description:   "Relaxing sounds",
		Tags:          []string{"oceanwaves", "deepsleep"},
		ThumbnailText: "SLEEP NOW",
		ImagePrompts:  []string{"a calm ocean at dusk", "moonlit waves", "soft clouds over water"},
	}
}

func (s *EngineSuite) TestCreatePackageRegistersPending() {
	in := &domain.InputData{ChannelID: "calm-music", VideoTopic: "ocean waves"}

	pkg := s.engine.CreatePackage(in)

	s.Equal(domain.StatusPending, pkg.Status)
	s.Equal("calm-music", pkg.ChannelID)
	s.NotEmpty(pkg.ID)
	s.Contains(pkg.ID, "pkg_")

	got := s.engine.Get(pkg.ID)
	s.Require().NotNil(got)
	s.Equal(pkg.ID, got.ID)
}

func (s *EngineSuite) TestAdHocRequestGetsDerivedChannelID() {
	in := &domain.InputData{
		ChannelName:        "Calm Music",
		ChannelDescription: "Relaxing soundscapes",
		VideoTopic:         "ocean waves",
	}
	s.directory.EXPECT().Get(gomock.Any()).Return(nil)
	s.frames.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", nil)
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(sampleContent(), nil)
	s.images.EXPECT().Generate(gomock.Any(), "a calm ocean at dusk").Return([]string{"https://img/1.png"}, nil)
	s.store.EXPECT().SavePackage(gomock.Any(), gomock.Any()).Return(nil)

	pkg, err := s.engine.Run(context.Background(), in)

	s.Require().NoError(err)
	s.Equal(domain.StatusGenerated, pkg.Status)
	s.Contains(pkg.ChannelID, "ad-hoc-calm-music-")
	s.Require().NotNil(pkg.GeneratedImages)
	s.Equal("https://img/1.png", pkg.GeneratedImages.ThumbnailURL)
}

func (s *EngineSuite) TestManagedChannelIsEnrichedAndContextualized() {
	in := &domain.InputData{ChannelID: "calm-music", VideoTopic: "rain sounds"}

	s.directory.EXPECT().Enrich(gomock.Any())
	s.directory.EXPECT().Get("calm-music").Return(&domain.ChannelConfig{
		ChannelID:      "calm-music",
		ChannelName:    "Calm Music",
		ContentStyle:   "soothing",
		TargetAudience: "sleepers",
		ContentTopics:  []string{"rain", "ocean"},
	})
	s.frames.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", nil)
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, got *domain.InputData) (*domain.GeneratedContent, error) {
			s.Contains(got.AdditionalContext, "Channel profile:")
			s.Contains(got.AdditionalContext, "Style: soothing")
			s.Contains(got.AdditionalContext, "rain, ocean")
			return sampleContent(), nil
		})
	s.images.EXPECT().Generate(gomock.Any(), gomock.Any()).Return([]string{"https://img/1.png"}, nil)
	s.store.EXPECT().SavePackage(gomock.Any(), gomock.Any()).Return(nil)

	pkg, err := s.engine.Run(context.Background(), in)

	s.Require().NoError(err)
	s.Equal(domain.StatusGenerated, pkg.Status)
}

func (s *EngineSuite) TestContentFailureIsFatal() {
	in := &domain.InputData{ChannelID: "calm-music", VideoTopic: "rain sounds"}

	s.directory.EXPECT().Enrich(gomock.Any())
	s.directory.EXPECT().Get("calm-music").Return(managedChannel())
	s.frames.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", nil)
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("all providers down"))

	pkg, err := s.engine.Run(context.Background(), in)

	s.Require().Error(err)
	s.Contains(err.Error(), "generate content")
	s.Equal(domain.StatusFailed, pkg.Status)

	got := s.engine.Get(pkg.ID)
	s.Require().NotNil(got)
	s.Equal(domain.StatusFailed, got.Status)
}

func (s *EngineSuite) TestUnresolvableChannelFailsBeforeGeneration() {
	in := &domain.InputData{ChannelID: "no-such-channel", VideoTopic: "rain sounds"}

	s.directory.EXPECT().Enrich(gomock.Any())
	s.directory.EXPECT().Get("no-such-channel").Return(nil)

	pkg, err := s.engine.Run(context.Background(), in)

	s.Require().Error(err)
	s.Contains(err.Error(), "cannot resolve channel")
	s.Equal(domain.StatusFailed, pkg.Status)
	for _, line := range pkg.Logs {
		s.NotContains(line, "starting content generation")
	}
}

func (s *EngineSuite) TestEmptyRequestFailsBeforeGeneration() {
	in := &domain.InputData{VideoTopic: "rain sounds"}

	s.directory.EXPECT().Enrich(gomock.Any())
	s.directory.EXPECT().Get("").Return(nil)

	pkg, err := s.engine.Run(context.Background(), in)

	s.Require().Error(err)
	s.Equal(domain.StatusFailed, pkg.Status)
}

func (s *EngineSuite) TestImageFailureIsSoft() {
	in := &domain.InputData{ChannelID: "calm-music", VideoTopic: "rain sounds"}

	s.directory.EXPECT().Enrich(gomock.Any())
	s.directory.EXPECT().Get("calm-music").Return(managedChannel())
	s.frames.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", nil)
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(sampleContent(), nil)
	s.images.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("piapi timeout"))
	s.store.EXPECT().SavePackage(gomock.Any(), gomock.Any()).Return(nil)

	pkg, err := s.engine.Run(context.Background(), in)

	s.Require().NoError(err)
	s.Equal(domain.StatusGenerated, pkg.Status)
	s.Nil(pkg.GeneratedImages)

	found := false
	for _, line := range pkg.Logs {
		if strings.Contains(line, "skipping images: piapi timeout") {
			found = true
		}
	}
	s.True(found, "expected image failure to be logged on the package")
}

func (s *EngineSuite) TestPersistFailureIsSoft() {
	in := &domain.InputData{ChannelID: "calm-music", VideoTopic: "rain sounds"}

	s.directory.EXPECT().Enrich(gomock.Any())
	s.directory.EXPECT().Get("calm-music").Return(managedChannel())
	s.frames.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", nil)
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(sampleContent(), nil)
	s.images.EXPECT().Generate(gomock.Any(), gomock.Any()).Return([]string{"https://img/1.png"}, nil)
	s.store.EXPECT().SavePackage(gomock.Any(), gomock.Any()).Return(fmt.Errorf("sheets unavailable"))

	pkg, err := s.engine.Run(context.Background(), in)

	s.Require().NoError(err)
	s.Equal(domain.StatusGenerated, pkg.Status)
}

func (s *EngineSuite) TestFrameFailureIsSoft() {
	in := &domain.InputData{ChannelID: "calm-music", VideoTopic: "rain sounds", VideoFrameURL: "https://example.com/f.jpg"}

	s.directory.EXPECT().Enrich(gomock.Any())
	s.directory.EXPECT().Get("calm-music").Return(managedChannel())
	s.frames.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", fmt.Errorf("fetch frame: 404"))
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(sampleContent(), nil)
	s.images.EXPECT().Generate(gomock.Any(), gomock.Any()).Return([]string{"https://img/1.png"}, nil)
	s.store.EXPECT().SavePackage(gomock.Any(), gomock.Any()).Return(nil)

	pkg, err := s.engine.Run(context.Background(), in)

	s.Require().NoError(err)
	s.Equal(domain.StatusGenerated, pkg.Status)
}

func (s *EngineSuite) TestRunBatchKeepsFailedPackages() {
	inputs := []domain.InputData{
		{ChannelID: "calm-music", VideoTopic: "first"},
		{ChannelID: "calm-music", VideoTopic: "second"},
	}

	s.directory.EXPECT().Enrich(gomock.Any()).AnyTimes()
	s.directory.EXPECT().Get(gomock.Any()).Return(managedChannel()).AnyTimes()
	s.frames.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", nil).AnyTimes()
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("all providers down"))
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(sampleContent(), nil)
	s.images.EXPECT().Generate(gomock.Any(), gomock.Any()).Return([]string{"https://img/1.png"}, nil)
	s.store.EXPECT().SavePackage(gomock.Any(), gomock.Any()).Return(nil)

	results := s.engine.RunBatch(context.Background(), inputs)

	s.Require().Len(results, 2)
	s.Equal(domain.StatusFailed, results[0].Status)
	s.Equal(domain.StatusGenerated, results[1].Status)
}

func (s *EngineSuite) TestRunChannelBatchForcesChannel() {
	inputs := []domain.InputData{
		{VideoTopic: "first"},
		{VideoTopic: "second"},
	}

	s.directory.EXPECT().Enrich(gomock.Any()).AnyTimes()
	s.directory.EXPECT().Get("calm-music").Return(managedChannel()).Times(2)
	s.frames.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("", nil).Times(2)
	s.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(sampleContent(), nil).Times(2)
	s.images.EXPECT().Generate(gomock.Any(), gomock.Any()).Return([]string{"https://img/1.png"}, nil).Times(2)
	s.store.EXPECT().SavePackage(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	results := s.engine.RunChannelBatch(context.Background(), "calm-music", inputs)

	s.Require().Len(results, 2)
	for _, pkg := range results {
		s.Equal("calm-music", pkg.ChannelID)
	}
}

func (s *EngineSuite) TestListByChannelSorted() {
	a := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music", VideoTopic: "a"})
	b := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music", VideoTopic: "b"})
	s.engine.CreatePackage(&domain.InputData{ChannelID: "other", VideoTopic: "c"})

	listed := s.engine.ListByChannel("calm-music")
	s.Require().Len(listed, 2)
	s.ElementsMatch([]string{a.ID, b.ID}, []string{listed[0].ID, listed[1].ID})
	s.False(listed[1].CreatedAt.Before(listed[0].CreatedAt))

	s.Len(s.engine.ListAll(), 3)
}

func (s *EngineSuite) TestSnapshotsAreIsolated() {
	pkg := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music", VideoTopic: "a"})

	first := s.engine.Get(pkg.ID)
	s.Require().NotNil(first)
	before := len(first.Logs)
	first.Logs = append(first.Logs, "tampered")

	second := s.engine.Get(pkg.ID)
	s.Len(second.Logs, before)
}

func (s *EngineSuite) TestStatistics() {
	p1 := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music", ChannelName: "Calm Music"})
	p2 := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music", ChannelName: "Calm Music"})
	s.engine.CreatePackage(&domain.InputData{ChannelID: "other"})

	s.engine.withPackage(p1, func() { p1.SetStatus(domain.StatusGenerated) })
	s.engine.withPackage(p2, func() { p2.SetStatus(domain.StatusFailed) })

	stats := s.engine.Statistics()
	s.Require().Contains(stats, "calm-music")
	s.Equal(2, stats["calm-music"].Total)
	s.Equal(1, stats["calm-music"].ByStatus[domain.StatusGenerated])
	s.Equal(1, stats["calm-music"].ByStatus[domain.StatusFailed])
	s.Equal("Calm Music", stats["calm-music"].ChannelName)
	s.Equal(1, stats["other"].Total)
}

func (s *EngineSuite) TestSelectImage() {
	pkg := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music"})
	s.store.EXPECT().UpdatePackage(gomock.Any(), gomock.Any()).Return(nil)

	s.Require().NoError(s.engine.SelectImage(context.Background(), pkg.ID, "https://img/2.png"))

	got := s.engine.Get(pkg.ID)
	s.Require().NotNil(got.GeneratedImages)
	s.Equal("https://img/2.png", got.GeneratedImages.SelectedURL)
	s.Equal("https://img/2.png", got.GeneratedImages.ThumbnailURL)
}

func (s *EngineSuite) TestSelectImageUnknownPackage() {
	err := s.engine.SelectImage(context.Background(), "pkg_missing", "https://img/2.png")
	s.Error(err)
	s.Contains(err.Error(), "not found")
}

func (s *EngineSuite) TestSelectImageStoreFailure() {
	pkg := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music"})
	s.store.EXPECT().UpdatePackage(gomock.Any(), gomock.Any()).Return(fmt.Errorf("airtable unavailable"))

	err := s.engine.SelectImage(context.Background(), pkg.ID, "https://img/2.png")
	s.Error(err)
	s.Contains(err.Error(), "update storage")
}

func (s *EngineSuite) TestSweepRemovesOldTerminalPackages() {
	old := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music"})
	fresh := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music"})
	pending := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music"})

	s.engine.withPackage(old, func() {
		old.Status = domain.StatusGenerated
		old.UpdatedAt = time.Now().Add(-2 * time.Hour)
	})
	s.engine.withPackage(fresh, func() {
		fresh.Status = domain.StatusFailed
		fresh.UpdatedAt = time.Now().Add(-30 * time.Minute)
	})
	s.engine.withPackage(pending, func() {
		pending.UpdatedAt = time.Now().Add(-2 * time.Hour)
	})

	removed := s.engine.Sweep(time.Hour)

	s.Equal(1, removed)
	s.Nil(s.engine.Get(old.ID))
	s.NotNil(s.engine.Get(fresh.ID))
	s.NotNil(s.engine.Get(pending.ID))
}

func (s *EngineSuite) TestSweepAgeBoundary() {
	kept := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music"})
	gone := s.engine.CreatePackage(&domain.InputData{ChannelID: "calm-music"})

	// One package just inside the limit, one just past it. Eligibility is a
	// strict comparison, so the inside package must survive the sweep.
	s.engine.withPackage(kept, func() {
		kept.Status = domain.StatusGenerated
		kept.UpdatedAt = time.Now().Add(-time.Hour + time.Minute)
	})
	s.engine.withPackage(gone, func() {
		gone.Status = domain.StatusGenerated
		gone.UpdatedAt = time.Now().Add(-time.Hour - time.Second)
	})

	s.Equal(1, s.engine.Sweep(time.Hour))
	s.NotNil(s.engine.Get(kept.ID))
	s.Nil(s.engine.Get(gone.ID))
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}
