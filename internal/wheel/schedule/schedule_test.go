package schedule

import (
	"context"
	"time"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

type fakeClock struct {
	now    time.Time
	slept  []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	c.slept = append(c.slept, d)
}

type fakeSector struct {
	summary        ports.SectorSummary
	hasSector      bool
	rotateCalls    int
	savedSummaries []ports.SectorSummary
}

func (f *fakeSector) CurrentSector(ctx context.Context) (ports.SectorSummary, bool, error) {
	return f.summary, f.hasSector, nil
}
func (f *fakeSector) RotateSector(ctx context.Context) error {
	f.rotateCalls++
	return nil
}
func (f *fakeSector) SaveSectorState(ctx context.Context, summary ports.SectorSummary) error {
	f.savedSummaries = append(f.savedSummaries, summary)
	return nil
}

type fakeIndex struct {
	structuralChange bool
}

func (f *fakeIndex) Modules(ctx context.Context) ([]string, error)                 { return nil, nil }
func (f *fakeIndex) DependencyEdges(ctx context.Context) (map[string][]string, error) { return nil, nil }
func (f *fakeIndex) ReverseEdges(ctx context.Context) (map[string][]string, error)    { return nil, nil }
func (f *fakeIndex) DeadExports(ctx context.Context) ([]string, error)             { return nil, nil }
func (f *fakeIndex) StructuralIssues(ctx context.Context) ([]string, error)        { return nil, nil }
func (f *fakeIndex) ASTFindings(ctx context.Context) ([]string, error)             { return nil, nil }
func (f *fakeIndex) GraphMetrics(ctx context.Context) (ports.GraphMetrics, error)  { return ports.GraphMetrics{}, nil }
func (f *fakeIndex) HasStructuralChanges(ctx context.Context) (bool, error)        { return f.structuralChange, nil }
