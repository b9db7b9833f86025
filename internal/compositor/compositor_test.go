package compositor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"landcover-pipeline/internal/aoi"
	"landcover-pipeline/internal/common"
	"landcover-pipeline/internal/raster"
)

// fakeSource scripts composite answers by buffer width. Keys are the
// number of days in the queried window (end - start); missing keys
// mean no imagery.
type fakeSource struct {
	// byWidth maps window width in days to the no-data percentage
	byWidth map[int]float64
	// days answers Days queries
	days []DayInfo
	// perDay maps a day (ISO date) to its composite no-data percentage;
	// missing days return ErrNoImagery
	perDay map[string]float64

	queried []string
}

func (f *fakeSource) width(start, end time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}

func (f *fakeSource) Days(ctx context.Context, area *aoi.AOI, start, end time.Time) ([]DayInfo, error) {
	return f.days, nil
}

func (f *fakeSource) Composite(ctx context.Context, area *aoi.AOI, start, end time.Time) (*Composite, error) {
	f.queried = append(f.queried, fmt.Sprintf("%s..%s", common.FormatISO8601(start), common.FormatISO8601(end)))

	if common.SameDay(start, end) && f.perDay != nil {
		pct, ok := f.perDay[common.FormatISO8601(start)]
		if !ok {
			return nil, fmt.Errorf("%w for day", ErrNoImagery)
		}
		return &Composite{Grid: testGrid(), NoDataPercent: pct, ImageCount: 1}, nil
	}

	pct, ok := f.byWidth[f.width(start, end)]
	if !ok {
		return nil, fmt.Errorf("%w for window", ErrNoImagery)
	}
	return &Composite{Grid: testGrid(), NoDataPercent: pct, ImageCount: 3}, nil
}

func testGrid() *raster.Grid {
	return raster.NewGrid(2, 2, common.AllBands(), [6]float64{10, 0, 0, 0, -10, 20}, "EPSG:32633")
}

func testArea(t *testing.T) *aoi.AOI {
	t.Helper()
	area, err := aoi.Parse([]byte(`{"type":"Polygon","coordinates":[[[15,45],[15.1,45],[15.1,45.1],[15,45.1],[15,45]]]}`))
	if err != nil {
		t.Fatalf("Parse AOI: %v", err)
	}
	return area
}

func target(t *testing.T) time.Time {
	t.Helper()
	ts, err := common.ParseISO8601("2021-06-07")
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestComposeAcceptsFirstWindowBelowThreshold(t *testing.T) {
	src := &fakeSource{byWidth: map[int]float64{20: 5}}
	c, err := New(Options{Source: src, InitialBuffer: 10, Threshold: 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Compose(context.Background(), testArea(t), target(t), ModeRange)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
	if res.Window.BufferDays != 10 {
		t.Errorf("BufferDays = %d, want 10", res.Window.BufferDays)
	}
	if res.Range == nil || res.Range.NoDataPercent != 5 {
		t.Errorf("Range = %+v", res.Range)
	}
	if res.BestEffort {
		t.Error("BestEffort should be false for a threshold acceptance")
	}
}

func TestComposeWidensUntilAccepted(t *testing.T) {
	// 10-day buffer: 60% no-data; 25: 30%; 40: 10% (accepted)
	src := &fakeSource{byWidth: map[int]float64{20: 60, 50: 30, 80: 10}}
	c, err := New(Options{Source: src, InitialBuffer: 10, Threshold: 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Compose(context.Background(), testArea(t), target(t), ModeRange)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", res.Iterations)
	}
	if res.Window.BufferDays != 40 {
		t.Errorf("BufferDays = %d, want 40 (10 + 2*15)", res.Window.BufferDays)
	}
	want := []string{
		"2021-05-28..2021-06-17",
		"2021-05-13..2021-07-02",
		"2021-04-28..2021-07-17",
	}
	if len(src.queried) != len(want) {
		t.Fatalf("queried %v, want %v", src.queried, want)
	}
	for i := range want {
		if src.queried[i] != want[i] {
			t.Errorf("query %d = %s, want %s", i, src.queried[i], want[i])
		}
	}
}

func TestComposeThresholdIsStrict(t *testing.T) {
	// Exactly at the threshold must not be accepted
	src := &fakeSource{byWidth: map[int]float64{20: 20, 50: 19.9}}
	c, err := New(Options{Source: src, InitialBuffer: 10, Threshold: 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Compose(context.Background(), testArea(t), target(t), ModeRange)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2 (20%% == threshold must widen)", res.Iterations)
	}
	if res.Range.NoDataPercent != 19.9 {
		t.Errorf("NoDataPercent = %v, want 19.9", res.Range.NoDataPercent)
	}
}

func TestComposeNoImageryAnywhere(t *testing.T) {
	src := &fakeSource{}
	c, err := New(Options{Source: src, InitialBuffer: 10, Threshold: 20, MaxBuffer: 40})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Compose(context.Background(), testArea(t), target(t), ModeRange)
	var noImagery *NoImageryError
	if !errors.As(err, &noImagery) {
		t.Fatalf("error = %v, want NoImageryError", err)
	}
	if !errors.Is(err, ErrNoImagery) {
		t.Error("NoImageryError should unwrap to ErrNoImagery")
	}
	if noImagery.MaxBufferDays != 40 {
		t.Errorf("MaxBufferDays = %d, want 40", noImagery.MaxBufferDays)
	}
}

func TestComposeThresholdNeverReached(t *testing.T) {
	src := &fakeSource{byWidth: map[int]float64{20: 80, 50: 60, 80: 45}}
	c, err := New(Options{Source: src, InitialBuffer: 10, Threshold: 20, MaxBuffer: 40})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Compose(context.Background(), testArea(t), target(t), ModeRange)
	var thresholdErr *ThresholdError
	if !errors.As(err, &thresholdErr) {
		t.Fatalf("error = %v, want ThresholdError", err)
	}
	if thresholdErr.Achieved != 45 {
		t.Errorf("Achieved = %v, want 45 (best seen)", thresholdErr.Achieved)
	}
	if thresholdErr.Best == nil || thresholdErr.Best.NoDataPercent != 45 {
		t.Errorf("Best = %+v", thresholdErr.Best)
	}
	if errors.Is(err, ErrNoImagery) {
		t.Error("ThresholdError must be distinct from ErrNoImagery")
	}
}

func TestComposeBestEffort(t *testing.T) {
	src := &fakeSource{byWidth: map[int]float64{20: 80, 50: 45, 80: 60}}
	c, err := New(Options{Source: src, InitialBuffer: 10, Threshold: 20, MaxBuffer: 40, BestEffort: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Compose(context.Background(), testArea(t), target(t), ModeRange)
	if err != nil {
		t.Fatalf("Compose with best-effort: %v", err)
	}
	if !res.BestEffort {
		t.Error("result should be flagged best-effort")
	}
	// The best composite is the 25-day buffer one, not the last
	if res.Range.NoDataPercent != 45 {
		t.Errorf("NoDataPercent = %v, want 45", res.Range.NoDataPercent)
	}
	if res.Window.BufferDays != 25 {
		t.Errorf("BufferDays = %d, want 25 (window of the best composite)", res.Window.BufferDays)
	}
}

func TestComposeMaxIterations(t *testing.T) {
	src := &fakeSource{byWidth: map[int]float64{20: 80, 50: 80, 80: 80, 110: 80}}
	c, err := New(Options{Source: src, InitialBuffer: 10, Threshold: 20, MaxBuffer: 180, MaxIterations: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Compose(context.Background(), testArea(t), target(t), ModeRange)
	var thresholdErr *ThresholdError
	if !errors.As(err, &thresholdErr) {
		t.Fatalf("error = %v, want ThresholdError", err)
	}
	if thresholdErr.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", thresholdErr.Iterations)
	}
	if len(src.queried) != 2 {
		t.Errorf("queried %d windows, want 2", len(src.queried))
	}
}

func TestDailyComposites(t *testing.T) {
	day := func(s string) time.Time {
		ts, err := common.ParseISO8601(s)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}
	src := &fakeSource{
		days: []DayInfo{
			{Day: day("2021-06-06"), ImageCount: 2, HasValidPixels: true},
			{Day: day("2021-06-07"), ImageCount: 1, HasValidPixels: false},
			{Day: day("2021-06-08"), ImageCount: 1, HasValidPixels: true},
		},
		perDay: map[string]float64{
			"2021-06-06": 10,
			"2021-06-08": 100,
		},
	}
	c, err := New(Options{Source: src, InitialBuffer: 1, Threshold: 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	daily, err := c.DailyComposites(context.Background(), testArea(t), day("2021-06-06"), day("2021-06-08"))
	if err != nil {
		t.Fatalf("DailyComposites: %v", err)
	}
	// 06-07 has no valid pixels and is dropped; 06-08 is fully masked
	// but its footprints overlap, so it stays
	if len(daily) != 2 {
		t.Fatalf("got %d daily composites, want 2", len(daily))
	}
	if !common.SameDay(daily[0].Day, day("2021-06-06")) || daily[0].FullyMasked {
		t.Errorf("first day = %+v", daily[0])
	}
	if !common.SameDay(daily[1].Day, day("2021-06-08")) || !daily[1].FullyMasked {
		t.Errorf("second day = %+v (fully masked days are kept and flagged)", daily[1])
	}
}

func TestComposeDailyMode(t *testing.T) {
	day := func(s string) time.Time {
		ts, _ := common.ParseISO8601(s)
		return ts
	}
	src := &fakeSource{
		byWidth: map[int]float64{2: 5},
		days: []DayInfo{
			{Day: day("2021-06-06"), ImageCount: 1, HasValidPixels: true},
			{Day: day("2021-06-08"), ImageCount: 1, HasValidPixels: true},
		},
		perDay: map[string]float64{
			"2021-06-06": 0,
			"2021-06-08": 15,
		},
	}
	c, err := New(Options{Source: src, InitialBuffer: 1, Threshold: 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Compose(context.Background(), testArea(t), target(t), ModeDaily)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.Mode != ModeDaily || res.Range != nil {
		t.Errorf("result shape wrong: %+v", res)
	}
	if len(res.Daily) != 2 {
		t.Fatalf("got %d daily composites, want 2", len(res.Daily))
	}
}

func TestNewValidation(t *testing.T) {
	src := &fakeSource{}
	cases := []struct {
		name string
		opts Options
	}{
		{"nil source", Options{InitialBuffer: 10, Threshold: 20}},
		{"negative buffer", Options{Source: src, InitialBuffer: -1, Threshold: 20}},
		{"negative threshold", Options{Source: src, InitialBuffer: 10, Threshold: -1}},
		{"threshold over 100", Options{Source: src, InitialBuffer: 10, Threshold: 101}},
		{"cap below initial", Options{Source: src, InitialBuffer: 50, Threshold: 20, MaxBuffer: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.opts); err == nil {
				t.Error("expected constructor error")
			}
		})
	}
}

// A config that gives only an explicit start and end date leaves the
// buffer unset. Daily composites over that window must still work;
// only the adaptive loop demands a positive buffer.
func TestExplicitWindowNeedsNoBuffer(t *testing.T) {
	day := func(s string) time.Time {
		ts, _ := common.ParseISO8601(s)
		return ts
	}
	src := &fakeSource{
		days: []DayInfo{
			{Day: day("2021-06-06"), ImageCount: 1, HasValidPixels: true},
		},
		perDay: map[string]float64{"2021-06-06": 5},
	}
	c, err := New(Options{Source: src, Threshold: 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	daily, err := c.DailyComposites(context.Background(), testArea(t), day("2021-06-06"), day("2021-06-08"))
	if err != nil {
		t.Fatalf("DailyComposites: %v", err)
	}
	if len(daily) != 1 {
		t.Fatalf("got %d daily composites, want 1", len(daily))
	}

	if _, err := c.Compose(context.Background(), testArea(t), target(t), ModeRange); err == nil {
		t.Error("Compose without a buffer should fail")
	}
}

func TestDailyCompositesEmptyWindowError(t *testing.T) {
	src := &fakeSource{}
	c, err := New(Options{Source: src, Threshold: 20})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.DailyComposites(context.Background(), testArea(t), target(t), target(t))
	if !errors.Is(err, ErrNoImagery) {
		t.Fatalf("err = %v, want ErrNoImagery", err)
	}
	if got := err.Error(); got != "no imagery found in the requested window" {
		t.Errorf("message = %q", got)
	}
}

func TestDateWindow(t *testing.T) {
	w := DateWindow{Target: target(t), BufferDays: 10}
	if got := common.FormatISO8601(w.Start()); got != "2021-05-28" {
		t.Errorf("Start = %s", got)
	}
	if got := common.FormatISO8601(w.End()); got != "2021-06-17" {
		t.Errorf("End = %s", got)
	}
	w2 := w.Widen(15)
	if w2.BufferDays != 25 {
		t.Errorf("Widen: BufferDays = %d, want 25", w2.BufferDays)
	}
	if w.BufferDays != 10 {
		t.Error("Widen must not mutate the receiver")
	}
}
