package compositor

import (
	"context"
	"time"

	"landcover-pipeline/internal/aoi"
	"landcover-pipeline/internal/common"
	"landcover-pipeline/internal/raster"
)

// DateWindow derives an inclusive [target - buffer, target + buffer]
// date range. It is only ever mutated by widening the buffer.
type DateWindow struct {
	Target     time.Time
	BufferDays int
}

// Start returns the first day of the window
func (w DateWindow) Start() time.Time {
	return common.TruncateToDay(w.Target).AddDate(0, 0, -w.BufferDays)
}

// End returns the last day of the window
func (w DateWindow) End() time.Time {
	return common.TruncateToDay(w.Target).AddDate(0, 0, w.BufferDays)
}

// Widen returns a window with the buffer increased by step days
func (w DateWindow) Widen(step int) DateWindow {
	return DateWindow{Target: w.Target, BufferDays: w.BufferDays + step}
}

func (w DateWindow) String() string {
	return common.FormatISO8601(w.Start()) + ".." + common.FormatISO8601(w.End())
}

// Mode selects the aggregation variant
type Mode int

const (
	// ModeRange produces one composite over the whole accepted window
	ModeRange Mode = iota
	// ModeDaily produces one composite per acquisition day inside the
	// accepted window
	ModeDaily
)

func (m Mode) String() string {
	if m == ModeDaily {
		return "daily"
	}
	return "range"
}

// DayInfo describes one distinct acquisition day inside a window
type DayInfo struct {
	Day        time.Time
	ImageCount int
	// HasValidPixels is true when at least one raw image footprint that
	// day contributes unmasked pixels over the AOI. Days without it are
	// excluded from daily output.
	HasValidPixels bool
}

// Composite is a fresh aggregate produced for one window or one day
type Composite struct {
	Grid          *raster.Grid
	NoDataPercent float64
	Window        DateWindow
	ImageCount    int
}

// DailyComposite pairs a day with its composite. FullyMasked marks the
// documented quirk: the day's raw footprints overlapped the AOI, yet
// the finished composite carries no real data there. Such days are
// still written.
type DailyComposite struct {
	Day         time.Time
	Composite   *Composite
	FullyMasked bool
}

// Result is the outcome of an adaptive run
type Result struct {
	Mode   Mode
	Window DateWindow

	// Range is set in ModeRange
	Range *Composite
	// Daily is set in ModeDaily, ordered by day
	Daily []*DailyComposite

	// BestEffort is true when the expansion cap was hit and the
	// best-so-far composite was accepted under the configured policy.
	// Only then may Range carry a no-data percentage at or above the
	// threshold.
	BestEffort bool
	Iterations int
}

// Source is the external query collaborator: it answers date-range +
// geometry queries against the land-cover collection. Implementations
// must return ErrNoImagery (possibly wrapped) from Composite when the
// collection is empty for the window, never an empty grid.
type Source interface {
	// Days lists the distinct acquisition days intersecting the AOI
	// within [start, end], ordered ascending
	Days(ctx context.Context, area *aoi.AOI, start, end time.Time) ([]DayInfo, error)

	// Composite aggregates all imagery in [start, end] over the AOI:
	// mean for the probability bands, mode with lowest-value tie-break
	// for the label band, plus the no-data percentage over the AOI
	Composite(ctx context.Context, area *aoi.AOI, start, end time.Time) (*Composite, error)
}
