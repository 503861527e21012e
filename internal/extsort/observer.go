// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package extsort

import (
	"log/slog"

	"github.com/cardinalhq/linesort/internal/membudget"
	"github.com/cardinalhq/linesort/internal/workspace"
)

// State is a step of a sort job.
type State int

const (
	StateIdle State = iota
	StateDeciding
	StateDirectSort
	StateSplitting
	StateMerging
	StateCleaningUp
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeciding:
		return "deciding"
	case StateDirectSort:
		return "direct-sort"
	case StateSplitting:
		return "splitting"
	case StateMerging:
		return "merging"
	case StateCleaningUp:
		return "cleaning-up"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Observer receives progress events from a sort job. Calls for one job are
// never made concurrently, even when runs are written in parallel.
type Observer interface {
	StateChanged(from, to State)
	WorkspacePrepared(report workspace.Report)
	LowDiskSpace(path string, free uint64, need int64)
	RunWritten(run Run)
	MergeCompleted(runs int, records int64)
	SortFailed(in State, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) StateChanged(State, State)          {}
func (NopObserver) WorkspacePrepared(workspace.Report) {}
func (NopObserver) LowDiskSpace(string, uint64, int64) {}
func (NopObserver) RunWritten(Run)                     {}
func (NopObserver) MergeCompleted(int, int64)          {}
func (NopObserver) SortFailed(State, error)            {}

// MultiObserver forwards every event to each observer in order.
type MultiObserver []Observer

var _ Observer = MultiObserver(nil)

func (m MultiObserver) StateChanged(from, to State) {
	for _, o := range m {
		o.StateChanged(from, to)
	}
}

func (m MultiObserver) WorkspacePrepared(report workspace.Report) {
	for _, o := range m {
		o.WorkspacePrepared(report)
	}
}

func (m MultiObserver) LowDiskSpace(path string, free uint64, need int64) {
	for _, o := range m {
		o.LowDiskSpace(path, free, need)
	}
}

func (m MultiObserver) RunWritten(run Run) {
	for _, o := range m {
		o.RunWritten(run)
	}
}

func (m MultiObserver) MergeCompleted(runs int, records int64) {
	for _, o := range m {
		o.MergeCompleted(runs, records)
	}
}

func (m MultiObserver) SortFailed(in State, err error) {
	for _, o := range m {
		o.SortFailed(in, err)
	}
}

// LogObserver writes job progress to a slog.Logger. Phase boundaries are
// logged at info level, individual runs and removals at debug level.
type LogObserver struct {
	logger *slog.Logger
}

var _ Observer = (*LogObserver)(nil)

// NewLogObserver returns an observer logging to logger, or to the default
// logger when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) StateChanged(from, to State) {
	switch to {
	case StateDeciding:
		o.logger.Debug("Checking input size against memory limit")
	case StateDirectSort:
		o.logger.Info("In-memory sorting is possible, starting direct sort")
	case StateSplitting:
		o.logger.Info("Starting external sort, splitting input into sorted runs")
	case StateMerging:
		o.logger.Info("Merging runs")
	case StateCleaningUp:
		o.logger.Info("Cleaning work directory")
	case StateDone:
		o.logger.Info("Input is sorted")
	default:
		o.logger.Debug("Sort state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	}
}

func (o *LogObserver) WorkspacePrepared(report workspace.Report) {
	if report.Created {
		o.logger.Info("Created new empty work directory", slog.String("path", report.Path))
		return
	}
	o.logger.Info("Work directory exists, emptied it",
		slog.String("path", report.Path),
		slog.Int("removed", len(report.Removed)))
	for _, p := range report.Removed {
		o.logger.Debug("Removed stale workspace entry", slog.String("path", p))
	}
}

func (o *LogObserver) LowDiskSpace(path string, free uint64, need int64) {
	o.logger.Warn("Work directory may not have room for all runs",
		slog.String("path", path),
		slog.String("free", membudget.Format(int64(free))),
		slog.String("need", membudget.Format(need)))
}

func (o *LogObserver) RunWritten(run Run) {
	o.logger.Debug("Wrote run",
		slog.Int("run", run.Seq),
		slog.String("path", run.Path),
		slog.Int64("records", run.Records),
		slog.Int64("bytes", run.Bytes))
}

func (o *LogObserver) MergeCompleted(runs int, records int64) {
	o.logger.Info("Merged runs", slog.Int("runs", runs), slog.Int64("records", records))
}

func (o *LogObserver) SortFailed(in State, err error) {
	o.logger.Error("Sort failed", slog.String("state", in.String()), slog.Any("error", err))
}
