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
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	recordsReadCounter   otelmetric.Int64Counter
	runsWrittenCounter   otelmetric.Int64Counter
	recordsMergedCounter otelmetric.Int64Counter
	phaseDuration        otelmetric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/linesort/internal/extsort")

	var err error
	recordsReadCounter, err = meter.Int64Counter(
		"linesort.records.read",
		otelmetric.WithDescription("Number of records read from sort inputs"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records.read counter: %w", err))
	}

	runsWrittenCounter, err = meter.Int64Counter(
		"linesort.runs.written",
		otelmetric.WithDescription("Number of sorted run files written to a workspace"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create runs.written counter: %w", err))
	}

	recordsMergedCounter, err = meter.Int64Counter(
		"linesort.records.merged",
		otelmetric.WithDescription("Number of records emitted by the k-way merge"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records.merged counter: %w", err))
	}

	phaseDuration, err = meter.Float64Histogram(
		"linesort.phase.duration",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Time spent in each sort phase"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create phase.duration histogram: %w", err))
	}
}
