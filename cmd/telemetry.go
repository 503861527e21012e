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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
)

// jobID identifies this invocation in logs.
var jobID string

func otlpEnabled() bool {
	return os.Getenv("OTEL_SERVICE_NAME") != "" && os.Getenv("ENABLE_OTLP_TELEMETRY") == "true"
}

func setupTelemetry(servicename string) (context.Context, func() error, error) {
	jobID = ulid.Make().String()

	// Catch signals to stop the process as gracefully as possible.
	doneCtx, doneCancel := handleSignals(context.Background())

	// Configure slog level based on DEBUG environment variables
	var opts *slog.HandlerOptions
	if os.Getenv("DEBUG") != "" || os.Getenv("LINESORT_DEBUG") != "" {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	handlers := []slog.Handler{slog.NewTextHandler(os.Stdout, opts)}

	var logFH *os.File
	if logFile != "" {
		fh, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			doneCancel()
			return context.Background(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logFH = fh
		handlers = append(handlers, slog.NewTextHandler(fh, opts))
	}

	otlp := otlpEnabled()
	if otlp {
		handlers = append(handlers, otelslog.NewHandler(servicename))
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)).With(
		slog.String("service", servicename),
		slog.String("jobID", jobID),
	))

	closeLog := func() error {
		if logFH == nil {
			return nil
		}
		return logFH.Close()
	}

	f := func() error {
		defer doneCancel()
		return closeLog()
	}

	if !otlp {
		return doneCtx, f, nil
	}

	slog.Info("OpenTelemetry exporting enabled")
	otelShutdown, err := telemetry.SetupOTelSDK(doneCtx)
	if err != nil {
		_ = f()
		return context.Background(), nil, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
	}

	if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(time.Second * 10)); err != nil {
		slog.Warn("failed to start runtime metrics", "error", err.Error())
	}

	if err := host.Start(); err != nil {
		slog.Warn("failed to start host metrics", "error", err.Error())
	}

	f = func() error {
		defer doneCancel()
		slog.Info("Shutting down OpenTelemetry SDK")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs *multierror.Error
		errs = multierror.Append(errs, otelShutdown(ctx), closeLog())
		return errs.ErrorOrNil()
	}

	return doneCtx, f, nil
}

// shutdownTelemetry runs the function returned by setupTelemetry and logs
// its error, for use in a defer.
func shutdownTelemetry(doneFx func() error) {
	if err := doneFx(); err != nil {
		slog.Error("Error shutting down telemetry", slog.Any("error", err))
	}
}
