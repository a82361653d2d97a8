// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package services

import (
	"context"
)

// JobRunner is the scheduler's lifecycle surface.
type JobRunner interface {
	Serve(ctx context.Context) error
}

// SchedulerService wraps the job scheduler as a supervised service. The
// scheduler's Serve already honors context cancellation, so the wrapper
// only supplies the suture identity.
type SchedulerService struct {
	runner JobRunner
	name   string
}

// NewSchedulerService wraps a job scheduler.
func NewSchedulerService(runner JobRunner) *SchedulerService {
	return &SchedulerService{runner: runner, name: "job-scheduler"}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	return s.runner.Serve(ctx)
}

// String identifies the service in supervision logs.
func (s *SchedulerService) String() string {
	return s.name
}
