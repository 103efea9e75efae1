// Package scheduler triggers named jobs on cron or interval schedules.
//
// Each run gets its own context bounded by the schedule's timeout, so a
// hung run is cancelled before the next trigger. A trigger that fires
// while the previous run of the same schedule is still in flight is
// skipped. Panics inside jobs are recovered and logged.
package scheduler
