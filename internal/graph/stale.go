package graph

import (
	"errors"
	"os"
	"time"
)

// ErrNoLastModifiedTime is wrapped by StaleError on platforms where a
// file's modification time cannot be read at all. Go's os.FileInfo
// always carries a ModTime, so in practice this module never raises it
// — it exists so a custom os.FileInfo-returning filesystem can still
// report the condition the evaluator's decision table accounts for.
var ErrNoLastModifiedTime = errors.New("no last-modified time available")

// StaleTask is one entry of (*TaskList).OutOfDate's result.
type StaleTask struct {
	Handle TaskHandle
	Task   *Task
}

// OutOfDate walks the TaskList in its stored (topological) order and
// decides which tasks need re-running, per the modification-time
// decision table of SPEC_FULL.md §4.7:
//
//	target time | upstream time | action
//	absent      | any           | stale, recorded time = now
//	present      | absent        | fresh, recorded time = target time
//	present      | <= target     | fresh, recorded time = target time
//	present      | > target      | stale, recorded time = now
//
// A task's recorded time is itself visible to any task downstream of it
// as its "upstream time", so staleness propagates forward through the
// graph without re-walking it — SPEC_FULL.md §9 design note 2.
func (l *TaskList) OutOfDate() ([]StaleTask, error) {
	now := time.Now()
	recorded := make([]time.Time, len(l.tasks))

	var stale []StaleTask
	for i := range l.tasks {
		task := &l.tasks[i]

		var upstreamTime *time.Time
		for _, p := range task.Upstream {
			t, skip, err := prerequisiteTime(i, p, recorded)
			if err != nil {
				return nil, err
			}
			if skip {
				continue
			}
			if upstreamTime == nil || t.After(*upstreamTime) {
				upstreamTime = &t
			}
		}

		targetTime, present, err := targetsTime(i, task.Targets)
		if err != nil {
			return nil, err
		}

		var isStale bool
		switch {
		case !present:
			isStale = true
			recorded[i] = now
		case upstreamTime == nil || !upstreamTime.After(targetTime):
			recorded[i] = targetTime
		default:
			isStale = true
			recorded[i] = now
		}

		if isStale {
			stale = append(stale, StaleTask{Handle: TaskHandle(i), Task: task})
		}
	}

	return stale, nil
}

// prerequisiteTime resolves one upstream Prerequisite to a time, or
// (zero, true, nil) when it should not contribute to the comparison (an
// absent optional file). A Handle prerequisite always contributes its
// producer's recorded time.
func prerequisiteTime(taskIndex int, p Prerequisite, recorded []time.Time) (t time.Time, skip bool, err error) {
	switch v := p.(type) {
	case HandlePrerequisite:
		return recorded[v.Handle], false, nil
	case NamedPrerequisite:
		info, statErr := os.Stat(v.Path)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				if v.Optional {
					return time.Time{}, true, nil
				}
				return time.Time{}, false, &StaleError{TaskIndex: taskIndex, Path: v.Path, Err: ErrPrerequisiteMissing}
			}
			return time.Time{}, false, &StaleError{TaskIndex: taskIndex, Path: v.Path, Err: statErr}
		}
		return info.ModTime(), false, nil
	default:
		panic("graph: unknown Prerequisite variant")
	}
}

// targetsTime reports the latest modification time across every target
// a task produces. present is false when any target is missing, which
// per the decision table marks the task itself unconditionally stale.
func targetsTime(taskIndex int, targets []string) (latest time.Time, present bool, err error) {
	if len(targets) == 0 {
		return time.Time{}, false, nil
	}
	present = true
	for _, path := range targets {
		info, statErr := os.Stat(path)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				return time.Time{}, false, nil
			}
			return time.Time{}, false, &StaleError{TaskIndex: taskIndex, Path: path, Err: statErr}
		}
		if mt := info.ModTime(); latest.IsZero() || mt.After(latest) {
			latest = mt
		}
	}
	return latest, present, nil
}
