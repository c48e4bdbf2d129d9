// Package jobstate defines the job status machine shared by the store, the
// worker and the reconciler.
package jobstate

import (
	"fmt"

	"github.com/solarperformanceinsight/spi/pkg/models"
)

// Persisted statuses. "prepared" and "running" are only ever reported.
var persisted = map[string]bool{
	models.JobStatusCreated:  true,
	models.JobStatusQueued:   true,
	models.JobStatusComplete: true,
	models.JobStatusError:    true,
}

var validTransitions = map[string][]string{
	models.JobStatusCreated: {models.JobStatusQueued, models.JobStatusComplete, models.JobStatusError},
	models.JobStatusQueued:  {models.JobStatusComplete, models.JobStatusError},
}

// IsPersisted reports whether s may be written to storage.
func IsPersisted(s string) bool { return persisted[s] }

// CanTransition reports whether a persisted job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a status change and returns a descriptive error when
// it is not allowed.
func Transition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid job status transition: %s -> %s", from, to)
	}
	return nil
}

// Terminal reports whether no further transitions are possible.
func Terminal(s string) bool {
	return s == models.JobStatusComplete || s == models.JobStatusError
}

// InputsMutable reports whether data slots may still be written.
func InputsMutable(s string) bool { return s == models.JobStatusCreated }

// Report derives the client-visible status from the persisted one.
func Report(persistedStatus string, allPresent bool) string {
	if persistedStatus == models.JobStatusCreated && allPresent {
		return models.JobStatusPrepared
	}
	return persistedStatus
}

// Completion reports whether s is an accepted argument to set_job_completion.
func Completion(s string) bool { return Terminal(s) }
