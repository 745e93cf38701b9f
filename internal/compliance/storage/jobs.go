// Package storage keeps asynchronous analysis jobs in memory until they expire.
package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
)

// JobStore holds analysis jobs for polling. Jobs are removed once they are
// older than the TTL. Callers always receive copies.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.AnalysisJob
	ttl  time.Duration
	now  func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewJobStore creates a store and starts its cleanup loop. Call Stop to end it.
func NewJobStore(ttl time.Duration) *JobStore {
	s := &JobStore{
		jobs: make(map[string]*domain.AnalysisJob),
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// NewJobID returns a random job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// Create stores a new pending job and returns a copy of it.
func (s *JobStore) Create(buildingID, assetID string) domain.AnalysisJob {
	job := &domain.AnalysisJob{
		JobID:      NewJobID(),
		Status:     domain.StatusPending,
		BuildingID: buildingID,
		AssetID:    assetID,
		CreatedAt:  s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return *job
}

// Get returns a copy of the job, or false when it is unknown or expired.
func (s *JobStore) Get(jobID string) (domain.AnalysisJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.AnalysisJob{}, false
	}
	return *job, true
}

// Update applies fn to the stored job under the write lock. It reports
// whether the job existed.
func (s *JobStore) Update(jobID string, fn func(*domain.AnalysisJob)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if ok {
		fn(job)
	}
	return ok
}

// Complete marks a job completed with its result.
func (s *JobStore) Complete(jobID string, result *domain.Analysis, applied *domain.PatchOutcome) bool {
	return s.Update(jobID, func(j *domain.AnalysisJob) {
		done := s.now()
		j.Status = domain.StatusCompleted
		j.Result = result
		j.Applied = applied
		j.CompletedAt = &done
	})
}

// Fail marks a job failed.
func (s *JobStore) Fail(jobID string, err error) bool {
	return s.Update(jobID, func(j *domain.AnalysisJob) {
		done := s.now()
		j.Status = domain.StatusFailed
		j.Error = err.Error()
		j.CompletedAt = &done
	})
}

// Delete removes a job.
func (s *JobStore) Delete(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (s *JobStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// minCleanupInterval bounds the sweep rate for very short TTLs.
const minCleanupInterval = time.Second

func cleanupInterval(ttl time.Duration) time.Duration {
	return max(ttl/2, minCleanupInterval)
}

func (s *JobStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval(s.ttl))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

func (s *JobStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
