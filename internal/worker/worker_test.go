package worker_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/worker"
)

// fakeEnrichment hands out queued jobs once and records how ProcessJob
// overlaps.
type fakeEnrichment struct {
	mu          sync.Mutex
	queue       []model.EnrichmentJob
	processed   []model.EnrichmentJob
	running     int
	maxRunning  int
	perStream   map[string]int
	overlapSeen bool
	delay       time.Duration
}

func newFakeEnrichment(delay time.Duration, jobs ...model.EnrichmentJob) *fakeEnrichment {
	return &fakeEnrichment{
		queue:     jobs,
		perStream: make(map[string]int),
		delay:     delay,
	}
}

func (f *fakeEnrichment) EnqueueNode(_ context.Context, streamID string, nodeID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, model.EnrichmentJob{StreamID: streamID, NodeID: nodeID})
	return nil
}

func (f *fakeEnrichment) DueJobs(_ context.Context, limit int) ([]model.EnrichmentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(limit, len(f.queue))
	due := f.queue[:n]
	f.queue = f.queue[n:]
	return due, nil
}

func (f *fakeEnrichment) ProcessJob(_ context.Context, job model.EnrichmentJob) error {
	f.mu.Lock()
	f.running++
	f.perStream[job.StreamID]++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	if f.perStream[job.StreamID] > 1 {
		f.overlapSeen = true
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.running--
	f.perStream[job.StreamID]--
	f.processed = append(f.processed, job)
	f.mu.Unlock()
	return nil
}

func (f *fakeEnrichment) AcceptHeuristic(context.Context, string, int) (*model.Node, error) {
	return nil, nil
}

func (f *fakeEnrichment) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

func job(streamID string, nodeID int) model.EnrichmentJob {
	return model.EnrichmentJob{StreamID: streamID, NodeID: nodeID, Status: model.JobStatusQueued}
}

var _ = Describe("Worker", func() {
	run := func(w *worker.Worker) func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = w.Run(context.Background())
		}()
		return func() {
			w.Stop()
			Eventually(done).Should(BeClosed())
		}
	}

	It("drains due jobs across poll ticks", func() {
		enrichment := newFakeEnrichment(0,
			job("s1", 1), job("s2", 1), job("s3", 1),
		)
		w := worker.New(enrichment, nil, worker.Config{
			PollInterval: 5 * time.Millisecond,
			Concurrency:  2,
		})
		stop := run(w)
		defer stop()

		Eventually(enrichment.processedCount).Should(Equal(3))
	})

	It("never runs more jobs than the concurrency limit", func() {
		enrichment := newFakeEnrichment(30*time.Millisecond,
			job("s1", 1), job("s2", 1), job("s3", 1), job("s4", 1), job("s5", 1),
		)
		w := worker.New(enrichment, nil, worker.Config{
			PollInterval: 5 * time.Millisecond,
			Concurrency:  2,
		})
		stop := run(w)
		defer stop()

		Eventually(enrichment.processedCount, time.Second).Should(Equal(5))
		Expect(enrichment.maxRunning).To(BeNumerically("<=", 2))
	})

	It("keeps jobs of the same stream from overlapping", func() {
		enrichment := newFakeEnrichment(20*time.Millisecond,
			job("s1", 1), job("s1", 2), job("s1", 3),
		)
		w := worker.New(enrichment, nil, worker.Config{
			PollInterval: 5 * time.Millisecond,
			Concurrency:  2,
		})
		stop := run(w)
		defer stop()

		Eventually(enrichment.processedCount, time.Second).Should(Equal(3))
		Expect(enrichment.overlapSeen).To(BeFalse())
	})

	It("wakes up ahead of the poll interval", func() {
		enrichment := newFakeEnrichment(0)
		wake := make(chan struct{}, 1)
		w := worker.New(enrichment, wake, worker.Config{
			PollInterval: time.Hour,
			Concurrency:  2,
		})
		stop := run(w)
		defer stop()

		Expect(enrichment.EnqueueNode(context.Background(), "s1", 1)).To(Succeed())
		wake <- struct{}{}

		Eventually(enrichment.processedCount).Should(Equal(1))
	})

	It("finishes in-flight jobs before Stop returns", func() {
		enrichment := newFakeEnrichment(40*time.Millisecond, job("s1", 1))
		w := worker.New(enrichment, nil, worker.Config{
			PollInterval: 5 * time.Millisecond,
			Concurrency:  1,
		})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = w.Run(context.Background())
		}()

		Eventually(func() int {
			enrichment.mu.Lock()
			defer enrichment.mu.Unlock()
			return enrichment.running
		}).Should(Equal(1))

		w.Stop()
		Expect(enrichment.processedCount()).To(Equal(1))
		Eventually(done).Should(BeClosed())
	})
})
