package service_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mindgraph.app/grove/internal/ai"
	"mindgraph.app/grove/internal/lock"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/service"
	"mindgraph.app/grove/internal/store"
)

var _ = Describe("EnrichmentService", func() {
	var (
		ctx      context.Context
		streams  *mockStreamStore
		nodes    *mockNodeStore
		jobs     *mockJobStore
		provider *mockProvider
		notifier *mockNotifier
		svc      service.EnrichmentService

		pendingNode model.Node
		tree        []model.Node

		appliedNodes []*model.Node
		appliedMeta  []store.NodeAIMetadata
		retries      []time.Time
		retryErrors  []string
		failedJobs   []string
		completed    int
		markedFailed []*string
	)

	job := func(attemptCount int) model.EnrichmentJob {
		return model.EnrichmentJob{
			StreamID:      "s1",
			NodeID:        2,
			Status:        model.JobStatusQueued,
			AttemptCount:  attemptCount,
			NextAttemptAt: time.Now().UTC(),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		appliedNodes = nil
		appliedMeta = nil
		retries = nil
		retryErrors = nil
		failedJobs = nil
		completed = 0
		markedFailed = nil

		pendingNode = treeNode(2, intRef(1), model.BranchTypeMain, "Because focus improves with fewer meetings")
		pendingNode.AIStatus = model.AIStatusPending

		streams = &mockStreamStore{
			getFn: func(context.Context, string) (*model.Stream, error) {
				return activeStream("s1"), nil
			},
		}
		nodes = &mockNodeStore{
			getFn: func(_ context.Context, _ string, nodeID int) (*model.Node, error) {
				for i := range tree {
					if tree[i].NodeID == nodeID {
						node := tree[i]
						return &node, nil
					}
				}
				return nil, store.ErrNotFound
			},
			listByStreamFn: func(context.Context, string) ([]model.Node, error) {
				return tree, nil
			},
			applyAIResultFn: func(_ context.Context, node *model.Node) error {
				appliedNodes = append(appliedNodes, node)
				return nil
			},
			updateAIMetadataFn: func(_ context.Context, _ string, _ int, meta store.NodeAIMetadata) error {
				appliedMeta = append(appliedMeta, meta)
				return nil
			},
			markAIFailedFn: func(_ context.Context, _ string, _ int, rationale *string) error {
				markedFailed = append(markedFailed, rationale)
				return nil
			},
		}
		jobs = &mockJobStore{
			scheduleRetryFn: func(_ context.Context, _ string, _ int, nextAttemptAt time.Time, lastError string) error {
				retries = append(retries, nextAttemptAt)
				retryErrors = append(retryErrors, lastError)
				return nil
			},
			failFn: func(_ context.Context, _ string, _ int, _ time.Time, lastError string) error {
				failedJobs = append(failedJobs, lastError)
				return nil
			},
			completeFn: func(context.Context, string, int, time.Time) error {
				completed++
				return nil
			},
		}
		provider = &mockProvider{modelName: "test-model"}
		notifier = &mockNotifier{}
		svc = service.NewEnrichmentService(streams, nodes, jobs, provider, lock.NewKeyLock(), notifier)

		tree = []model.Node{
			treeNode(1, nil, model.BranchTypeMain, "We should adopt a four-day week"),
			pendingNode,
		}
	})

	Describe("EnqueueNode", func() {
		It("queues the job at attempt zero and wakes the worker", func() {
			var queued *model.EnrichmentJob
			jobs.enqueueFn = func(_ context.Context, job *model.EnrichmentJob) error {
				queued = job
				return nil
			}

			Expect(svc.EnqueueNode(ctx, "s1", 2)).To(Succeed())
			Expect(queued).NotTo(BeNil())
			Expect(queued.Status).To(Equal(model.JobStatusQueued))
			Expect(queued.AttemptCount).To(BeZero())
			Expect(queued.NextAttemptAt).To(BeTemporally("~", time.Now(), time.Second))
			Expect(notifier.wakeCalls).To(Equal(1))
		})
	})

	Describe("ProcessJob", func() {
		It("applies a valid recommendation and completes the job", func() {
			provider.analyzeNodeFn = func(_ context.Context, pctx ai.Context) (*ai.Recommendation, error) {
				Expect(pctx.StreamID).To(Equal("s1"))
				Expect(pctx.TargetNode.NodeID).To(Equal(2))
				classification := model.ClassificationSupport
				return &ai.Recommendation{
					ParentNodeID:   intRef(1),
					BranchKind:     model.BranchKindMain,
					Classification: classification,
					Confidence:     0.91,
					Rationale:      "continues the main line",
				}, nil
			}

			Expect(svc.ProcessJob(ctx, job(0))).To(Succeed())

			Expect(appliedNodes).To(HaveLen(1))
			applied := appliedNodes[0]
			Expect(applied.ParentID).To(HaveValue(Equal(1)))
			Expect(applied.BranchType).To(Equal(model.BranchTypeMain))
			Expect(applied.AIStatus).To(Equal(model.AIStatusCompleted))
			Expect(applied.PlacementSource).To(Equal(model.PlacementSourceAI))
			Expect(applied.Classification).To(HaveValue(Equal(model.ClassificationSupport)))
			Expect(applied.SuggestedScore).To(HaveValue(Equal(0.91)))
			Expect(applied.AIModel).To(HaveValue(Equal("test-model")))
			Expect(completed).To(Equal(1))
			Expect(retries).To(BeEmpty())
		})

		It("resolves a side recommendation to the first free slot", func() {
			provider.analyzeNodeFn = func(context.Context, ai.Context) (*ai.Recommendation, error) {
				return &ai.Recommendation{
					ParentNodeID:   intRef(1),
					BranchKind:     model.BranchKindSide,
					Classification: model.ClassificationCounter,
					Confidence:     0.8,
					Rationale:      "pushes back on the root",
				}, nil
			}

			Expect(svc.ProcessJob(ctx, job(0))).To(Succeed())

			Expect(appliedNodes).To(HaveLen(1))
			Expect(appliedNodes[0].BranchType).To(Equal(model.BranchTypeSide1))
		})

		It("keeps a manual placement and records the suggestion only", func() {
			tree[1].PlacementSource = model.PlacementSourceManual
			provider.analyzeNodeFn = func(context.Context, ai.Context) (*ai.Recommendation, error) {
				return &ai.Recommendation{
					ParentNodeID:   intRef(1),
					BranchKind:     model.BranchKindSide,
					Classification: model.ClassificationCounter,
					Confidence:     0.7,
					Rationale:      "would branch off",
				}, nil
			}

			Expect(svc.ProcessJob(ctx, job(0))).To(Succeed())

			Expect(appliedNodes).To(BeEmpty())
			Expect(appliedMeta).To(HaveLen(1))
			Expect(appliedMeta[0].AIStatus).To(Equal(model.AIStatusCompleted))
			Expect(appliedMeta[0].SuggestedParentID).To(HaveValue(Equal(1)))
			Expect(completed).To(Equal(1))
		})

		It("schedules retries along the backoff ladder", func() {
			provider.analyzeNodeFn = func(context.Context, ai.Context) (*ai.Recommendation, error) {
				return nil, &ai.ProviderError{Kind: ai.ErrorKindStatus, Status: 429, Message: "rate limited"}
			}

			Expect(svc.ProcessJob(ctx, job(0))).To(Succeed())
			Expect(svc.ProcessJob(ctx, job(1))).To(Succeed())
			Expect(svc.ProcessJob(ctx, job(2))).To(Succeed())

			Expect(retries).To(HaveLen(3))
			Expect(retries[0]).To(BeTemporally("~", time.Now().Add(2*time.Second), time.Second))
			Expect(retries[1]).To(BeTemporally("~", time.Now().Add(5*time.Second), time.Second))
			Expect(retries[2]).To(BeTemporally("~", time.Now().Add(10*time.Second), time.Second))
			Expect(failedJobs).To(BeEmpty())
			Expect(markedFailed).To(BeEmpty())
		})

		It("fails the node for good once the ladder is spent", func() {
			provider.analyzeNodeFn = func(context.Context, ai.Context) (*ai.Recommendation, error) {
				return nil, &ai.ProviderError{Kind: ai.ErrorKindTimeout, Message: "deadline exceeded"}
			}

			Expect(svc.ProcessJob(ctx, job(3))).To(Succeed())

			Expect(retries).To(BeEmpty())
			Expect(failedJobs).To(HaveLen(1))
			Expect(markedFailed).To(HaveLen(1))
			Expect(markedFailed[0]).To(HaveValue(ContainSubstring("deadline exceeded")))
		})

		It("fails immediately on a terminal provider error", func() {
			provider.analyzeNodeFn = func(context.Context, ai.Context) (*ai.Recommendation, error) {
				return nil, &ai.ProviderError{Kind: ai.ErrorKindBadResponse, Message: "malformed payload"}
			}

			Expect(svc.ProcessJob(ctx, job(0))).To(Succeed())

			Expect(retries).To(BeEmpty())
			Expect(failedJobs).To(HaveLen(1))
		})

		It("treats a recommendation that no longer fits the tree as retryable", func() {
			provider.analyzeNodeFn = func(context.Context, ai.Context) (*ai.Recommendation, error) {
				return &ai.Recommendation{
					ParentNodeID:   intRef(99),
					BranchKind:     model.BranchKindMain,
					Classification: model.ClassificationSupport,
					Confidence:     0.9,
					Rationale:      "stale view of the tree",
				}, nil
			}

			Expect(svc.ProcessJob(ctx, job(0))).To(Succeed())

			Expect(retries).To(HaveLen(1))
			Expect(retryErrors[0]).To(ContainSubstring("invalid parent"))
			Expect(appliedNodes).To(BeEmpty())
		})

		It("records the running attempt before calling the provider", func() {
			var runningAttempt int
			jobs.markRunningFn = func(_ context.Context, _ string, _ int, attemptCount int, _ time.Time) error {
				runningAttempt = attemptCount
				return nil
			}
			provider.analyzeNodeFn = func(context.Context, ai.Context) (*ai.Recommendation, error) {
				Expect(runningAttempt).To(Equal(2))
				return nil, &ai.ProviderError{Kind: ai.ErrorKindConnection, Message: "refused"}
			}

			Expect(svc.ProcessJob(ctx, job(1))).To(Succeed())
			Expect(runningAttempt).To(Equal(2))
		})
	})

	Describe("AcceptHeuristic", func() {
		var accepted []model.PlacementSource

		BeforeEach(func() {
			accepted = nil
			nodes.acceptHeuristicFn = func(_ context.Context, _ string, _ int, _ model.Classification, source model.PlacementSource) error {
				accepted = append(accepted, source)
				for i := range tree {
					if tree[i].NodeID == 2 {
						tree[i].AIStatus = model.AIStatusAcceptedHeuristic
					}
				}
				return nil
			}
		})

		It("settles a failed node on its current placement", func() {
			tree[1].AIStatus = model.AIStatusFailed

			node, err := svc.AcceptHeuristic(ctx, "s1", 2)

			Expect(err).NotTo(HaveOccurred())
			Expect(node.AIStatus).To(Equal(model.AIStatusAcceptedHeuristic))
			Expect(accepted).To(Equal([]model.PlacementSource{model.PlacementSourceHeuristicAccepted}))
		})

		It("keeps manual provenance when the failed node was moved by hand", func() {
			tree[1].AIStatus = model.AIStatusFailed
			tree[1].PlacementSource = model.PlacementSourceManual

			_, err := svc.AcceptHeuristic(ctx, "s1", 2)

			Expect(err).NotTo(HaveOccurred())
			Expect(accepted).To(Equal([]model.PlacementSource{model.PlacementSourceManual}))
		})

		It("rejects nodes that did not fail enrichment", func() {
			_, err := svc.AcceptHeuristic(ctx, "s1", 2)
			Expect(err).To(MatchError(service.ErrNodeNotFailed))
		})

		It("rejects unknown nodes", func() {
			_, err := svc.AcceptHeuristic(ctx, "s1", 42)
			Expect(err).To(MatchError(service.ErrNodeNotFound))
		})
	})
})
