package ai_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mindgraph.app/grove/internal/ai"
	"mindgraph.app/grove/internal/graph"
	"mindgraph.app/grove/internal/model"
)

func graphNode(id int, parentID *int, branch model.BranchType, text string) ai.GraphNode {
	return ai.GraphNode{
		NodeID:     id,
		ParentID:   parentID,
		BranchType: branch,
		Text:       text,
	}
}

func providerContext(streamID string, targetID int, targetText string, nodes []ai.GraphNode, candidates []graph.ParentCandidate) ai.Context {
	return ai.Context{
		StreamID: streamID,
		TargetNode: ai.TargetNode{
			NodeID:    targetID,
			Text:      targetText,
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Graph:      nodes,
		Candidates: candidates,
	}
}

var _ = Describe("Local provider", func() {
	var provider ai.Provider

	BeforeEach(func() {
		provider = ai.New(ai.Config{Provider: ai.ProviderLocal})
	})

	It("anchors the root node on the main line", func() {
		rec, err := provider.AnalyzeNode(context.Background(),
			providerContext("11", 1, "Solar power is the cheapest energy source", nil, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ParentNodeID).To(BeNil())
		Expect(rec.BranchKind).To(Equal(model.BranchKindMain))
		Expect(rec.Classification).To(Equal(model.ClassificationClaim))
		Expect(rec.Confidence).To(Equal(0.99))
	})

	It("classifies an interrogative root as a question", func() {
		rec, err := provider.AnalyzeNode(context.Background(),
			providerContext("11", 1, "What should we do about grid storage?", nil, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Classification).To(Equal(model.ClassificationQuestion))
	})

	It("continues the main line under the most related candidate", func() {
		side1 := model.BranchTypeSide1
		nodes := []ai.GraphNode{
			graphNode(1, nil, model.BranchTypeMain, "Solar power keeps getting cheaper every year"),
			graphNode(2, intPtr(1), model.BranchTypeMain, "Grid storage costs dominate renewable deployments"),
		}
		candidates := []graph.ParentCandidate{
			{NodeID: 1, AllowsMain: false, NextSideSlot: &side1},
			{NodeID: 2, AllowsMain: true, NextSideSlot: &side1},
		}

		rec, err := provider.AnalyzeNode(context.Background(),
			providerContext("11", 3, "Grid storage costs fall as renewable deployments scale", nodes, candidates))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ParentNodeID).To(HaveValue(Equal(2)))
		Expect(rec.BranchKind).To(Equal(model.BranchKindMain))
		Expect(rec.Classification).To(Equal(model.ClassificationSupport))
		Expect(rec.Confidence).To(BeNumerically(">=", 0.62))
		Expect(rec.Confidence).To(BeNumerically("<=", 0.96))
		Expect(rec.Rationale).NotTo(BeEmpty())
	})

	It("attaches counters as side branches when a slot is free", func() {
		side1 := model.BranchTypeSide1
		nodes := []ai.GraphNode{
			graphNode(1, nil, model.BranchTypeMain, "Solar power keeps getting cheaper every year"),
		}
		candidates := []graph.ParentCandidate{
			{NodeID: 1, AllowsMain: true, NextSideSlot: &side1},
		}

		rec, err := provider.AnalyzeNode(context.Background(),
			providerContext("11", 2, "But solar is not cheap once you price in storage", nodes, candidates))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ParentNodeID).To(HaveValue(Equal(1)))
		Expect(rec.BranchKind).To(Equal(model.BranchKindSide))
		Expect(rec.Classification).To(Equal(model.ClassificationCounter))
		Expect(rec.Confidence).To(BeNumerically(">=", 0.48))
		Expect(rec.Confidence).To(BeNumerically("<=", 0.84))
	})

	It("fails terminally when no candidate can host the node", func() {
		nodes := []ai.GraphNode{
			graphNode(1, nil, model.BranchTypeMain, "Root claim"),
		}

		_, err := provider.AnalyzeNode(context.Background(),
			providerContext("11", 2, "Another thought entirely", nodes, nil))
		Expect(err).To(HaveOccurred())
		Expect(ai.IsRetryable(err)).To(BeFalse())
	})

	It("is deterministic for identical inputs", func() {
		side1 := model.BranchTypeSide1
		nodes := []ai.GraphNode{
			graphNode(1, nil, model.BranchTypeMain, "Carbon pricing shifts investment decisions"),
			graphNode(2, intPtr(1), model.BranchTypeMain, "Border adjustments stop carbon leakage"),
		}
		candidates := []graph.ParentCandidate{
			{NodeID: 1, AllowsMain: false, NextSideSlot: &side1},
			{NodeID: 2, AllowsMain: true, NextSideSlot: &side1},
		}
		pctx := providerContext("42", 3, "Carbon pricing with border adjustments works", nodes, candidates)

		first, err := provider.AnalyzeNode(context.Background(), pctx)
		Expect(err).NotTo(HaveOccurred())
		second, err := provider.AnalyzeNode(context.Background(), pctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})
})
