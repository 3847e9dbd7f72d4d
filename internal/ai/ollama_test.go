package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mindgraph.app/grove/internal/ai"
	"mindgraph.app/grove/internal/graph"
	"mindgraph.app/grove/internal/model"
)

type capturedChatRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func ollamaResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"message": map[string]any{"content": content},
	})
	return string(body)
}

var _ = Describe("Ollama provider", func() {
	newProvider := func(baseURL string, timeout time.Duration) ai.Provider {
		return ai.New(ai.Config{
			Provider:      ai.ProviderOllama,
			Model:         "test-model",
			Timeout:       timeout,
			OllamaBaseURL: baseURL,
		})
	}

	It("parses a schema-constrained chat response", func() {
		var mu sync.Mutex
		var captured capturedChatRequest

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(json.NewDecoder(r.Body).Decode(&captured)).To(Succeed())
			fmt.Fprint(w, ollamaResponse(`{"parentNodeId":2,"branchKind":"main","classification":"support","confidence":0.81,"rationale":"Continues the storage thread."}`))
		}))
		defer server.Close()

		side1 := model.BranchTypeSide1
		pctx := providerContext("11", 3, "Grid storage costs fall as renewable deployments scale",
			[]ai.GraphNode{
				graphNode(1, nil, model.BranchTypeMain, "Solar power keeps getting cheaper"),
				graphNode(2, intPtr(1), model.BranchTypeMain, "Grid storage costs dominate deployments"),
			},
			[]graph.ParentCandidate{
				{NodeID: 1, AllowsMain: false, NextSideSlot: &side1},
				{NodeID: 2, AllowsMain: true, NextSideSlot: &side1},
			})

		rec, err := newProvider(server.URL, time.Second).AnalyzeNode(context.Background(), pctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ParentNodeID).To(HaveValue(Equal(2)))
		Expect(rec.BranchKind).To(Equal(model.BranchKindMain))
		Expect(rec.Confidence).To(Equal(0.81))

		mu.Lock()
		defer mu.Unlock()
		Expect(captured.Model).To(Equal("test-model"))
		Expect(captured.Stream).To(BeFalse())
		Expect(captured.Format).NotTo(BeEmpty())
		Expect(captured.Messages).To(HaveLen(2))
		Expect(captured.Messages[0].Role).To(Equal("system"))
		Expect(captured.Messages[1].Content).To(ContainSubstring(`"streamId":"11"`))
		Expect(captured.Messages[1].Content).To(ContainSubstring("heuristicTopChoice"))
	})

	It("unwraps markdown-fenced payloads", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fenced := "```json\n{\"parentNodeId\":1,\"branchKind\":\"side\",\"classification\":\"counter\",\"confidence\":0.6,\"rationale\":\"Challenges the claim.\"}\n```"
			fmt.Fprint(w, ollamaResponse(fenced))
		}))
		defer server.Close()

		side1 := model.BranchTypeSide1
		pctx := providerContext("11", 2, "But that ignores storage costs",
			[]ai.GraphNode{graphNode(1, nil, model.BranchTypeMain, "Solar is cheap")},
			[]graph.ParentCandidate{{NodeID: 1, AllowsMain: true, NextSideSlot: &side1}})

		rec, err := newProvider(server.URL, time.Second).AnalyzeNode(context.Background(), pctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.BranchKind).To(Equal(model.BranchKindSide))
		Expect(rec.Classification).To(Equal(model.ClassificationCounter))
	})

	It("shortlists the prompt for large graphs", func() {
		var mu sync.Mutex
		var captured capturedChatRequest

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			Expect(json.NewDecoder(r.Body).Decode(&captured)).To(Succeed())
			fmt.Fprint(w, ollamaResponse(`{"parentNodeId":20,"branchKind":"main","classification":"support","confidence":0.7,"rationale":"Continues the trunk."}`))
		}))
		defer server.Close()

		side1 := model.BranchTypeSide1
		var nodes []ai.GraphNode
		var candidates []graph.ParentCandidate
		nodes = append(nodes, graphNode(1, nil, model.BranchTypeMain, "Topic sentence number 1"))
		for id := 2; id <= 20; id++ {
			parent := id - 1
			nodes = append(nodes, graphNode(id, &parent, model.BranchTypeMain, fmt.Sprintf("Topic sentence number %d", id)))
		}
		for id := 1; id <= 20; id++ {
			allowsMain := id == 20
			candidates = append(candidates, graph.ParentCandidate{NodeID: id, AllowsMain: allowsMain, NextSideSlot: &side1})
		}

		_, err := newProvider(server.URL, time.Second).AnalyzeNode(context.Background(),
			providerContext("11", 21, "Topic sentence number twenty one", nodes, candidates))
		Expect(err).NotTo(HaveOccurred())

		mu.Lock()
		defer mu.Unlock()
		var payload struct {
			Graph      []json.RawMessage `json:"currentGraph"`
			Candidates []json.RawMessage `json:"validParentCandidates"`
		}
		Expect(json.Unmarshal([]byte(captured.Messages[1].Content), &payload)).To(Succeed())
		Expect(len(payload.Candidates)).To(BeNumerically("<=", 6))
		Expect(len(payload.Graph)).To(BeNumerically("<=", 14))
	})

	It("surfaces upstream statuses as retryable provider errors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"model is overloaded"}`)
		}))
		defer server.Close()

		_, err := newProvider(server.URL, time.Second).AnalyzeNode(context.Background(),
			providerContext("11", 1, "Root claim", nil, nil))
		Expect(err).To(HaveOccurred())

		var pErr *ai.ProviderError
		Expect(errors.As(err, &pErr)).To(BeTrue())
		Expect(pErr.Status).To(Equal(http.StatusTooManyRequests))
		Expect(err.Error()).To(ContainSubstring("model is overloaded"))
		Expect(ai.IsRetryable(err)).To(BeTrue())
	})

	It("treats malformed recommendation JSON as terminal", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, ollamaResponse("this is not json"))
		}))
		defer server.Close()

		_, err := newProvider(server.URL, time.Second).AnalyzeNode(context.Background(),
			providerContext("11", 1, "Root claim", nil, nil))
		Expect(err).To(HaveOccurred())
		Expect(ai.IsRetryable(err)).To(BeFalse())
	})

	It("maps the per-call timeout to a retryable 408", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(500 * time.Millisecond):
			}
			fmt.Fprint(w, ollamaResponse("{}"))
		}))
		defer server.Close()

		_, err := newProvider(server.URL, 20*time.Millisecond).AnalyzeNode(context.Background(),
			providerContext("11", 1, "Root claim", nil, nil))
		Expect(err).To(HaveOccurred())
		Expect(ai.IsRetryable(err)).To(BeTrue())
	})
})
