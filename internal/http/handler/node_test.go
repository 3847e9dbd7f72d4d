package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mindgraph.app/grove/internal/http/handler"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/service"
)

var _ = Describe("NodeHandler", func() {
	var (
		router     *gin.Engine
		graphSvc   *mockGraphService
		enrichment *mockEnrichmentService
	)

	postJSON := func(path string, payload any) *httptest.ResponseRecorder {
		body, err := json.Marshal(payload)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	patchJSON := func(path string, payload any) *httptest.ResponseRecorder {
		body, err := json.Marshal(payload)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(http.MethodPatch, path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		graphSvc = &mockGraphService{}
		enrichment = &mockEnrichmentService{}
		h := handler.NewNodeHandler(graphSvc, enrichment)
		router.POST("/api/streams/:id/nodes", h.Create)
		router.PATCH("/api/streams/:id/nodes/:nodeId", h.Override)
		router.POST("/api/streams/:id/nodes/:nodeId/accept-heuristic", h.AcceptHeuristic)
	})

	Describe("Create", func() {
		It("returns 201 with the placed node and trims the text", func() {
			graphSvc.addNodeFn = func(_ context.Context, streamID, text string) (*model.Node, error) {
				Expect(streamID).To(Equal("42"))
				Expect(text).To(Equal("a point"))
				return &model.Node{
					StreamID:   "42",
					NodeID:     2,
					Text:       text,
					BranchType: model.BranchTypeMain,
					AIStatus:   model.AIStatusPending,
				}, nil
			}

			w := postJSON("/api/streams/42/nodes", map[string]string{"text": "  a point  "})

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(w.Body.String()).To(ContainSubstring(`"nodeId":2`))
			Expect(w.Body.String()).To(ContainSubstring(`"aiStatus":"pending"`))
		})

		It("rejects whitespace-only text", func() {
			w := postJSON("/api/streams/42/nodes", map[string]string{"text": "   "})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects text over 4000 characters", func() {
			w := postJSON("/api/streams/42/nodes", map[string]string{"text": strings.Repeat("x", 4001)})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps the node limit to 409", func() {
			graphSvc.addNodeFn = func(context.Context, string, string) (*model.Node, error) {
				return nil, service.ErrNodeLimitReached
			}

			w := postJSON("/api/streams/42/nodes", map[string]string{"text": "one too many"})

			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(w.Body.String()).To(ContainSubstring("NODE_LIMIT_REACHED"))
		})
	})

	Describe("Override", func() {
		It("returns the re-parented node", func() {
			graphSvc.overrideNodeFn = func(_ context.Context, streamID string, nodeID, parentID int, kind model.BranchKind) (*model.Node, error) {
				Expect(streamID).To(Equal("42"))
				Expect(nodeID).To(Equal(3))
				Expect(parentID).To(Equal(1))
				Expect(kind).To(Equal(model.BranchKindSide))
				parent := parentID
				return &model.Node{
					StreamID:        "42",
					NodeID:          nodeID,
					ParentID:        &parent,
					BranchType:      model.BranchTypeSide1,
					PlacementSource: model.PlacementSourceManual,
				}, nil
			}

			w := patchJSON("/api/streams/42/nodes/3", map[string]any{
				"parentId":   1,
				"branchKind": "side",
			})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"placementSource":"manual"`))
		})

		It("rejects a non-numeric node id", func() {
			w := patchJSON("/api/streams/42/nodes/abc", map[string]any{
				"parentId":   1,
				"branchKind": "side",
			})

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("INVALID_NODE_ID"))
		})

		It("rejects an unknown branch kind", func() {
			w := patchJSON("/api/streams/42/nodes/3", map[string]any{
				"parentId":   1,
				"branchKind": "diagonal",
			})

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps an immutable root to 409", func() {
			graphSvc.overrideNodeFn = func(context.Context, string, int, int, model.BranchKind) (*model.Node, error) {
				return nil, service.ErrRootImmutable
			}

			w := patchJSON("/api/streams/42/nodes/1", map[string]any{
				"parentId":   2,
				"branchKind": "main",
			})

			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(w.Body.String()).To(ContainSubstring("ROOT_NODE_IMMUTABLE"))
		})
	})

	Describe("AcceptHeuristic", func() {
		It("returns the settled node", func() {
			enrichment.acceptHeuristicFn = func(_ context.Context, streamID string, nodeID int) (*model.Node, error) {
				Expect(streamID).To(Equal("42"))
				Expect(nodeID).To(Equal(5))
				return &model.Node{
					StreamID: "42",
					NodeID:   5,
					AIStatus: model.AIStatusAcceptedHeuristic,
				}, nil
			}

			req := httptest.NewRequest(http.MethodPost, "/api/streams/42/nodes/5/accept-heuristic", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"aiStatus":"accepted_heuristic"`))
		})

		It("maps a non-failed node to 409", func() {
			enrichment.acceptHeuristicFn = func(context.Context, string, int) (*model.Node, error) {
				return nil, service.ErrNodeNotFailed
			}

			req := httptest.NewRequest(http.MethodPost, "/api/streams/42/nodes/5/accept-heuristic", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(w.Body.String()).To(ContainSubstring("NODE_NOT_FAILED"))
		})
	})
})
