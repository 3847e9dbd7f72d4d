package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mindgraph.app/grove/internal/chain"
	"mindgraph.app/grove/internal/http/handler"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/service"
)

var _ = Describe("CommitHandler", func() {
	var (
		router    *gin.Engine
		snapshots *mockSnapshotService
	)

	commit := func(reason string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"reason": reason})
		req := httptest.NewRequest(http.MethodPost, "/api/streams/42/commit", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		snapshots = &mockSnapshotService{}
		h := handler.NewCommitHandler(snapshots)
		router.POST("/api/streams/:id/commit", h.Commit)
	})

	It("returns the committed snapshot", func() {
		snapshots.commitFn = func(_ context.Context, streamID string, reason model.SnapshotReason) (*service.CommitResult, error) {
			Expect(streamID).To(Equal("42"))
			Expect(reason).To(Equal(model.SnapshotReasonManual))
			return &service.CommitResult{
				Committed: true,
				Snapshot: &model.Snapshot{
					StreamID:      "42",
					SnapshotIndex: 3,
					SnapshotHash:  "0xabc",
					Reason:        reason,
					TxRef:         "0xcommit",
				},
				Stream: &model.Stream{ID: "42", Status: model.StreamStatusActive, LastSnapshotIndex: 3},
			}, nil
		}

		w := commit("manual")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"committed":true`))
		Expect(w.Body.String()).To(ContainSubstring(`"snapshotIndex":3`))
	})

	It("answers 204 when an auto commit finds no changes", func() {
		snapshots.commitFn = func(context.Context, string, model.SnapshotReason) (*service.CommitResult, error) {
			return &service.CommitResult{
				SkippedReason: model.CommitSkippedNoChanges,
				Stream:        &model.Stream{ID: "42", Status: model.StreamStatusActive},
			}, nil
		}

		w := commit("auto")

		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(w.Body.Len()).To(BeZero())
	})

	It("reports a manual skip with a body", func() {
		snapshots.commitFn = func(context.Context, string, model.SnapshotReason) (*service.CommitResult, error) {
			return &service.CommitResult{
				SkippedReason: model.CommitSkippedNoNodes,
				Stream:        &model.Stream{ID: "42", Status: model.StreamStatusActive},
			}, nil
		}

		w := commit("manual")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"skippedReason":"no_nodes"`))
	})

	It("reports an auto skip for blocked enrichment with a body", func() {
		snapshots.commitFn = func(context.Context, string, model.SnapshotReason) (*service.CommitResult, error) {
			return &service.CommitResult{
				SkippedReason: model.CommitSkippedAIPending,
				Stream:        &model.Stream{ID: "42", Status: model.StreamStatusActive},
			}, nil
		}

		w := commit("auto")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"skippedReason":"ai_pending"`))
	})

	It("rejects an unknown reason", func() {
		w := commit("hourly")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("maps ledger failures to 502", func() {
		snapshots.commitFn = func(context.Context, string, model.SnapshotReason) (*service.CommitResult, error) {
			return nil, fmt.Errorf("committing snapshot on ledger: %w", &chain.Error{
				Op:     chain.OpCommitSnapshot,
				Kind:   chain.ErrorKindRejected,
				Status: http.StatusUnprocessableEntity,
			})
		}

		w := commit("manual")

		Expect(w.Code).To(Equal(http.StatusBadGateway))
		Expect(w.Body.String()).To(ContainSubstring("CHAIN_COMMIT_FAILED"))
	})

	It("maps blocked manual commits to 409", func() {
		snapshots.commitFn = func(context.Context, string, model.SnapshotReason) (*service.CommitResult, error) {
			return nil, service.ErrEnrichmentBlocking
		}

		w := commit("manual")

		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(w.Body.String()).To(ContainSubstring("AI_ENRICHMENT_BLOCKING_COMMIT"))
	})
})
