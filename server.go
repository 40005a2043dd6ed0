package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server exposes the pipeline over HTTP. Every handler is request-scoped:
// no shared mutable state beyond the store and oracle client, and every
// blocking call runs under the request context with a bounded timeout.
type Server struct {
	store             Store
	oracle            Oracle
	synth             *Synthesizer
	classifyTimeout   time.Duration
	synthesizeTimeout time.Duration
}

func NewServer(store Store, oracle Oracle, synth *Synthesizer, classifyTimeout, synthesizeTimeout time.Duration) *Server {
	return &Server{
		store:             store,
		oracle:            oracle,
		synth:             synth,
		classifyTimeout:   classifyTimeout,
		synthesizeTimeout: synthesizeTimeout,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/ingest", s.handleIngest)
	r.POST("/classify", s.handleClassify)
	r.POST("/synthesize", s.handleSynthesize)
	r.GET("/insights/pain-points", s.handleListPainPoints)
	r.GET("/insights/feature-requests", s.handleListFeatureRequests)
	return r
}

type ingestRequest struct {
	OwnerID string `json:"owner_id"`
	CSVData string `json:"csv_data"`
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.OwnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}
	if req.CSVData == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "csv_data is required"})
		return
	}

	records, report, err := IngestCSV(req.CSVData, req.OwnerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inserted, rowErrs := s.store.InsertFeedback(c.Request.Context(), records)
	for _, re := range rowErrs {
		log.Printf("ingest owner=%s row=%d insert failed: %s", req.OwnerID, re.Index, re.Message)
	}
	log.Printf("ingest owner=%s accepted=%d skipped=%d failed=%d", req.OwnerID, len(inserted), report.Skipped, len(rowErrs))

	c.JSON(http.StatusOK, gin.H{
		"accepted":   len(inserted),
		"skipped":    report.Skipped,
		"row_errors": rowErrs,
		"records":    inserted,
	})
}

type classifyRequest struct {
	OwnerID      string `json:"owner_id"`
	FeedbackID   string `json:"feedback_id"`
	FeedbackText string `json:"feedback_text"`
}

func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.OwnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}
	if req.FeedbackText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedback_text is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.classifyTimeout)
	defer cancel()

	analysis, err := s.oracle.Classify(ctx, req.FeedbackText)
	if err != nil {
		c.JSON(oracleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	// Write-back is best effort: the caller still gets the analysis even
	// if the owning record is gone.
	if req.FeedbackID != "" {
		if err := s.store.UpdateFeedbackAnalysis(ctx, req.FeedbackID, req.OwnerID, analysis); err != nil {
			log.Printf("classify owner=%s feedback=%s write-back failed: %v", req.OwnerID, req.FeedbackID, err)
		}
	}

	c.JSON(http.StatusOK, analysis)
}

type synthesizeRequest struct {
	OwnerID string `json:"owner_id"`
}

func (s *Server) handleSynthesize(c *gin.Context) {
	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.OwnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.synthesizeTimeout)
	defer cancel()

	result, err := s.synth.Synthesize(ctx, req.OwnerID)
	if err != nil {
		c.JSON(oracleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	if result.EmptyWindow {
		c.JSON(http.StatusOK, gin.H{"message": "No feedback to analyze"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListPainPoints(c *gin.Context) {
	s.listInsights(c, KindPainPoint)
}

func (s *Server) handleListFeatureRequests(c *gin.Context) {
	s.listInsights(c, KindFeatureRequest)
}

func (s *Server) listInsights(c *gin.Context, kind string) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}

	insights, err := s.store.ListInsights(c.Request.Context(), kind, ownerID, 50)
	if err != nil {
		log.Printf("list insights kind=%s owner=%s error: %v", kind, ownerID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load insights"})
		return
	}
	if insights == nil {
		insights = []Insight{}
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

// oracleErrorStatus maps pipeline errors to HTTP status codes. Oracle
// failures are upstream faults (502); everything else bubbles as 500.
func oracleErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrOracleUnavailable),
		errors.Is(err, ErrOracleRejected),
		errors.Is(err, ErrMalformedOracleResponse):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
