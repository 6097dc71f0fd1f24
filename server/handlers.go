package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/log"
	"github.com/YuminosukeSato/replenish/predictions"
)

type healthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	Version           string    `json:"version"`
	DatabaseConnected bool      `json:"database_connected"`
	ModelLoaded       bool      `json:"model_loaded"`
	ModelVersion      string    `json:"model_version,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	resp := healthResponse{
		Status:            "healthy",
		Timestamp:         s.now().UTC(),
		Version:           Version,
		DatabaseConnected: true,
		ModelLoaded:       s.svc.Predictor().Loaded(),
		ModelVersion:      s.svc.Predictor().Version(),
	}
	if s.ping != nil {
		if err := s.ping(c.Request.Context()); err != nil {
			s.logger.Warn("Database ping failed", log.ErrAttrKey, err)
			resp.DatabaseConnected = false
			resp.Status = "degraded"
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) predictForecast(c *gin.Context) {
	var req forecast.ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.svc.Forecast(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type createPredictionRequest struct {
	StoreID           string    `json:"store_id" binding:"required"`
	ProductID         string    `json:"product_id" binding:"required"`
	ForecastMonth     time.Time `json:"forecast_month" binding:"required"`
	PredictedQuantity int       `json:"predicted_quantity" binding:"min=0"`
	ConfidenceScore   float64   `json:"confidence_score" binding:"min=0,max=1"`
	ModelVersion      string    `json:"model_version" binding:"required"`
	FeaturesUsed      []string  `json:"features_used"`
}

func (r *createPredictionRequest) UnmarshalJSON(data []byte) error {
	type Alias createPredictionRequest
	aux := struct {
		*Alias
		ForecastMonth forecast.Date `json:"forecast_month"`
	}{Alias: (*Alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ForecastMonth = aux.ForecastMonth.Time()
	return nil
}

func (s *Server) createPrediction(c *gin.Context) {
	var req createPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id, err := s.predictions.Create(ctx, &forecast.PredictionRecord{
		StoreID:           req.StoreID,
		ProductID:         req.ProductID,
		ForecastMonth:     req.ForecastMonth,
		PredictedQuantity: req.PredictedQuantity,
		ConfidenceScore:   req.ConfidenceScore,
		ModelVersion:      req.ModelVersion,
		FeaturesUsed:      req.FeaturesUsed,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	rec, err := s.predictions.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) getPrediction(c *gin.Context) {
	rec, err := s.predictions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type listQuery struct {
	StoreID   string `form:"store_id"`
	ProductID string `form:"product_id"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

func (s *Server) listPredictions(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = predictions.DefaultListLimit
	}
	recs, err := s.predictions.List(c.Request.Context(), forecast.Filter{StoreID: q.StoreID, ProductID: q.ProductID}, q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(recs))
}

type recentQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

func (s *Server) recentPredictions(c *gin.Context) {
	var q recentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = predictions.DefaultRecentLimit
	}
	recs, err := s.predictions.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(recs))
}

// updatePrediction applies a partial update. An actual quantity without an
// explicit accuracy is recorded through the service so accuracy is derived
// and a prediction is scored only once. An explicit accuracy is a manual
// correction and bypasses the drift detector.
func (s *Server) updatePrediction(c *gin.Context) {
	var u forecast.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	if u.ActualQuantity != nil && u.Accuracy == nil {
		rec, err := s.svc.RecordActual(ctx, id, *u.ActualQuantity)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
		return
	}

	ok, err := s.predictions.Update(ctx, id, u)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Prediction not found"})
		return
	}
	rec, err := s.predictions.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) deletePrediction(c *gin.Context) {
	ok, err := s.predictions.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Prediction not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prediction deleted successfully"})
}

type actualRequest struct {
	ActualQuantity *int `json:"actual_quantity" binding:"required,min=0"`
}

func (s *Server) recordActual(c *gin.Context) {
	var req actualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := s.svc.RecordActual(c.Request.Context(), c.Param("id"), *req.ActualQuantity)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) accuracyStats(c *gin.Context) {
	stats, err := s.predictions.AccuracyStats(c.Request.Context(), c.Query("store_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type modelInfoResponse struct {
	*forecast.ModelInfo
	Drift forecast.DriftStatus `json:"drift"`
}

func (s *Server) modelInfo(c *gin.Context) {
	info, err := s.svc.Predictor().Info(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, modelInfoResponse{ModelInfo: info, Drift: s.svc.DriftStatus()})
}

func nonNil(recs []forecast.PredictionRecord) []forecast.PredictionRecord {
	if recs == nil {
		return []forecast.PredictionRecord{}
	}
	return recs
}
