package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

func requestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []any{
			log.HTTPMethodKey, c.Request.Method,
			log.HTTPPathKey, path,
			log.HTTPStatusKey, status,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// statusFor maps the error taxonomy onto HTTP status codes. Missing sales
// data, column mismatches and repeated actuals are reported as input
// errors, so they are checked first.
func statusFor(err error) int {
	var (
		inputErr      *errors.InputError
		validationErr *errors.ValidationError
		unavailable   *errors.ModelUnavailableError
		computation   *errors.ComputationError
	)
	switch {
	case errors.Is(err, errors.ErrNoSalesData), errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrColumnMismatch):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrActualRecorded):
		return http.StatusConflict
	case errors.As(err, &inputErr), errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &unavailable), errors.Is(err, errors.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &computation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, errors.ErrNoSalesData):
		msg = "No sales data found for the specified store and product"
	case errors.Is(err, errors.ErrNotFound):
		msg = "Prediction not found"
	case status == http.StatusInternalServerError:
		s.logger.Error("Request failed", log.ErrAttrKey, err, log.HTTPPathKey, c.FullPath())
		msg = "Internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
