package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection.
// Paths are labeled by route template to keep cardinality bounded.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one mutation
type Timer struct {
	start   time.Time
	metrics *Metrics
	kind    string
	op      string
}

// NewTimer starts timing op on a package kind
func NewTimer(metrics *Metrics, kind, op string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		kind:    kind,
		op:      op,
	}
}

// Stop records the duration with the outcome of err
func (t *Timer) Stop(err error) {
	if t == nil || t.metrics == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	t.metrics.RecordOperation(t.kind, t.op, status, time.Since(t.start))
}
