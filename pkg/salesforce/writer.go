package salesforce

import (
	"context"
	"time"

	"github.com/sells-group/deal-intel/internal/resilience"
)

// Writer pushes assessment results to Opportunities. Transient failures such
// as row lock contention are retried; consecutive failures open a circuit
// breaker so an unavailable org does not slow every request.
type Writer struct {
	client  Client
	fields  FieldMap
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewWriter creates a Writer for the given client and field mapping.
func NewWriter(c Client, m FieldMap) *Writer {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = 250 * time.Millisecond
	retry.MaxBackoff = 5 * time.Second
	retry.OnRetry = resilience.RetryLogger("salesforce", "update opportunity")

	return &Writer{
		client:  c,
		fields:  m,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("salesforce")),
	}
}

// Write updates a single Opportunity.
func (w *Writer) Write(ctx context.Context, u OpportunityUpdate) error {
	return w.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, w.retry, func(ctx context.Context) error {
			return UpdateOpportunity(ctx, w.client, w.fields, u)
		})
	})
}

// WriteAll updates many Opportunities through the Collections API. Batches
// are not retried, since a partial failure has already applied earlier batches.
func (w *Writer) WriteAll(ctx context.Context, updates []OpportunityUpdate) ([]CollectionResult, error) {
	var results []CollectionResult
	err := w.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		results, err = BulkUpdateOpportunities(ctx, w.client, w.fields, updates)
		return err
	})
	return results, err
}
