package domain

// Estimate is a persisted moving request.
type Estimate struct {
	ID             string  `json:"id"`
	RequestID      string  `json:"request_id"`
	Status         string  `json:"status" enum:"draft,submitted"`
	Phone          *string `json:"phone,omitempty"`
	CompletionRate float64 `json:"completion_rate"`
	Schema         Schema  `json:"schema"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
	SubmittedAt    *string `json:"submitted_at,omitempty" format:"date-time"`
}

const (
	EstimateDraft     = "draft"
	EstimateSubmitted = "submitted"
)

// EstimateStatus derives the persisted status from the record.
func EstimateStatus(s Schema) string {
	if s.Status.SubmittedAt != nil {
		return EstimateSubmitted
	}
	return EstimateDraft
}

// EstimateFilter narrows estimate listings.
type EstimateFilter struct {
	Status string
	Limit  int
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

const (
	EventEstimateCreated   = "estimate.created"
	EventEstimateUpdated   = "estimate.updated"
	EventEstimateSubmitted = "estimate.submitted"

	EntityEstimate = "estimate"
)
