package http

// RespondOfferRequest is the body of accept and decline calls.
type RespondOfferRequest struct {
	MasterID int64 `json:"master_id" validate:"required,gt=0"`
}

// AcceptResponse reports a committed assignment.
type AcceptResponse struct {
	OrderID  int64 `json:"order_id"`
	MasterID int64 `json:"master_id"`
	Round    int   `json:"round"`
}

// DeclineResponse reports the decline outcome. Resolved offers decline as a
// no-op rather than an error.
type DeclineResponse struct {
	Declined        bool `json:"declined"`
	AlreadyResolved bool `json:"already_resolved,omitempty"`
}

// PutSettingRequest is the body of administrative settings writes.
type PutSettingRequest struct {
	Value string `json:"value" validate:"required,number"`
}

type errorResponse struct {
	Error string `json:"error"`
}
