package linkrelay

// SendLinkRequest is the body of POST /sendlink. PartitionKey, when given, is
// used as the correlation token instead of a generated one.
type SendLinkRequest struct {
	ProfileID    string `json:"profileId" validate:"notblank,max=2048" example:"https://www.linkedin.com/in/alice"`
	PartitionKey string `json:"partitionKey,omitempty" validate:"omitempty,max=128" example:"5b0c7f3e-9a57-4c1e-8a1b-2f7e2c1f4d10"`
}

// SendLinkResponse carries either the worker's reply in Data or, when no
// reply arrived in time, a notice in Message. Data is non-nil, possibly
// empty, exactly when a reply matched.
type SendLinkResponse struct {
	Data         *string `json:"data,omitempty" example:"processed:alice" swaggertype:"string"`
	Message      string  `json:"message,omitempty" example:"no response available"`
	PartitionKey string  `json:"partitionKey" example:"5b0c7f3e-9a57-4c1e-8a1b-2f7e2c1f4d10"`
}

// FieldError is one validation failure, reported in request order.
type FieldError struct {
	Field   string `json:"field" example:"profileId"`
	Message string `json:"message" example:"'Profile Id' must not be empty."`
}
