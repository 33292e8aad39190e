package models

// GenerateRequest represents the request body for a new visualization.
// Images are either https URLs (uploaded by the client to storage) or data URIs.
type GenerateRequest struct {
	RoomImage    string         `json:"roomImage" binding:"required"`
	PatternImage string         `json:"patternImage,omitempty"`
	Mode         GenerationMode `json:"mode" binding:"required"`
	Instructions string         `json:"instructions,omitempty"`
}

// CheckoutRequest starts a Stripe Checkout session. Exactly one of Plan or
// PriceID is expected: Plan for a subscription, PriceID for a credit package.
type CheckoutRequest struct {
	Plan    string `json:"plan,omitempty"`
	PriceID string `json:"priceId,omitempty"`
}

// AdjustCreditsRequest is the admin back-office adjustment.
// Pointers distinguish "leave unchanged" from zero values.
type AdjustCreditsRequest struct {
	Plan           *string `json:"plan,omitempty"`
	MonthlyCredits *int    `json:"monthlyCredits,omitempty"`
	AddPurchased   *int    `json:"addPurchased,omitempty"`
	Reason         string  `json:"reason" binding:"required"`
}
