package models

import "time"

// Audit actions recorded for ledger and plan changes.
const (
	AuditActionAccountCreated  = "ACCOUNT_CREATED"
	AuditActionCreditsAdjusted = "CREDITS_ADJUSTED"
	AuditActionBillingApplied  = "BILLING_EVENT_APPLIED"
	AuditActionDeductionFailed = "CREDIT_DEDUCTION_FAILED"
)

// AuditLog represents an audit trail event.
type AuditLog struct {
	ID         string                 `json:"id" firestore:"-"`
	Timestamp  time.Time              `json:"timestamp" firestore:"timestamp,serverTimestamp"`
	UserID     string                 `json:"userId" firestore:"userId"` // Who performed the action; "stripe" or "system" for non-user actors
	Action     string                 `json:"action" firestore:"action"`
	TargetType string                 `json:"targetType,omitempty" firestore:"targetType,omitempty"` // e.g., "ACCOUNT"
	TargetID   string                 `json:"targetId,omitempty" firestore:"targetId,omitempty"`
	IPAddress  string                 `json:"ipAddress,omitempty" firestore:"ipAddress,omitempty"`
	UserAgent  string                 `json:"userAgent,omitempty" firestore:"userAgent,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" firestore:"details,omitempty"`
}
