package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollectionCase describes an overdue loan awaiting a collection decision.
type CollectionCase struct {
	UserID            string           `json:"userId" validate:"required"`
	LoanID            string           `json:"loanId" validate:"required"`
	OutstandingAmount *decimal.Decimal `json:"outstandingAmount" validate:"required"`
	DaysOverdue       *int             `json:"daysOverdue" validate:"required,gte=0"`
	PreviousAttempts  *int             `json:"previousAttempts" validate:"required,gte=0"`
	CustomerProfile   CustomerProfile  `json:"customerProfile"`
}

// CustomerProfile holds borrower attributes used for contact planning.
type CustomerProfile struct {
	EmploymentType string `json:"employmentType,omitempty"`
	PreferredLang  string `json:"preferredLanguage,omitempty"`
	Region         string `json:"region,omitempty"`
}

// Employment types with a dedicated contact window.
const (
	EmploymentSalaried = "salaried"
	EmploymentBusiness = "business"
)

// Priority is the collection case priority tier.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Channel is the communication channel for a collection contact.
type Channel string

const (
	ChannelSMS         Channel = "SMS"
	ChannelPhoneCall   Channel = "PhoneCall"
	ChannelFieldVisit  Channel = "FieldVisit"
	ChannelLegalNotice Channel = "LegalNotice"
)

// Negotiation offer types.
const (
	OfferRestructuring  = "Restructuring"
	OfferPartialPayment = "Partial Payment"
	OfferSettlement     = "Settlement"
)

// NegotiationOption is an offer that can be made to the borrower.
type NegotiationOption struct {
	Type       string  `json:"type"`
	Terms      string  `json:"terms"`
	Likelihood float64 `json:"likelihood"`
}

// CollectionStrategy is the planner output for one case.
type CollectionStrategy struct {
	Priority             Priority            `json:"priority"`
	RecommendedActions   []string            `json:"recommendedActions"`
	BestTimeToContact    string              `json:"bestTimeToContact"`
	CommunicationChannel Channel             `json:"communicationChannel"`
	NegotiationOptions   []NegotiationOption `json:"negotiationOptions"`
	EstimatedRecovery    decimal.Decimal     `json:"estimatedRecovery"`
}

// CollectionPlan is a persisted strategy for a case.
type CollectionPlan struct {
	ID        string              `json:"id"`
	TenantID  string              `json:"tenantId"`
	UserID    string              `json:"userId"`
	LoanID    string              `json:"loanId"`
	Strategy  *CollectionStrategy `json:"strategy"`
	CreatedAt time.Time           `json:"createdAt"`
}

// ContactOutcome is an agent-recorded result of a collection contact.
type ContactOutcome struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenantId"`
	LoanID      string           `json:"loanId"`
	AgentID     string           `json:"agentId" validate:"required"`
	Channel     Channel          `json:"channel" validate:"required,oneof=SMS PhoneCall FieldVisit LegalNotice"`
	Outcome     string           `json:"outcome" validate:"required,oneof=no_answer promise_to_pay paid partial_paid disputed refused"`
	PromisedAmt *decimal.Decimal `json:"promisedAmount,omitempty"`
	Notes       string           `json:"notes,omitempty" validate:"max=2000"`
	ContactedAt time.Time        `json:"contactedAt"`
}
