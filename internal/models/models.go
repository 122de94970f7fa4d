// Package models defines the core data structures for RepairBot.
//
// It includes the conversational session model, the appointment record
// produced by the booking flow, and shared API response types.
package models

import (
	"errors"
	"time"
)

// FlowType identifies one of the guided conversations a user can be in.
type FlowType string

const (
	// FlowNone marks an inactive session; equivalent to the session being absent.
	FlowNone FlowType = ""
	// FlowEstimate walks the user through brand/model/issue to a price.
	FlowEstimate FlowType = "estimate"
	// FlowBooking collects appointment details and persists an Appointment.
	FlowBooking FlowType = "booking"
	// FlowTroubleshoot runs the guided software diagnosis conversation.
	FlowTroubleshoot FlowType = "troubleshoot"
	// FlowSearchResults lets the user act on a global catalog search.
	FlowSearchResults FlowType = "search_results"
)

// StepType identifies the position within a flow's state machine.
type StepType string

const (
	StepStart StepType = "start"
	StepIdle  StepType = "idle"

	// Estimate flow (brand/model/issue are shared with the booking flow).
	StepBrand       StepType = "brand"
	StepModel       StepType = "model"
	StepIssue       StepType = "issue"
	StepOfferBook   StepType = "offer_book"
	StepModelCustom StepType = "model_custom"
	StepIssueCustom StepType = "issue_custom"

	// Booking flow.
	StepName    StepType = "name"
	StepDate    StepType = "date"
	StepTime    StepType = "time"
	StepConfirm StepType = "confirm"

	// Troubleshoot flow.
	StepDeviceType   StepType = "device_type"
	StepErrorDetails StepType = "error_details"
	StepAnalyze      StepType = "analyze"

	// Search results flow.
	StepSelectResult StepType = "select_result"
	StepChooseAction StepType = "choose_action"
)

// DataKey names a flow-scoped field accumulated across turns in a session.
type DataKey string

const (
	DataBrand         DataKey = "brand"
	DataModel         DataKey = "model"
	DataIssue         DataKey = "issue"
	DataPrice         DataKey = "price"
	DataName          DataKey = "name"
	DataDate          DataKey = "date"
	DataTime          DataKey = "time"
	DataEstimateRange DataKey = "estimateRange"
	DataModelPage     DataKey = "modelPage"
	DataDeviceType    DataKey = "deviceType"
	DataErrorDetails  DataKey = "errorDetails"
)

// SearchMatch is one ranked hit from a global catalog search. It lives only
// inside a search-results session.
type SearchMatch struct {
	Brand  string   `json:"brand"`
	Model  string   `json:"model"`
	Issues []string `json:"issues"`
	Score  int      `json:"score"`
}

// Session holds the per-user conversational state spanning inbound messages.
// At most one flow is active per user at a time.
type Session struct {
	UserID        string               `json:"user_id"`
	Flow          FlowType             `json:"flow"`
	Step          StepType             `json:"step"`
	Data          map[DataKey]string   `json:"data"`
	ModelList     []string             `json:"model_list,omitempty"` // snapshot for paginated model selection
	SearchResults []SearchMatch        `json:"search_results,omitempty"`
	LastActiveAt  time.Time            `json:"last_active_at"`
	// TechMode is a persistent flag: it survives soft resets and flow
	// completion, and is only dropped when the session is removed entirely.
	TechMode bool `json:"tech_mode"`
}

// GetData returns the value stored under key, or "" when unset.
func (s *Session) GetData(key DataKey) string {
	if s.Data == nil {
		return ""
	}
	return s.Data[key]
}

// SetData stores value under key, allocating the map on first use.
func (s *Session) SetData(key DataKey, value string) {
	if s.Data == nil {
		s.Data = make(map[DataKey]string)
	}
	s.Data[key] = value
}

// AppointmentStatus represents the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// IsValidAppointmentStatus checks if the given status is supported.
func IsValidAppointmentStatus(s AppointmentStatus) bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	default:
		return false
	}
}

// Validation errors shared across packages.
var (
	ErrEmptyCustomer    = errors.New("customer identifier cannot be empty")
	ErrEmptyName        = errors.New("customer name cannot be empty")
	ErrInvalidDate      = errors.New("date must be in YYYY-MM-DD format")
	ErrInvalidTime      = errors.New("time must be in HH:MM 24-hour format")
	ErrInvalidStatus    = errors.New("invalid appointment status")
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrEmptyMessageBody = errors.New("message body cannot be empty")
)

// Appointment is the record produced by the booking flow's confirm step.
// Estimate holds a catalog price when one was found; EstimateRange holds the
// assistant-estimated range for devices outside the catalog. Either may be
// unset, never both set.
type Appointment struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"createdAt"`
	CustomerWhatsApp string            `json:"customerWhatsApp"`
	Name             string            `json:"name"`
	Brand            string            `json:"brand"`
	Model            string            `json:"model"`
	Issue            string            `json:"issue"`
	Estimate         *int              `json:"estimate"`
	EstimateRange    string            `json:"estimateRange,omitempty"`
	Date             string            `json:"date"` // YYYY-MM-DD
	Time             string            `json:"time"` // HH:MM, 24-hour
	Status           AppointmentStatus `json:"status"`
}

// Validate performs structural validation on an Appointment before persistence.
func (a *Appointment) Validate() error {
	if a.CustomerWhatsApp == "" {
		return ErrEmptyCustomer
	}
	if a.Name == "" {
		return ErrEmptyName
	}
	if !IsValidDateString(a.Date) {
		return ErrInvalidDate
	}
	if !IsValidTimeString(a.Time) {
		return ErrInvalidTime
	}
	if !IsValidAppointmentStatus(a.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// IsValidDateString reports whether s is a real calendar date in YYYY-MM-DD form.
func IsValidDateString(s string) bool {
	if len(s) != 10 {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// IsValidTimeString reports whether s is a 24-hour HH:MM clock time.
func IsValidTimeString(s string) bool {
	if len(s) != 5 {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// MessageDirection marks whether a logged message was received or sent.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "in"
	DirectionOutbound MessageDirection = "out"
)

// Message is one chat-log entry for a user.
type Message struct {
	UserID    string           `json:"user_id"`
	Direction MessageDirection `json:"direction"`
	Body      string           `json:"body"`
	Time      int64            `json:"time"` // unix seconds
}

// ChatSummary describes one conversation peer for the admin API.
type ChatSummary struct {
	UserID        string `json:"user_id"`
	MessageCount  int    `json:"message_count"`
	LastMessageAt int64  `json:"last_message_at"`
}

// Incoming is a normalized inbound message from any gateway. Exactly one of
// Text or Image is set; Caption accompanies an image when present.
type Incoming struct {
	From      string `json:"from"`
	Text      string `json:"text,omitempty"`
	Image     []byte `json:"-"`
	ImageMIME string `json:"image_mime,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Time      int64  `json:"time"`
}

// IsImage reports whether the inbound message carries image media.
func (in *Incoming) IsImage() bool {
	return len(in.Image) > 0
}
