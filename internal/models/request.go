package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusRejected   RequestStatus = "rejected"
)

var RequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusInProgress,
	RequestStatusCompleted,
	RequestStatusRejected,
}

func (s RequestStatus) Valid() bool {
	for _, candidate := range RequestStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Request is a customer's commission. Read tracks whether an admin has seen it.
type Request struct {
	BaseModel
	UserID         uuid.UUID                   `json:"userId" gorm:"type:uuid;not null;index"`
	Description    string                      `json:"description" gorm:"type:text;not null"`
	ReferenceLinks datatypes.JSONSlice[string] `json:"referenceLinks"`
	Status         RequestStatus               `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Read           bool                        `json:"read" gorm:"not null;default:false;index"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID"`
}

func (Request) TableName() string {
	return "requests"
}
