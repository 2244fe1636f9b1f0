package api

import "time"

// User mirrors the server's user record.
type User struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	Active             bool      `json:"active"`
	DeactivationReason *string   `json:"deactivationReason,omitempty"`
	DriveFolderURL     *string   `json:"driveFolderUrl,omitempty"`
	AuthProvider       *string   `json:"authProvider,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Request is an art commission request.
type Request struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Description    string    `json:"description"`
	ReferenceLinks []string  `json:"referenceLinks"`
	Status         string    `json:"status"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	User           *User     `json:"user,omitempty"`
}

// Artwork is a delivered file in a user's artwork folder.
type Artwork struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Snapshot is returned by GET /notifications/unread.
type Snapshot struct {
	TotalMessages  int            `json:"totalMessages"`
	MessagesByUser map[string]int `json:"messagesByUser"`
	TotalRequests  int            `json:"totalRequests"`
	RequestsByUser map[string]int `json:"requestsByUser"`
	Total          int            `json:"total"`
	ComputedAt     time.Time      `json:"computedAt"`
}

// LoginResponse is returned by POST /auth/login and /auth/mfa/verify. When
// the account has two-factor enabled only MFARequired and MFAToken are set.
type LoginResponse struct {
	Token       string   `json:"token"`
	User        User     `json:"user"`
	MFARequired bool     `json:"mfaRequired"`
	MFAToken    string   `json:"mfaToken"`
	Methods     []string `json:"methods,omitempty"`
}

// DownloadURLResponse is returned by GET /artworks/:userId/:name/url.
type DownloadURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LinkResponse is returned by GET /artworks/:userId/:name/link.
type LinkResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type VersionInfo struct {
	Service    string `json:"service"`
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
}
