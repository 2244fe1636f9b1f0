package models

import "time"

// Artwork is derived from an object listing under artworks/<userId>/; it has no table.
type Artwork struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
