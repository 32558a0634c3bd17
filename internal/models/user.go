package models

// User is the subset of a user record needed to reach them out of band.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Entity is the display view of any reminder-eligible record.
type Entity struct {
	ID     string     `json:"id"`
	Type   EntityType `json:"type"`
	UserID string     `json:"userId,omitempty"`
	Title  string     `json:"title"`
}
