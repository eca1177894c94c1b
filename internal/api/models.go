package api

import "time"

type RelationKind string

const (
	RelationLike   RelationKind = "like"
	RelationFollow RelationKind = "follow"
)

type Author struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type Like struct {
	UserID string `json:"userId"`
	PostID string `json:"postId"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	User      Author    `json:"user"`
}

type Post struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	MediaURL     string    `json:"mediaUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	User         Author    `json:"user"`
	Like         []Like    `json:"like"`
	Comments     []Comment `json:"comments,omitempty"`
	CommentCount *int      `json:"commentCount,omitempty"`
}

// CommentTotal returns the post's comment count, preferring the explicit count
// over the embedded list.
func (p Post) CommentTotal() int {
	if p.CommentCount != nil {
		return *p.CommentCount
	}
	return len(p.Comments)
}

type TreeInput struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
	Image       string  `json:"image,omitempty"`
}

// OrganizationInput is the registration form. Address keeps the backend's
// capitalized key.
type OrganizationInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Address     string  `json:"Address"`
}
