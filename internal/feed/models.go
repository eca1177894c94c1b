package feed

import (
	"path"
	"strings"
	"time"

	"ecomap/internal/api"
	"ecomap/internal/mutation"
)

type MediaKind string

const (
	MediaNone  MediaKind = ""
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaSVG   MediaKind = "svg"
)

// MediaKindOf classifies a media URL by its extension.
func MediaKindOf(url string) MediaKind {
	if url == "" {
		return MediaNone
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	switch strings.ToLower(path.Ext(url)) {
	case ".mp4":
		return MediaVideo
	case ".svg":
		return MediaSVG
	}
	return MediaImage
}

// Post is one feed entry. Like is only changed by the like engine.
type Post struct {
	ID           string
	Content      string
	MediaURL     string
	CreatedAt    time.Time
	Author       api.Author
	Like         mutation.Relation
	CommentCount int
}

func fromAPI(p api.Post) *Post {
	members := make([]string, 0, len(p.Like))
	for _, l := range p.Like {
		members = append(members, l.UserID)
	}
	return &Post{
		ID:           p.ID,
		Content:      p.Content,
		MediaURL:     p.MediaURL,
		CreatedAt:    p.CreatedAt,
		Author:       p.User,
		Like:         mutation.NewRelation(p.ID, members...),
		CommentCount: p.CommentTotal(),
	}
}

// PostView is a post as rendered for one viewer.
type PostView struct {
	ID           string        `json:"id"`
	Content      string        `json:"content"`
	MediaURL     string        `json:"media_url,omitempty"`
	MediaKind    MediaKind     `json:"media_kind,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	Author       api.Author    `json:"author"`
	Like         mutation.View `json:"like"`
	CommentCount int           `json:"comment_count"`
}

func (p *Post) View(actorID string) PostView {
	return PostView{
		ID:           p.ID,
		Content:      p.Content,
		MediaURL:     p.MediaURL,
		MediaKind:    MediaKindOf(p.MediaURL),
		CreatedAt:    p.CreatedAt,
		Author:       p.Author,
		Like:         p.Like.View(actorID),
		CommentCount: p.CommentCount,
	}
}
