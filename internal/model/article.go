package model

import "time"

// Article is a post in the feed together with its comments.
//
// There are two identifiers:
//   - ID is the public integer id clients use in URLs (/articles/42). Stores
//     assign it from an atomic counter, so it is unique and grows by one.
//   - Ref is the store's own identifier (a Mongo ObjectID in hex, or an xid for
//     SQLite). It is exposed as "_id" because older clients address articles
//     by it, and GET /articles/{id} falls back to it.
//
// Author is the username that owns the article. It is the key used both for
// feed filtering and for the text-edit ownership check. UserID is only
// meaningful for articles imported from the placeholder feed.
type Article struct {
	Ref      string    `json:"_id"`
	ID       int64     `json:"id"`
	UserID   int64     `json:"userId"`
	Author   string    `json:"author"`
	Text     string    `json:"text"`
	Date     time.Time `json:"date"`
	Comments []Comment `json:"comments"`
}

// Comment is appended to an article and never edited afterwards.
type Comment struct {
	CommentID string    `json:"commentId"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Date      time.Time `json:"date"`
}

// Pagination describes one page of the feed.
type Pagination struct {
	Current int   `json:"current"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
}

// NewPagination computes the page count for total items split into pages of limit.
// limit must be at least 1.
func NewPagination(page, limit int, total int64) Pagination {
	return Pagination{
		Current: page,
		Limit:   limit,
		Total:   total,
		Pages:   int((total + int64(limit) - 1) / int64(limit)),
	}
}
