package client

import (
	"time"

	"github.com/blackmichael/postboard/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type signupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
	User      struct {
		ID        string `json:"id"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"user"`
}

func (r tokenResponse) session(now time.Time) *Session {
	return &Session{
		Token:     r.Token,
		ExpiresAt: now.Add(time.Duration(r.ExpiresIn) * time.Second),
		User:      domain.Identity{ID: r.User.ID, FirstName: r.User.FirstName, LastName: r.User.LastName},
	}
}

type imageResponse struct {
	MimeType string `json:"mimeType"`
	Binary   []byte `json:"binary"`
}

type postResponse struct {
	ID      string         `json:"id"`
	Creator string         `json:"creator"`
	Content string         `json:"content"`
	Image   *imageResponse `json:"image"`
	Date    time.Time      `json:"date"`
	Edited  bool           `json:"edited"`
}

func (p postResponse) toDomain() domain.Post {
	post := domain.Post{
		ID:      p.ID,
		Creator: p.Creator,
		Content: p.Content,
		Date:    p.Date,
		Edited:  p.Edited,
	}
	if p.Image != nil {
		post.Image = &domain.Image{MimeType: p.Image.MimeType, Binary: p.Image.Binary}
	}
	return post
}

type listResponse struct {
	Message string         `json:"message"`
	Posts   []postResponse `json:"posts"`
	Total   int            `json:"total"`
}

type postMessageResponse struct {
	Message string       `json:"message"`
	Post    postResponse `json:"post"`
}
