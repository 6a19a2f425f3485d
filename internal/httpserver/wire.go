package httpserver

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

type userResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expiresIn"` // seconds
	User      userResponse `json:"user"`
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

type listResponse struct {
	Message string         `json:"message"`
	Posts   []postResponse `json:"posts"`
	Total   int            `json:"total"`
}

type postMessageResponse struct {
	Message string       `json:"message"`
	Post    postResponse `json:"post"`
}

func toPostResponse(p *domain.Post) postResponse {
	resp := postResponse{
		ID:      p.ID,
		Creator: p.Creator,
		Content: p.Content,
		Date:    p.Date,
		Edited:  p.Edited,
	}
	if p.Image != nil {
		resp.Image = &imageResponse{MimeType: p.Image.MimeType, Binary: p.Image.Binary}
	}
	return resp
}

func toUserResponse(id domain.Identity) userResponse {
	return userResponse{ID: id.ID, FirstName: id.FirstName, LastName: id.LastName}
}
