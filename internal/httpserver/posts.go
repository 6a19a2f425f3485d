package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/blackmichael/postboard/internal/domain"
	"github.com/gorilla/mux"
)

// multipart overhead allowed on top of the image limit
const formOverhead = 1 << 20

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	pageSize, err := queryInt(r, "pagesize", domain.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	result, err := s.posts.ListPosts(r.Context(), pageSize, page)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := listResponse{
		Message: "Posts fetched successfully",
		Posts:   make([]postResponse, 0, len(result.Posts)),
		Total:   result.Total,
	}
	for i := range result.Posts {
		resp.Posts = append(resp.Posts, toPostResponse(&result.Posts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.posts.GetPost(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	content, image, _, err := s.parsePostForm(w, r)
	if err != nil {
		s.writeFormError(w, err)
		return
	}

	post, err := s.posts.CreatePost(r.Context(), claims.Subject, content, image)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, postMessageResponse{Message: "Post added successfully", Post: toPostResponse(post)})
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	content, image, deleteImage, err := s.parsePostForm(w, r)
	if err != nil {
		s.writeFormError(w, err)
		return
	}

	post, err := s.posts.EditPost(r.Context(), claims.Subject, mux.Vars(r)["id"], domain.PostUpdate{
		Content:     content,
		Image:       image,
		DeleteImage: deleteImage,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postMessageResponse{Message: "Update successful", Post: toPostResponse(post)})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	if err := s.posts.DeletePost(r.Context(), claims.Subject, mux.Vars(r)["id"]); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Post deleted successfully"})
}

var errImageTooLarge = errors.New("image too large")

// parsePostForm reads the multipart fields content, image and deleteImage.
func (s *Server) parsePostForm(w http.ResponseWriter, r *http.Request) (string, *domain.Image, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, false, errImageTooLarge
		}
		return "", nil, false, fmt.Errorf("parse form: %w", err)
	}

	content := r.FormValue("content")
	deleteImage, _ := strconv.ParseBool(r.FormValue("deleteImage"))

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return content, nil, deleteImage, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("read image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxImageBytes+1))
	if err != nil {
		return "", nil, false, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		return "", nil, false, errImageTooLarge
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return content, &domain.Image{MimeType: mimeType, Binary: data}, deleteImage, nil
}

func (s *Server) writeFormError(w http.ResponseWriter, err error) {
	if errors.Is(err, errImageTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "ImageTooLarge",
			fmt.Sprintf("image exceeds %d bytes", s.cfg.MaxImageBytes))
		return
	}
	writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
