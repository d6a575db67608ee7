// Package api holds the black box HTTP tests and the posts API they run against.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
)

// Post is one entry of the posts API
type Post struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// PostsHandler serves a posts API shaped like jsonplaceholder: GET /posts/{id} and POST /posts
type PostsHandler struct {
	mu     sync.RWMutex
	posts  map[int]Post
	nextID int
	router *mux.Router
}

// NewPostsHandler creates a handler holding the given posts.
// Created posts get ids above the highest seeded one.
func NewPostsHandler(seed []Post) *PostsHandler {
	h := &PostsHandler{
		posts:  make(map[int]Post, len(seed)),
		nextID: 1,
	}
	for _, p := range seed {
		h.posts[p.ID] = p
		if p.ID >= h.nextID {
			h.nextID = p.ID + 1
		}
	}

	r := mux.NewRouter()
	r.HandleFunc("/posts/{id:[0-9]+}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/posts", h.handleCreate).Methods(http.MethodPost)
	h.router = r
	return h
}

func (h *PostsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *PostsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid post id"})
		return
	}

	h.mu.RLock()
	post, ok := h.posts[id]
	h.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "post not found"})
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var post Post
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	if strings.TrimSpace(post.Title) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "title is required"})
		return
	}

	h.mu.Lock()
	post.ID = h.nextID
	h.nextID++
	h.posts[post.ID] = post
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, post)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response", "error", err)
	}
}
