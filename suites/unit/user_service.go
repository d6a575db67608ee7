package unit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/webqa/qa-runner/suites/fixture"
)

const DefaultCacheSize = 128

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidUser  = errors.New("name and email are required")
	ErrCreateFailed = errors.New("failed to create user")
)

// UserService reads and creates users through a remote API, caching reads
type UserService struct {
	baseURL string
	client  Doer
	cache   *lru.Cache
}

// NewUserService creates a UserService. A non-positive cacheSize uses DefaultCacheSize.
func NewUserService(baseURL string, client Doer, cacheSize int) (*UserService, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create user cache: %w", err)
	}
	return &UserService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		cache:   cache,
	}, nil
}

// GetUser returns the user, from the cache when it was fetched before
func (s *UserService) GetUser(ctx context.Context, id int64) (*fixture.User, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*fixture.User), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/%d", s.baseURL, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	default:
		return nil, fmt.Errorf("get user %d: unexpected status %d", id, resp.StatusCode)
	}

	var user fixture.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", id, err)
	}
	s.cache.Add(id, &user)
	return &user, nil
}

// CreateUser validates the user and posts it to the API
func (s *UserService) CreateUser(ctx context.Context, user fixture.User) (*fixture.User, error) {
	if strings.TrimSpace(user.Name) == "" || strings.TrimSpace(user.Email) == "" {
		return nil, ErrInvalidUser
	}

	body, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/users", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: status %d", ErrCreateFailed, resp.StatusCode)
	}
	var created fixture.User
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode created user: %w", err)
	}
	return &created, nil
}

// Cached reports whether the user is in the cache
func (s *UserService) Cached(id int64) bool {
	return s.cache.Contains(id)
}

// CacheLen returns the number of cached users
func (s *UserService) CacheLen() int {
	return s.cache.Len()
}

// ClearCache drops every cached user
func (s *UserService) ClearCache() {
	s.cache.Purge()
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
