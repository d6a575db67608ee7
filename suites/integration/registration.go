// Package integration exercises the user registration flow across the store and the notifier.
package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/webqa/qa-runner/suites/fixture"
)

// DefaultAge is used when a registration carries no age
const DefaultAge = 25

var ErrInvalidRegistration = errors.New("name and email are required")

// Notifier sends the welcome message of a new user
type Notifier interface {
	SendWelcome(ctx context.Context, email, name string) (string, error)
}

// RecordingNotifier keeps every message it was asked to send
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *RecordingNotifier) SendWelcome(_ context.Context, email, name string) (string, error) {
	msg := fmt.Sprintf("Welcome email sent to %s for %s", email, name)
	n.mu.Lock()
	n.messages = append(n.messages, msg)
	n.mu.Unlock()
	return msg, nil
}

// Messages returns a copy of the sent messages
func (n *RecordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// RegistrationService stores new users and welcomes them
type RegistrationService struct {
	store    *fixture.Store
	notifier Notifier
}

func NewRegistrationService(store *fixture.Store, notifier Notifier) *RegistrationService {
	return &RegistrationService{store: store, notifier: notifier}
}

// Register validates, stores and welcomes the user, then returns it as stored.
// Nothing is sent when the store rejects the user.
func (s *RegistrationService) Register(ctx context.Context, user fixture.User) (fixture.User, error) {
	if strings.TrimSpace(user.Name) == "" || strings.TrimSpace(user.Email) == "" {
		return fixture.User{}, ErrInvalidRegistration
	}
	if user.Age == 0 {
		user.Age = DefaultAge
	}

	id, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return fixture.User{}, fmt.Errorf("register %s: %w", user.Email, err)
	}
	if _, err := s.notifier.SendWelcome(ctx, user.Email, user.Name); err != nil {
		return fixture.User{}, fmt.Errorf("welcome %s: %w", user.Email, err)
	}
	return s.store.GetUser(ctx, id)
}
