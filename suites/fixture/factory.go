package fixture

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/brianvoe/gofakeit/v7"
)

const (
	MinAge = 18
	MaxAge = 80
)

// User is the record shared by the store, the registration flow and the API tests
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

// UserFactory builds fake users. Emails carry a sequence number so a factory never repeats one.
type UserFactory struct {
	faker *gofakeit.Faker
	seq   atomic.Uint64
}

// NewUserFactory creates a factory. A zero seed picks a random one.
func NewUserFactory(seed uint64) *UserFactory {
	return &UserFactory{faker: gofakeit.New(seed)}
}

// Build returns a user that has not been stored yet
func (f *UserFactory) Build() User {
	n := f.seq.Add(1)
	local, domain, found := strings.Cut(f.faker.Email(), "@")
	if !found {
		domain = "example.com"
	}
	return User{
		Name:  f.faker.Name(),
		Email: fmt.Sprintf("%s.%d@%s", local, n, domain),
		Age:   f.faker.IntRange(MinAge, MaxAge),
	}
}

// BuildBatch returns n users with distinct emails
func (f *UserFactory) BuildBatch(n int) []User {
	users := make([]User, n)
	for i := range users {
		users[i] = f.Build()
	}
	return users
}
