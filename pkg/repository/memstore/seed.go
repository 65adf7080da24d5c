package memstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

// Seed is the document accepted by Store.Seed. Users and courses are owned
// by other services, so an in-memory store has no other way to get them.
type Seed struct {
	Users   []SeedUser   `json:"users" validate:"dive"`
	Courses []SeedCourse `json:"courses" validate:"dive"`
}

// SeedUser is a user directory entry.
type SeedUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email" validate:"required,email"`
	Name  *string   `json:"name,omitempty"`
}

// SeedCourse is a course with zeroed aggregates.
type SeedCourse struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"ownerId"`
	Title      string    `json:"title" validate:"required,max=200"`
	Published  bool      `json:"published"`
	Visibility string    `json:"visibility" validate:"oneof=public private"`
}

var seedValidator = validator.New(validator.WithRequiredStructEnabled())

// Seed loads users and courses from a JSON document. Nothing is stored
// unless the whole document is valid.
func (s *Store) Seed(r io.Reader, now time.Time) error {
	var doc Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	if err := seedValidator.Struct(doc); err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}

	users := make(map[uuid.UUID]bool, len(doc.Users))
	for i, u := range doc.Users {
		if u.ID == uuid.Nil {
			return fmt.Errorf("invalid seed: users[%d] has no id", i)
		}
		users[u.ID] = true
	}
	for i, c := range doc.Courses {
		if c.ID == uuid.Nil {
			return fmt.Errorf("invalid seed: courses[%d] has no id", i)
		}
		if !users[c.OwnerID] {
			return fmt.Errorf("invalid seed: courses[%d] owner %s is not a seeded user", i, c.OwnerID)
		}
	}
	if len(doc.Users) == 0 && len(doc.Courses) == 0 {
		return errors.New("invalid seed: no users or courses")
	}

	for _, u := range doc.Users {
		s.PutUser(&domain.User{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: now})
	}
	for _, c := range doc.Courses {
		s.PutCourse(&domain.Course{
			ID:         c.ID,
			OwnerID:    c.OwnerID,
			Title:      c.Title,
			Published:  c.Published,
			Visibility: domain.Visibility(c.Visibility),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return nil
}
