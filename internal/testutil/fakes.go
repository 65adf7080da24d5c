// Package testutil holds recording fakes shared by service and handler tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tendant/simple-classroom/pkg/events"
)

// Published is one recorded Publish call.
type Published struct {
	Room  events.Room
	Event events.Event
}

// Publisher records every published event.
type Publisher struct {
	mu     sync.Mutex
	events []Published
}

func (p *Publisher) Publish(_ context.Context, room events.Room, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Published{Room: room, Event: ev})
}

// All returns every recorded event.
func (p *Publisher) All() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}

// Named returns the recorded events with the given tag.
func (p *Publisher) Named(name string) []Published {
	var out []Published
	for _, e := range p.All() {
		if e.Event.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// Rooms returns the rooms that received events with the given tag.
func (p *Publisher) Rooms(name string) []events.Room {
	var out []events.Room
	for _, e := range p.Named(name) {
		out = append(out, e.Room)
	}
	return out
}

// Mail is one recorded email.
type Mail struct {
	Kind        string
	To          string
	CourseTitle string
}

// Mailer records emails. When Fail is set every send returns an error.
type Mailer struct {
	mu   sync.Mutex
	sent []Mail
	Fail bool
}

var ErrMailerDown = errors.New("mailer down")

func (m *Mailer) add(kind, to, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return ErrMailerDown
	}
	m.sent = append(m.sent, Mail{Kind: kind, To: to, CourseTitle: title})
	return nil
}

func (m *Mailer) SendInvitationEmail(_ context.Context, to, courseTitle, _ string, _ time.Time) error {
	return m.add("invitation", to, courseTitle)
}

func (m *Mailer) SendEnrollmentEmail(_ context.Context, to, courseTitle, _ string) error {
	return m.add("enrollment", to, courseTitle)
}

func (m *Mailer) SendRemovalEmail(_ context.Context, to, courseTitle string) error {
	return m.add("removal", to, courseTitle)
}

// Sent returns every recorded email.
func (m *Mailer) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}

// Clock is a settable test clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
