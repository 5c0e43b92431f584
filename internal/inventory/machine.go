// Package inventory owns the legal status transitions of a book. It is the
// single source of truth for what circulation events a book in a given
// status accepts; persistence of the resulting status is the caller's job,
// inside the caller's transaction.
package inventory

import (
	"github.com/pkg/errors"

	"github.com/Astemirdum/circulation-service/internal/model"
)

// Event is a circulation action applied to a book.
type Event string

const (
	EventBorrow  Event = "BORROW"
	EventReturn  Event = "RETURN"
	EventReserve Event = "RESERVE"
	EventRelease Event = "RELEASE"
)

var ErrInvalidTransition = errors.New("invalid inventory transition")

// transitions is the full legal table. DELETED accepts no event. DAMAGED and
// LOST reject lending but still accept RETURN: a copy marked damaged or lost
// while out goes back on the shelf once it is actually handed in.
var transitions = map[model.BookStatus]map[Event]model.BookStatus{
	model.BookStatusAvailable: {
		EventBorrow:  model.BookStatusBorrowed,
		EventReserve: model.BookStatusReserved,
	},
	model.BookStatusReserved: {
		EventBorrow:  model.BookStatusBorrowed,
		EventRelease: model.BookStatusAvailable,
	},
	model.BookStatusBorrowed: {
		EventReturn: model.BookStatusAvailable,
	},
	model.BookStatusDamaged: {
		EventReturn: model.BookStatusAvailable,
	},
	model.BookStatusLost: {
		EventReturn: model.BookStatusAvailable,
	},
}

// CanTransition reports whether ev is legal for a book currently in cur.
func CanTransition(cur model.BookStatus, ev Event) bool {
	_, ok := transitions[cur][ev]
	return ok
}

// Apply returns the status after ev. The current status is returned together
// with ErrInvalidTransition when cur does not permit the event.
func Apply(cur model.BookStatus, ev Event) (model.BookStatus, error) {
	next, ok := transitions[cur][ev]
	if !ok {
		return cur, errors.Wrapf(ErrInvalidTransition, "%s on %s", ev, cur)
	}
	return next, nil
}
