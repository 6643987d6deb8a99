package dispatch

import (
	"context"
	"errors"

	"github.com/example/ride-pooling/internal/models"
)

// Notifier tells one user about a committed match. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID string, ev models.MatchEvent) error
}

// Notification is the payload delivered to a user.
type Notification struct {
	Type          string            `json:"type"`
	UserID        string            `json:"user_id"`
	RequestID     string            `json:"request_id"`
	PartnerID     string            `json:"partner_request_id"`
	PartnerUserID string            `json:"partner_user_id"`
	Event         models.MatchEvent `json:"event"`
}

// NewNotification orients ev from userID's point of view.
func NewNotification(userID string, ev models.MatchEvent) Notification {
	n := Notification{Type: "match", UserID: userID, Event: ev}
	if userID == ev.PartnerUserID {
		n.RequestID, n.PartnerID, n.PartnerUserID = ev.PartnerID, ev.SearcherID, ev.SearcherUserID
	} else {
		n.RequestID, n.PartnerID, n.PartnerUserID = ev.SearcherID, ev.PartnerID, ev.PartnerUserID
	}
	return n
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, userID string, ev models.MatchEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, userID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyPair notifies both sides of ev.
func NotifyPair(ctx context.Context, n Notifier, ev models.MatchEvent) error {
	return errors.Join(
		n.Notify(ctx, ev.SearcherUserID, ev),
		n.Notify(ctx, ev.PartnerUserID, ev),
	)
}
