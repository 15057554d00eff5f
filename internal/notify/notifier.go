// Package notify dispatches review lifecycle notices: email to the affected
// users and a websocket broadcast for connected clients. Dispatch is always
// fire-and-forget: a review must process even when every email fails.
package notify

import (
	"context"
	"encoding/json"
	"log"

	"model-review-api/internal/model"
	"model-review-api/internal/moderation"
	"model-review-api/internal/repository"
	"model-review-api/internal/websocket"
)

// Default notification content, used unless the registered type overrides it.
const (
	RequestSubject  = "New Request For Approval"
	RequestBody     = "There has been a new request that needs your attention."
	CompleteSubject = "Your request has been processed"
	CompleteBody    = "Your request has been processed, please log in to view the status."
)

// Dispatcher implements service.ReviewNotifier.
type Dispatcher struct {
	sender Sender
	users  repository.UserRepository
	hub    *websocket.Hub
}

func NewDispatcher(sender Sender, users repository.UserRepository, hub *websocket.Hub) *Dispatcher {
	return &Dispatcher{sender: sender, users: users, hub: hub}
}

// RequestForReview notifies each newly assigned reviewer that a submission
// awaits their decision.
func (d *Dispatcher) RequestForReview(ctx context.Context, cfg *moderation.TypeConfig, review *model.ModelReview, assignments []model.Reviewer) {
	recipients := d.assignmentUsers(ctx, assignments)

	if cfg.RequestNotifier != nil {
		if err := cfg.RequestNotifier(ctx, review, recipients); err != nil {
			log.Printf("request-for-review notifier failed for review %s: %v", review.ID, err)
		}
		d.broadcast("review.requested", review)
		return
	}

	subject := defaultString(cfg.RequestSubject, RequestSubject)
	body := defaultString(cfg.RequestBody, RequestBody)
	for _, user := range recipients {
		if user.Email == "" {
			continue
		}
		err := d.sender.Send(Payload{
			Name:    user.DisplayName(),
			Email:   user.Email,
			Subject: subject,
			Message: body,
		})
		if err != nil {
			log.Printf("failed to email reviewer %s for review %s: %v", user.Username, review.ID, err)
		}
	}

	d.broadcast("review.requested", review)
}

// ReviewComplete tells the submitter their request has been processed.
func (d *Dispatcher) ReviewComplete(ctx context.Context, cfg *moderation.TypeConfig, review *model.ModelReview) {
	var recipients []model.User
	if review.UserID != nil {
		if user, err := d.users.GetByID(ctx, review.UserID.String()); err == nil {
			recipients = append(recipients, *user)
		}
	}

	if cfg.CompleteNotifier != nil {
		if err := cfg.CompleteNotifier(ctx, review, recipients); err != nil {
			log.Printf("review-complete notifier failed for review %s: %v", review.ID, err)
		}
		d.broadcast("review.completed", review)
		return
	}

	subject := defaultString(cfg.CompleteSubject, CompleteSubject)
	body := defaultString(cfg.CompleteBody, CompleteBody)
	for _, user := range recipients {
		if user.Email == "" {
			continue
		}
		err := d.sender.Send(Payload{
			Name:    user.DisplayName(),
			Email:   user.Email,
			Subject: subject,
			Message: body,
		})
		if err != nil {
			log.Printf("failed to email submitter %s for review %s: %v", user.Username, review.ID, err)
		}
	}

	d.broadcast("review.completed", review)
}

func (d *Dispatcher) assignmentUsers(ctx context.Context, assignments []model.Reviewer) []model.User {
	users := make([]model.User, 0, len(assignments))
	for _, a := range assignments {
		if a.Reviewed {
			continue
		}
		if a.User != nil {
			users = append(users, *a.User)
			continue
		}
		if user, err := d.users.GetByID(ctx, a.UserID.String()); err == nil {
			users = append(users, *user)
		}
	}
	return users
}

func (d *Dispatcher) broadcast(event string, review *model.ModelReview) {
	if d.hub == nil {
		return
	}
	message, err := json.Marshal(map[string]interface{}{
		"event":        event,
		"review_id":    review.ID.String(),
		"content_type": review.ContentType,
		"object_id":    review.ObjectID.String(),
		"status":       review.ReviewStatus,
	})
	if err != nil {
		return
	}
	select {
	case d.hub.Broadcast <- message:
	default:
		// no listeners draining the hub; drop the event
	}
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
