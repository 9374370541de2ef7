package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"selefli/internal/database"
	"selefli/internal/domain"
	"selefli/internal/events"
	"selefli/internal/metrics"
	"selefli/internal/models"

	"github.com/rs/zerolog"
)

type notificationStore interface {
	domain.NotificationRepository
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// NotificationService stores notifications exactly once and hands them to
// realtime and push delivery.
type NotificationService struct {
	repo     notificationStore
	eventBus domain.EventPublisher
	push     domain.PushEnqueuer
	logger   *zerolog.Logger
}

func NewNotificationService(repo notificationStore, eventBus domain.EventPublisher, push domain.PushEnqueuer, logger *zerolog.Logger) *NotificationService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NotificationService{repo: repo, eventBus: eventBus, push: push, logger: logger}
}

// IdempotencyKey is the hex sha256 of "recipient:type[:reference]".
func IdempotencyKey(recipientID string, t models.NotificationType, reference string) string {
	parts := []string{recipientID, string(t)}
	if reference != "" {
		parts = append(parts, reference)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// CreateNotification stores the request unless a notification with the same
// idempotency key exists, in which case the existing one is returned.
func (s *NotificationService) CreateNotification(ctx context.Context, req models.NotificationRequest) (*models.Notification, error) {
	if req.RecipientID == "" {
		return nil, invalid("recipient_id", "This field is required.")
	}
	if !req.Type.Valid() {
		return nil, invalid("notification_type", fmt.Sprintf("%q is not a valid choice.", req.Type))
	}
	if req.Title == "" {
		return nil, invalid("title", "This field is required.")
	}

	n := &models.Notification{
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Title:       req.Title,
		Body:        req.Body,
		Payload:     req.Payload,
	}
	if n.Payload == nil {
		n.Payload = models.Payload{}
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		n.IdempotencyKey = &key
	}

	created, err := s.repo.CreateNotification(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	if !created {
		s.logger.Debug().Str("notification_id", n.ID).Str("type", string(n.Type)).Msg("duplicate notification suppressed")
		return n, nil
	}

	metrics.IncNotification(string(n.Type))
	s.logger.Info().
		Str("notification_id", n.ID).
		Str("recipient_id", n.RecipientID).
		Str("type", string(n.Type)).
		Msg("notification created")

	s.broadcast(n)
	if req.SendPush && s.push != nil {
		if err := s.push.EnqueueNotification(ctx, n.ID); err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.ID).Msg("failed to enqueue push")
		}
	}
	return n, nil
}

func (s *NotificationService) broadcast(n *models.Notification) {
	if s.eventBus == nil {
		return
	}
	payload := events.NotificationEventPayload{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Type:           string(n.Type),
		Title:          n.Title,
		Body:           n.Body,
		Payload:        n.Payload,
		CreatedAt:      n.CreatedAt,
	}
	if err := s.eventBus.PublishJSON(events.EventNotificationCreated, payload); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("realtime broadcast failed")
	}
}

// dispatch is the fire-and-forget path used by the event helpers.
func (s *NotificationService) dispatch(ctx context.Context, recipientID string, t models.NotificationType, ref, title, body string, payload models.Payload) {
	_, err := s.CreateNotification(ctx, models.NotificationRequest{
		RecipientID:    recipientID,
		Type:           t,
		Title:          title,
		Body:           body,
		Payload:        payload,
		IdempotencyKey: IdempotencyKey(recipientID, t, ref),
		SendPush:       true,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("recipient_id", recipientID).
			Str("type", string(t)).
			Str("reference", ref).
			Msg("failed to dispatch notification")
	}
}

func bookingPayload(b *models.Booking, extra models.Payload) models.Payload {
	p := models.Payload{
		"booking_id": b.ID,
		"item_id":    b.ItemID,
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func (s *NotificationService) BookingCreated(ctx context.Context, b *models.Booking) {
	s.dispatch(ctx, b.OwnerID, models.NotificationBookingCreated, b.ID,
		"New Booking Request",
		fmt.Sprintf("%s wants to borrow your %s", b.BorrowerUsername, b.ItemTitle),
		bookingPayload(b, models.Payload{
			"borrower_id":    b.BorrowerID,
			"start_date":     b.StartDate.String(),
			"return_by_date": b.ReturnByDate.String(),
		}))
}

func (s *NotificationService) BookingAccepted(ctx context.Context, b *models.Booking) {
	var code any
	if b.BookingCode != nil {
		code = *b.BookingCode
	}
	s.dispatch(ctx, b.BorrowerID, models.NotificationBookingAccepted, b.ID,
		"Booking Accepted!",
		fmt.Sprintf("%s accepted your request for %s", b.OwnerUsername, b.ItemTitle),
		bookingPayload(b, models.Payload{"owner_id": b.OwnerID, "booking_code": code}))
}

func (s *NotificationService) BookingDeclined(ctx context.Context, b *models.Booking) {
	s.dispatch(ctx, b.BorrowerID, models.NotificationBookingDeclined, b.ID,
		"Booking Declined",
		fmt.Sprintf("%s declined your request for %s", b.OwnerUsername, b.ItemTitle),
		bookingPayload(b, models.Payload{"owner_id": b.OwnerID}))
}

// BookingStarted tells both sides the rental is running and confirms the
// deposit to the borrower.
func (s *NotificationService) BookingStarted(ctx context.Context, b *models.Booking) {
	due := b.ReturnByDate.Format("January 02, 2006")
	s.dispatch(ctx, b.BorrowerID, models.NotificationBookingStarted, b.ID,
		"Borrowing Started",
		fmt.Sprintf("Your borrowing of %s has started. Return by %s", b.ItemTitle, due),
		bookingPayload(b, models.Payload{"owner_id": b.OwnerID, "return_by_date": b.ReturnByDate.String()}))
	s.dispatch(ctx, b.OwnerID, models.NotificationBookingStarted, b.ID+"_owner",
		"Item Lending Started",
		fmt.Sprintf("%s has started borrowing your %s", b.BorrowerUsername, b.ItemTitle),
		bookingPayload(b, models.Payload{"borrower_id": b.BorrowerID, "return_by_date": b.ReturnByDate.String()}))
	s.dispatch(ctx, b.BorrowerID, models.NotificationDepositPaid, b.ID,
		"Deposit Confirmed",
		fmt.Sprintf("Your deposit for %s has been confirmed by %s", b.ItemTitle, b.OwnerUsername),
		bookingPayload(b, models.Payload{"owner_id": b.OwnerID}))
}

func (s *NotificationService) BookingReturned(ctx context.Context, b *models.Booking) {
	s.dispatch(ctx, b.OwnerID, models.NotificationItemReturned, b.ID,
		"Item Returned",
		fmt.Sprintf("%s has returned your %s", b.BorrowerUsername, b.ItemTitle),
		bookingPayload(b, models.Payload{"borrower_id": b.BorrowerID}))
	s.dispatch(ctx, b.BorrowerID, models.NotificationDepositReleased, b.ID,
		"Deposit Released",
		fmt.Sprintf("Your deposit for %s has been released", b.ItemTitle),
		bookingPayload(b, models.Payload{"owner_id": b.OwnerID}))
}

func (s *NotificationService) DepositKept(ctx context.Context, b *models.Booking) {
	s.dispatch(ctx, b.BorrowerID, models.NotificationDepositHeld, b.ID,
		"Deposit Kept",
		fmt.Sprintf("Your deposit for %s has been kept due to damage or loss", b.ItemTitle),
		bookingPayload(b, models.Payload{"owner_id": b.OwnerID}))
}

func (s *NotificationService) BookingCanceled(ctx context.Context, b *models.Booking) {
	s.dispatch(ctx, b.OwnerID, models.NotificationBookingCanceled, b.ID,
		"Booking Request Canceled",
		fmt.Sprintf("%s canceled their request for %s", b.BorrowerUsername, b.ItemTitle),
		bookingPayload(b, models.Payload{"borrower_id": b.BorrowerID}))
}

// ItemDeleted notifies borrowers whose pending or accepted requests went
// away with the item.
func (s *NotificationService) ItemDeleted(ctx context.Context, item *models.Item, affected []models.Booking) {
	for i := range affected {
		b := &affected[i]
		if b.Status != models.StatusPending && b.Status != models.StatusAccepted {
			continue
		}
		s.dispatch(ctx, b.BorrowerID, models.NotificationItemDeleted, b.ID,
			"Item Deleted",
			fmt.Sprintf("The item '%s' you requested has been removed by the owner", item.Title),
			models.Payload{"booking_id": b.ID, "item_id": item.ID, "owner_id": item.OwnerID})
	}
}

func (s *NotificationService) ItemUnavailable(ctx context.Context, item *models.Item, affected []models.Booking) {
	for i := range affected {
		b := &affected[i]
		if b.Status != models.StatusPending {
			continue
		}
		s.dispatch(ctx, b.BorrowerID, models.NotificationItemUnavailable, b.ID,
			"Item Unavailable",
			fmt.Sprintf("The item '%s' you requested is no longer available", item.Title),
			models.Payload{"booking_id": b.ID, "item_id": item.ID, "owner_id": item.OwnerID})
	}
}

func (s *NotificationService) raterName(ctx context.Context, raterID string) string {
	u, err := s.repo.GetUserByID(ctx, raterID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", raterID).Msg("rater lookup failed")
		return "Someone"
	}
	return u.Username
}

func ratingPayload(r *models.Rating) models.Payload {
	return models.Payload{
		"rating_id":    r.ID,
		"rater_id":     r.RaterID,
		"rating_value": r.Stars,
		"booking_id":   r.BookingID,
	}
}

func (s *NotificationService) RatingReceived(ctx context.Context, r *models.Rating) {
	s.dispatch(ctx, r.TargetUserID, models.NotificationRatingReceived, r.ID,
		"New Rating Received",
		fmt.Sprintf("%s rated you %s", s.raterName(ctx, r.RaterID), strings.Repeat("⭐", r.Stars)),
		ratingPayload(r))
}

// RatingModified is keyed on the new star value so each distinct change is
// reported once.
func (s *NotificationService) RatingModified(ctx context.Context, r *models.Rating) {
	s.dispatch(ctx, r.TargetUserID, models.NotificationRatingModified, fmt.Sprintf("%s:%d", r.ID, r.Stars),
		"Rating Updated",
		fmt.Sprintf("%s changed their rating to %s", s.raterName(ctx, r.RaterID), strings.Repeat("⭐", r.Stars)),
		ratingPayload(r))
}

func (s *NotificationService) BookingReminder(ctx context.Context, b *models.Booking) {
	s.dispatch(ctx, b.BorrowerID, models.NotificationBookingReminder, b.ID,
		"Return Reminder",
		fmt.Sprintf("Please return %s by %s", b.ItemTitle, b.ReturnByDate.Format("January 02, 2006")),
		bookingPayload(b, models.Payload{"owner_id": b.OwnerID, "return_by_date": b.ReturnByDate.String()}))
}

func (s *NotificationService) BookingOverdue(ctx context.Context, b *models.Booking) {
	s.dispatch(ctx, b.BorrowerID, models.NotificationBookingOverdue, b.ID,
		"Booking Overdue",
		fmt.Sprintf("%s was due back on %s", b.ItemTitle, b.ReturnByDate.Format("January 02, 2006")),
		bookingPayload(b, models.Payload{"owner_id": b.OwnerID, "return_by_date": b.ReturnByDate.String()}))
}

// NotificationPage is one page of the recipient's inbox.
type NotificationPage struct {
	Count   int                   `json:"count"`
	Results []models.Notification `json:"results"`
}

func (s *NotificationService) List(ctx context.Context, recipientID string, page, pageSize int) (*NotificationPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	items, err := s.repo.ListNotifications(ctx, recipientID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountNotifications(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{Count: total, Results: items}, nil
}

func (s *NotificationService) Get(ctx context.Context, recipientID, id string) (*models.Notification, error) {
	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	// Other users' and deleted notifications are indistinguishable from missing ones.
	if n.RecipientID != recipientID || n.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, recipientID, id string) (*models.Notification, error) {
	if err := s.repo.MarkNotificationRead(ctx, id, recipientID); err != nil {
		return nil, storageError(err)
	}
	return s.Get(ctx, recipientID, id)
}

func (s *NotificationService) MarkManyRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, invalid("notification_ids", "This field is required.")
	}
	return s.repo.MarkNotificationsRead(ctx, recipientID, ids)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.repo.MarkAllNotificationsRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("recipient_id", recipientID).Int64("count", n).Msg("notifications marked read")
	return n, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return s.repo.UnreadNotificationCount(ctx, recipientID)
}

func (s *NotificationService) Delete(ctx context.Context, recipientID, id string) error {
	err := s.repo.SoftDeleteNotification(ctx, id, recipientID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = models.DefaultPageSize
	}
	if pageSize > models.MaxPageSize {
		pageSize = models.MaxPageSize
	}
	return page, pageSize
}
