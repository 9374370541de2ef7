package service

import (
	"context"
	"errors"
	"fmt"

	"selefli/internal/database"
	"selefli/internal/domain"
	"selefli/internal/events"
	"selefli/internal/metrics"
	"selefli/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultTransactionsLimit = 10

type BookingService struct {
	repo     domain.BookingRepository
	notifier domain.Notifier
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	newCode  func() (string, error)
}

func NewBookingService(repo domain.BookingRepository, notifier domain.Notifier, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:     repo,
		notifier: notifier,
		eventBus: eventBus,
		logger:   logger,
		newCode:  randomBookingCode,
	}
}

type CreateBookingInput struct {
	ItemID       string           `json:"item_id"`
	OwnerID      string           `json:"owner_id"`
	StartDate    models.Date      `json:"start_date"`
	ReturnByDate models.Date      `json:"return_by_date"`
	TotalCost    *decimal.Decimal `json:"total_cost"`
}

func (in CreateBookingInput) validate() error {
	switch {
	case in.ItemID == "":
		return invalid("item_id", "This field is required.")
	case in.StartDate.IsZero():
		return invalid("start_date", "This field is required.")
	case in.ReturnByDate.IsZero():
		return invalid("return_by_date", "This field is required.")
	case !in.ReturnByDate.After(in.StartDate.Time):
		return invalid("return_by_date", "Return date must be after start date.")
	case in.TotalCost != nil && in.TotalCost.IsNegative():
		return invalid("total_cost", "Total cost cannot be negative.")
	}
	return nil
}

// Create files a booking request by the borrower on someone else's item.
func (s *BookingService) Create(ctx context.Context, borrowerID string, in CreateBookingInput) (*models.Booking, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	item, err := s.repo.GetItem(ctx, in.ItemID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, invalid("item_id", "Item does not exist.")
		}
		return nil, fmt.Errorf("load item: %w", err)
	}
	if in.OwnerID != "" && in.OwnerID != item.OwnerID {
		return nil, invalid("owner_id", "Owner does not match the item owner.")
	}
	if item.OwnerID == borrowerID {
		return nil, invalid("borrower_id", "You cannot borrow your own item.")
	}

	booking := &models.Booking{
		ItemID:       item.ID,
		OwnerID:      item.OwnerID,
		BorrowerID:   borrowerID,
		StartDate:    in.StartDate,
		ReturnByDate: in.ReturnByDate,
	}
	if in.TotalCost != nil {
		booking.TotalCost = decimal.NewNullDecimal(*in.TotalCost)
	}

	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		switch {
		case errors.Is(err, database.ErrItemUnavailable):
			return nil, invalid("item_id", "Item is not available for booking.")
		case errors.Is(err, database.ErrActiveBookingExists):
			return nil, invalid("item_id", "You already have an open booking for this item.")
		case errors.Is(err, database.ErrBookingOverlap):
			return nil, invalid("start_date", "The item is already booked for these dates.")
		case errors.Is(err, database.ErrOwnerMismatch):
			return nil, invalid("owner_id", "Owner does not match the item owner.")
		case errors.Is(err, database.ErrNotFound):
			return nil, invalid("item_id", "Item does not exist.")
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	created := s.reload(ctx, booking)
	s.logger.Info().
		Str("booking_id", created.ID).
		Str("item_id", created.ItemID).
		Str("borrower_id", borrowerID).
		Msg("booking requested")

	metrics.IncBookingTransition(string(models.StatusPending))
	s.publish(created, borrowerID)
	s.notifier.BookingCreated(ctx, created)
	return created, nil
}

// Get returns a booking to one of its participants.
func (s *BookingService) Get(ctx context.Context, actorID, id string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	if !b.IsParticipant(actorID) {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *BookingService) List(ctx context.Context, actorID string) ([]models.Booking, error) {
	return s.repo.ListBookingsForUser(ctx, actorID)
}

// Incoming lists requests made on the actor's items.
func (s *BookingService) Incoming(ctx context.Context, actorID string) ([]models.Booking, error) {
	return s.repo.ListIncomingBookings(ctx, actorID)
}

// MyRequests lists the actor's own requests.
func (s *BookingService) MyRequests(ctx context.Context, actorID string) ([]models.Booking, error) {
	return s.repo.ListMyRequests(ctx, actorID)
}

func (s *BookingService) Transactions(ctx context.Context, actorID string, limit int) ([]models.UserTransaction, error) {
	if limit <= 0 {
		limit = defaultTransactionsLimit
	}
	if limit > models.MaxPageSize {
		limit = models.MaxPageSize
	}
	return s.repo.ListUserTransactions(ctx, actorID, limit)
}

type role int

const (
	roleOwner role = iota
	roleBorrower
	roleParticipant
)

// transition describes one edge of the booking state machine.
type transition struct {
	name        string
	role        role
	fromStatus  models.BookingStatus
	fromDeposit models.DepositStatus
	toStatus    models.BookingStatus
	toDeposit   models.DepositStatus
	assignCode  bool
}

var (
	acceptTransition = transition{
		name: "accept", role: roleOwner,
		fromStatus: models.StatusPending, fromDeposit: models.DepositNone,
		toStatus: models.StatusAccepted, toDeposit: models.DepositNone,
		assignCode: true,
	}
	declineTransition = transition{
		name: "decline", role: roleOwner,
		fromStatus: models.StatusPending, fromDeposit: models.DepositNone,
		toStatus: models.StatusDeclined, toDeposit: models.DepositNone,
	}
	depositReceivedTransition = transition{
		name: "mark deposit received", role: roleOwner,
		fromStatus: models.StatusAccepted, fromDeposit: models.DepositNone,
		toStatus: models.StatusActive, toDeposit: models.DepositReceived,
	}
	depositReturnedTransition = transition{
		name: "mark deposit returned", role: roleParticipant,
		fromStatus: models.StatusActive, fromDeposit: models.DepositReceived,
		toStatus: models.StatusCompleted, toDeposit: models.DepositReturned,
	}
	depositKeptTransition = transition{
		name: "keep deposit", role: roleOwner,
		fromStatus: models.StatusActive, fromDeposit: models.DepositReceived,
		toStatus: models.StatusClosed, toDeposit: models.DepositKept,
	}
)

func (s *BookingService) Accept(ctx context.Context, actorID, id string) (*models.Booking, error) {
	b, err := s.apply(ctx, actorID, id, acceptTransition)
	if err != nil {
		return nil, err
	}
	s.notifier.BookingAccepted(ctx, b)
	return b, nil
}

func (s *BookingService) Decline(ctx context.Context, actorID, id string) (*models.Booking, error) {
	b, err := s.apply(ctx, actorID, id, declineTransition)
	if err != nil {
		return nil, err
	}
	s.notifier.BookingDeclined(ctx, b)
	return b, nil
}

// MarkDepositReceived starts the rental period.
func (s *BookingService) MarkDepositReceived(ctx context.Context, actorID, id string) (*models.Booking, error) {
	b, err := s.apply(ctx, actorID, id, depositReceivedTransition)
	if err != nil {
		return nil, err
	}
	s.notifier.BookingStarted(ctx, b)
	return b, nil
}

// MarkDepositReturned completes the booking. Either participant may confirm it.
func (s *BookingService) MarkDepositReturned(ctx context.Context, actorID, id string) (*models.Booking, error) {
	b, err := s.apply(ctx, actorID, id, depositReturnedTransition)
	if err != nil {
		return nil, err
	}
	s.notifier.BookingReturned(ctx, b)
	return b, nil
}

// KeepDeposit closes the booking with the deposit retained by the owner.
func (s *BookingService) KeepDeposit(ctx context.Context, actorID, id string) (*models.Booking, error) {
	b, err := s.apply(ctx, actorID, id, depositKeptTransition)
	if err != nil {
		return nil, err
	}
	s.notifier.DepositKept(ctx, b)
	return b, nil
}

func (s *BookingService) apply(ctx context.Context, actorID, id string, t transition) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	if err := authorize(b, actorID, t.role); err != nil {
		return nil, err
	}
	if b.Status != t.fromStatus || b.DepositStatus != t.fromDeposit {
		return nil, conflict("cannot %s a booking that is %s with deposit %s; it must be %s with deposit %s",
			t.name, b.Status, b.DepositStatus, t.fromStatus, t.fromDeposit)
	}

	tr := models.BookingTransition{
		FromStatus:        t.fromStatus,
		FromDepositStatus: t.fromDeposit,
		Status:            t.toStatus,
		DepositStatus:     t.toDeposit,
	}

	var updated *models.Booking
	if t.assignCode && b.BookingCode == nil {
		updated, err = s.transitionWithCode(ctx, b, tr)
	} else {
		updated, err = s.repo.TransitionBooking(ctx, b.ID, b.Version, tr)
	}
	if err != nil {
		return nil, storageError(err)
	}

	s.logger.Info().
		Str("booking_id", updated.ID).
		Str("actor_id", actorID).
		Str("from", string(t.fromStatus)).
		Str("to", string(t.toStatus)).
		Msg("booking transitioned")
	metrics.IncBookingTransition(string(t.toStatus))
	s.publish(updated, actorID)
	return updated, nil
}

// transitionWithCode retries on code collisions and falls back to a code
// derived from the booking id on the last attempt.
func (s *BookingService) transitionWithCode(ctx context.Context, b *models.Booking, tr models.BookingTransition) (*models.Booking, error) {
	for attempt := 1; attempt <= bookingCodeAttempts; attempt++ {
		code := s.nextCode(b.ID, attempt)
		tr.Code = &code
		updated, err := s.repo.TransitionBooking(ctx, b.ID, b.Version, tr)
		if errors.Is(err, database.ErrDuplicate) {
			s.logger.Warn().Str("booking_id", b.ID).Int("attempt", attempt).Msg("booking code collision")
			continue
		}
		return updated, err
	}
	return nil, conflict("could not assign a unique booking code, try again")
}

func (s *BookingService) nextCode(bookingID string, attempt int) string {
	if attempt == bookingCodeAttempts {
		return fallbackBookingCode(bookingID)
	}
	code, err := s.newCode()
	if err != nil {
		s.logger.Warn().Err(err).Msg("random booking code failed, using fallback")
		return fallbackBookingCode(bookingID)
	}
	return code
}

// GenerateCode returns the booking's reference code, assigning one if it has none.
func (s *BookingService) GenerateCode(ctx context.Context, actorID, id string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	if !b.IsParticipant(actorID) {
		return nil, ErrForbidden
	}
	if b.BookingCode != nil {
		return b, nil
	}
	for attempt := 1; attempt <= bookingCodeAttempts; attempt++ {
		updated, err := s.repo.SetBookingCode(ctx, b.ID, s.nextCode(b.ID, attempt))
		if errors.Is(err, database.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		return updated, nil
	}
	return nil, conflict("could not assign a unique booking code, try again")
}

// cancellable are the statuses a borrower may withdraw from.
var cancellable = []models.BookingStatus{models.StatusPending, models.StatusAccepted}

// Cancel withdraws the borrower's request and removes it.
func (s *BookingService) Cancel(ctx context.Context, actorID, id string) error {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return storageError(err)
	}
	if b.BorrowerID != actorID {
		return ErrForbidden
	}
	if b.Status != models.StatusPending && b.Status != models.StatusAccepted {
		return conflict("cannot cancel a booking that is %s; it must be pending or accepted", b.Status)
	}
	if err := s.repo.DeleteBooking(ctx, b.ID, cancellable); err != nil {
		return storageError(err)
	}

	s.logger.Info().Str("booking_id", b.ID).Str("borrower_id", actorID).Msg("booking canceled")
	s.notifier.BookingCanceled(ctx, b)
	return nil
}

func authorize(b *models.Booking, actorID string, r role) error {
	switch r {
	case roleOwner:
		if b.OwnerID != actorID {
			return ErrForbidden
		}
	case roleBorrower:
		if b.BorrowerID != actorID {
			return ErrForbidden
		}
	default:
		if !b.IsParticipant(actorID) {
			return ErrForbidden
		}
	}
	return nil
}

func (s *BookingService) reload(ctx context.Context, b *models.Booking) *models.Booking {
	full, err := s.repo.GetBooking(ctx, b.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("failed to reload booking")
		return b
	}
	return full
}

func (s *BookingService) publish(b *models.Booking, actorID string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:     b.ID,
		ItemID:        b.ItemID,
		OwnerID:       b.OwnerID,
		BorrowerID:    b.BorrowerID,
		Status:        string(b.Status),
		DepositStatus: string(b.DepositStatus),
		ChangedByID:   actorID,
	}
	if err := s.eventBus.PublishJSON(events.EventBookingTransitioned, payload); err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("failed to publish booking event")
	}
}
