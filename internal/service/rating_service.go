package service

import (
	"context"
	"errors"
	"fmt"

	"selefli/internal/database"
	"selefli/internal/domain"
	"selefli/internal/events"
	"selefli/internal/models"

	"github.com/rs/zerolog"
)

type RatingService struct {
	repo     domain.RatingRepository
	notifier domain.Notifier
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewRatingService(repo domain.RatingRepository, notifier domain.Notifier, eventBus domain.EventPublisher, logger *zerolog.Logger) *RatingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RatingService{repo: repo, notifier: notifier, eventBus: eventBus, logger: logger}
}

type SubmitRatingInput struct {
	BookingID    string `json:"booking_id"`
	TargetUserID string `json:"target_user_id"`
	Stars        int    `json:"stars"`
}

func validateStars(stars int) error {
	if stars < models.MinStars || stars > models.MaxStars {
		return invalid("stars", "Stars must be between 1 and 5.")
	}
	return nil
}

// Submit records the rater's stars for the other participant of a booking.
// An empty target defaults to the counterpart.
func (s *RatingService) Submit(ctx context.Context, raterID string, in SubmitRatingInput) (*models.Rating, error) {
	if in.BookingID == "" {
		return nil, invalid("booking_id", "This field is required.")
	}
	if err := validateStars(in.Stars); err != nil {
		return nil, err
	}

	booking, err := s.repo.GetBooking(ctx, in.BookingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, invalid("booking_id", "Booking not found.")
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if !booking.IsParticipant(raterID) {
		return nil, ErrForbidden
	}

	counterpart := booking.OwnerID
	if raterID == booking.OwnerID {
		counterpart = booking.BorrowerID
	}
	target := in.TargetUserID
	if target == "" {
		target = counterpart
	}
	if target == raterID {
		return nil, invalid("target_user_id", "Cannot rate yourself.")
	}
	if target != counterpart {
		return nil, invalid("target_user_id", "Target user did not take part in this booking.")
	}
	if _, err := s.repo.GetUserByID(ctx, target); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, invalid("target_user_id", "Target user not found.")
		}
		return nil, fmt.Errorf("load target user: %w", err)
	}

	rating := &models.Rating{
		BookingID:    booking.ID,
		RaterID:      raterID,
		TargetUserID: target,
		Stars:        in.Stars,
	}
	if err := s.repo.CreateRatingWithAggregate(ctx, rating); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, invalid("booking_id", "You have already rated for this booking.")
		}
		return nil, fmt.Errorf("create rating: %w", err)
	}

	s.logger.Info().
		Str("rating_id", rating.ID).
		Str("booking_id", rating.BookingID).
		Int("stars", rating.Stars).
		Msg("rating submitted")
	s.publish(rating, "created")
	s.notifier.RatingReceived(ctx, rating)
	return rating, nil
}

func (s *RatingService) Update(ctx context.Context, raterID, id string, stars int) (*models.Rating, error) {
	if err := validateStars(stars); err != nil {
		return nil, err
	}
	current, err := s.repo.GetRating(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	if current.RaterID != raterID {
		return nil, ErrForbidden
	}
	if current.Stars == stars {
		return current, nil
	}

	rating, err := s.repo.UpdateRatingWithAggregate(ctx, id, stars)
	if err != nil {
		return nil, storageError(err)
	}
	s.logger.Info().Str("rating_id", id).Int("from", current.Stars).Int("to", stars).Msg("rating updated")
	s.publish(rating, "updated")
	s.notifier.RatingModified(ctx, rating)
	return rating, nil
}

func (s *RatingService) Delete(ctx context.Context, raterID, id string) error {
	current, err := s.repo.GetRating(ctx, id)
	if err != nil {
		return storageError(err)
	}
	if current.RaterID != raterID {
		return ErrForbidden
	}
	rating, err := s.repo.DeleteRatingWithAggregate(ctx, id)
	if err != nil {
		return storageError(err)
	}
	s.logger.Info().Str("rating_id", id).Msg("rating deleted")
	s.publish(rating, "deleted")
	return nil
}

func (s *RatingService) Get(ctx context.Context, id string) (*models.Rating, error) {
	r, err := s.repo.GetRating(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return r, nil
}

func (s *RatingService) List(ctx context.Context, filter models.RatingFilter) ([]models.Rating, error) {
	return s.repo.ListRatings(ctx, filter)
}

func (s *RatingService) HasRated(ctx context.Context, bookingID, raterID string) (bool, error) {
	if bookingID == "" || raterID == "" {
		return false, invalid("", "booking_id and rater_id required")
	}
	return s.repo.HasRated(ctx, bookingID, raterID)
}

func (s *RatingService) publish(r *models.Rating, action string) {
	if s.eventBus == nil {
		return
	}
	payload := events.RatingEventPayload{
		RatingID:     r.ID,
		BookingID:    r.BookingID,
		TargetUserID: r.TargetUserID,
		Stars:        r.Stars,
		Action:       action,
	}
	if err := s.eventBus.PublishJSON(events.EventRatingChanged, payload); err != nil {
		s.logger.Warn().Err(err).Str("rating_id", r.ID).Msg("failed to publish rating event")
	}
}
