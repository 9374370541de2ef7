package api

import (
	"net/http"

	"selefli/internal/models"
	"selefli/internal/service"
)

func (s *HTTPServer) listRatings(w http.ResponseWriter, r *http.Request) {
	filter := models.RatingFilter{
		TargetUserID: queryValue(r, "target_user_id", "targetUserId"),
		RaterID:      queryValue(r, "rater_id", "raterId"),
		BookingID:    queryValue(r, "booking_id", "bookingId"),
	}
	ratings, err := s.svc.Ratings.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if ratings == nil {
		ratings = []models.Rating{}
	}
	writeJSON(w, http.StatusOK, ratings)
}

func (s *HTTPServer) submitRating(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitRatingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rating, err := s.svc.Ratings.Submit(r.Context(), actorID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}

// hasRated defaults rater_id to the caller.
func (s *HTTPServer) hasRated(w http.ResponseWriter, r *http.Request) {
	raterID := queryValue(r, "rater_id", "raterId")
	if raterID == "" {
		raterID = actorID(r)
	}
	rated, err := s.svc.Ratings.HasRated(r.Context(), queryValue(r, "booking_id", "bookingId"), raterID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_rated": rated})
}

func (s *HTTPServer) getRating(w http.ResponseWriter, r *http.Request) {
	rating, err := s.svc.Ratings.Get(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (s *HTTPServer) updateRating(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stars *int `json:"stars"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Stars == nil {
		writeServiceError(w, r, &service.ValidationError{Field: "stars", Message: "This field is required."})
		return
	}
	rating, err := s.svc.Ratings.Update(r.Context(), actorID(r), pathID(r), *body.Stars)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (s *HTTPServer) deleteRating(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ratings.Delete(r.Context(), actorID(r), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
