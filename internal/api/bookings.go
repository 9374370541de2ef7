package api

import (
	"context"
	"net/http"

	"selefli/internal/models"
	"selefli/internal/service"
)

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.svc.Bookings.List(r.Context(), actorID(r))
	writeBookings(w, r, bookings, err)
}

func (s *HTTPServer) incomingBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.svc.Bookings.Incoming(r.Context(), actorID(r))
	writeBookings(w, r, bookings, err)
}

func (s *HTTPServer) myRequests(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.svc.Bookings.MyRequests(r.Context(), actorID(r))
	writeBookings(w, r, bookings, err)
}

func writeBookings(w http.ResponseWriter, r *http.Request, bookings []models.Booking, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (s *HTTPServer) userTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txs, err := s.svc.Bookings.Transactions(r.Context(), actorID(r), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.UserTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBookingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	booking, err := s.svc.Bookings.Create(r.Context(), actorID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.Get(r.Context(), actorID(r), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) cancelBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Bookings.Cancel(r.Context(), actorID(r), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bookingAction func(ctx context.Context, actorID, id string) (*models.Booking, error)

// transition adapts a booking state change to a POST sub-resource.
func (s *HTTPServer) transition(action bookingAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		booking, err := action(r.Context(), actorID(r), pathID(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)
	}
}
