package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Use(s.accessLog, s.observe, s.limitByClient)

	r.HandleFunc("/healthz", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadiness).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	if s.svc.Accounts != nil {
		r.HandleFunc("/api/users/signup", s.signup).Methods(http.MethodPost)
		r.HandleFunc("/api/users/login", s.login).Methods(http.MethodPost)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate, s.limitByUser)

	users := api.PathPrefix("/users").Subrouter()
	users.HandleFunc("", s.listUsers).Methods(http.MethodGet)
	users.HandleFunc("/me", s.getMe).Methods(http.MethodGet)
	users.HandleFunc("/me", s.updateMe).Methods(http.MethodPatch, http.MethodPut)
	users.HandleFunc("/{id}", s.getUser).Methods(http.MethodGet)
	users.HandleFunc("/{id}", s.updateUser).Methods(http.MethodPatch, http.MethodPut)
	users.HandleFunc("/{id}/average-rating", s.averageRating).Methods(http.MethodGet)
	users.HandleFunc("/{id}/upload-avatar", s.uploadAvatar).Methods(http.MethodPost)

	items := api.PathPrefix("/items").Subrouter()
	items.HandleFunc("", s.listItems).Methods(http.MethodGet)
	items.HandleFunc("", s.createItem).Methods(http.MethodPost)
	items.HandleFunc("/{id}", s.getItem).Methods(http.MethodGet)
	items.HandleFunc("/{id}", s.updateItem).Methods(http.MethodPatch, http.MethodPut)
	items.HandleFunc("/{id}", s.deleteItem).Methods(http.MethodDelete)
	items.HandleFunc("/{id}/images", s.listItemImages).Methods(http.MethodGet)
	items.HandleFunc("/{id}/images", s.addItemImages).Methods(http.MethodPost)
	items.HandleFunc("/{id}/images/upload", s.uploadItemImage).Methods(http.MethodPost)
	items.HandleFunc("/{id}/images/reorder", s.reorderItemImages).Methods(http.MethodPost)
	items.HandleFunc("/{id}/images/sync", s.syncItemImages).Methods(http.MethodPost)

	images := api.PathPrefix("/item-images").Subrouter()
	images.HandleFunc("", s.listImagesByQuery).Methods(http.MethodGet)
	images.HandleFunc("/upload", s.uploadItemImage).Methods(http.MethodPost)
	images.HandleFunc("/delete-by-url", s.deleteImagesByURL).Methods(http.MethodPost)
	images.HandleFunc("/delete-except-ids", s.deleteImagesExcept).Methods(http.MethodPost)
	images.HandleFunc("/delete-not-in-positions", s.deleteImagesNotInPositions).Methods(http.MethodPost)
	images.HandleFunc("/{id}", s.deleteItemImage).Methods(http.MethodDelete)

	bookings := api.PathPrefix("/bookings").Subrouter()
	bookings.HandleFunc("", s.listBookings).Methods(http.MethodGet)
	bookings.HandleFunc("", s.createBooking).Methods(http.MethodPost)
	bookings.HandleFunc("/incoming", s.incomingBookings).Methods(http.MethodGet)
	bookings.HandleFunc("/my-requests", s.myRequests).Methods(http.MethodGet)
	bookings.HandleFunc("/user-transactions", s.userTransactions).Methods(http.MethodGet)
	bookings.HandleFunc("/{id}", s.getBooking).Methods(http.MethodGet)
	bookings.HandleFunc("/{id}", s.cancelBooking).Methods(http.MethodDelete)
	bookings.HandleFunc("/{id}/accept", s.transition(s.svc.Bookings.Accept)).Methods(http.MethodPost)
	bookings.HandleFunc("/{id}/decline", s.transition(s.svc.Bookings.Decline)).Methods(http.MethodPost)
	bookings.HandleFunc("/{id}/mark-deposit-received", s.transition(s.svc.Bookings.MarkDepositReceived)).Methods(http.MethodPost)
	bookings.HandleFunc("/{id}/mark-deposit-returned", s.transition(s.svc.Bookings.MarkDepositReturned)).Methods(http.MethodPost)
	bookings.HandleFunc("/{id}/keep-deposit", s.transition(s.svc.Bookings.KeepDeposit)).Methods(http.MethodPost)
	bookings.HandleFunc("/{id}/generate-code", s.transition(s.svc.Bookings.GenerateCode)).Methods(http.MethodPost)

	ratings := api.PathPrefix("/ratings").Subrouter()
	ratings.HandleFunc("", s.listRatings).Methods(http.MethodGet)
	ratings.HandleFunc("", s.submitRating).Methods(http.MethodPost)
	ratings.HandleFunc("/has-rated", s.hasRated).Methods(http.MethodGet)
	ratings.HandleFunc("/{id}", s.getRating).Methods(http.MethodGet)
	ratings.HandleFunc("/{id}", s.updateRating).Methods(http.MethodPatch, http.MethodPut)
	ratings.HandleFunc("/{id}", s.deleteRating).Methods(http.MethodDelete)

	notifications := api.PathPrefix("/notifications").Subrouter()
	notifications.HandleFunc("", s.listNotifications).Methods(http.MethodGet)
	notifications.HandleFunc("/unread_count", s.unreadCount).Methods(http.MethodGet)
	notifications.HandleFunc("/mark_as_read", s.markNotificationsRead).Methods(http.MethodPost)
	notifications.HandleFunc("/mark_all_as_read", s.markAllNotificationsRead).Methods(http.MethodPost)
	notifications.HandleFunc("/{id}", s.getNotification).Methods(http.MethodGet)
	notifications.HandleFunc("/{id}", s.deleteNotification).Methods(http.MethodDelete)
	notifications.HandleFunc("/{id}/read", s.markNotificationRead).Methods(http.MethodPost)

	devices := api.PathPrefix("/devices").Subrouter()
	devices.HandleFunc("", s.listDevices).Methods(http.MethodGet)
	devices.HandleFunc("", s.registerDevice).Methods(http.MethodPost)
	devices.HandleFunc("/{id}", s.updateDevice).Methods(http.MethodPatch, http.MethodPut)
	devices.HandleFunc("/{id}", s.deleteDevice).Methods(http.MethodDelete)

	return r
}
