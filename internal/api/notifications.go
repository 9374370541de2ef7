package api

import (
	"net/http"
)

func (s *HTTPServer) listNotifications(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.svc.Notifications.List(r.Context(), actorID(r), page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) getNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Notifications.Get(r.Context(), actorID(r), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *HTTPServer) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.svc.Notifications.UnreadCount(r.Context(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

func (s *HTTPServer) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Notifications.MarkRead(r.Context(), actorID(r), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *HTTPServer) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"notification_ids"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.svc.Notifications.MarkManyRead(r.Context(), actorID(r), body.IDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked_as_read": updated})
}

func (s *HTTPServer) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := s.svc.Notifications.MarkAllRead(r.Context(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked_as_read": updated})
}

func (s *HTTPServer) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Notifications.Delete(r.Context(), actorID(r), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
