package api

import (
	"net/http"

	"selefli/internal/models"
	"selefli/internal/service"
)

func (s *HTTPServer) listUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	users, err := s.svc.Users.List(r.Context(), page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *HTTPServer) getMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *HTTPServer) updateMe(w http.ResponseWriter, r *http.Request) {
	s.patchUser(w, r, actorID(r))
}

// getUser returns the full record for the caller and the public profile for
// anyone else.
func (s *HTTPServer) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Users.Get(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user.ID == actorID(r) {
		writeJSON(w, http.StatusOK, user)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

func (s *HTTPServer) updateUser(w http.ResponseWriter, r *http.Request) {
	s.patchUser(w, r, pathID(r))
}

func (s *HTTPServer) patchUser(w http.ResponseWriter, r *http.Request, id string) {
	var upd models.UserUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.svc.Users.UpdateProfile(r.Context(), actorID(r), id, upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) averageRating(w http.ResponseWriter, r *http.Request) {
	avg, err := s.svc.Users.AverageRating(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avg)
}

func (s *HTTPServer) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	if pathID(r) != actorID(r) {
		writeServiceError(w, r, service.ErrForbidden)
		return
	}
	file, err := s.readUpload(w, r, "avatar")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := s.svc.Users.UploadAvatar(r.Context(), actorID(r), pathID(r), file.Data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
