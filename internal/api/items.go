package api

import (
	"net/http"
	"strings"

	"selefli/internal/models"
	"selefli/internal/service"
)

func itemFilter(r *http.Request) (models.ItemFilter, error) {
	page, pageSize, err := pagination(r)
	if err != nil {
		return models.ItemFilter{}, err
	}
	filter := models.ItemFilter{
		ExcludeOwnerID: queryValue(r, "exclude_user_id", "excludeUserId"),
		OwnerID:        queryValue(r, "owner_id", "ownerId"),
		Search:         queryValue(r, "search", "searchQuery"),
		Page:           page,
		PageSize:       pageSize,
	}
	// Categories arrive either repeated or comma separated.
	for _, raw := range r.URL.Query()["categories"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				filter.Categories = append(filter.Categories, c)
			}
		}
	}
	return filter, nil
}

func (s *HTTPServer) listItems(w http.ResponseWriter, r *http.Request) {
	filter, err := itemFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.svc.Items.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) createItem(w http.ResponseWriter, r *http.Request) {
	var in service.CreateItemInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := s.svc.Items.Create(r.Context(), actorID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.svc.Items.Get(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) updateItem(w http.ResponseWriter, r *http.Request) {
	var upd models.ItemUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := s.svc.Items.Update(r.Context(), actorID(r), pathID(r), upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Items.Delete(r.Context(), actorID(r), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
