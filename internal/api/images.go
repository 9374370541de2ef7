package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"selefli/internal/models"
	"selefli/internal/service"
)

func (s *HTTPServer) listItemImages(w http.ResponseWriter, r *http.Request) {
	s.writeImages(w, r, pathID(r))
}

func (s *HTTPServer) listImagesByQuery(w http.ResponseWriter, r *http.Request) {
	itemID := queryValue(r, "item_id", "itemId")
	if itemID == "" {
		writeServiceError(w, r, &service.ValidationError{Field: "item_id", Message: "item_id is required"})
		return
	}
	s.writeImages(w, r, itemID)
}

func (s *HTTPServer) writeImages(w http.ResponseWriter, r *http.Request, itemID string) {
	images, err := s.svc.Items.ListImages(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

// addItemImages accepts one image object or a list of them.
func (s *HTTPServer) addItemImages(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var images []models.ItemImage
	many := bytes.HasPrefix(bytes.TrimSpace(raw), []byte("["))
	if many {
		if err := json.Unmarshal(raw, &images); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		var img models.ItemImage
		if err := json.Unmarshal(raw, &img); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		images = []models.ItemImage{img}
	}

	created, err := s.svc.Items.AddImages(r.Context(), actorID(r), pathID(r), images)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if many {
		writeJSON(w, http.StatusCreated, created)
		return
	}
	writeJSON(w, http.StatusCreated, created[0])
}

// uploadItemImage takes multipart form data: file, position and, outside the
// item routes, item_id.
func (s *HTTPServer) uploadItemImage(w http.ResponseWriter, r *http.Request) {
	file, err := s.readUpload(w, r, "file")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	itemID := pathID(r)
	if itemID == "" {
		itemID = firstNonEmpty(r.FormValue("item_id"), r.FormValue("itemId"))
	}
	if itemID == "" {
		writeServiceError(w, r, &service.ValidationError{Field: "item_id", Message: "file, item_id, and position are required"})
		return
	}
	position, err := strconv.Atoi(r.FormValue("position"))
	if err != nil {
		writeServiceError(w, r, &service.ValidationError{Field: "position", Message: "position must be int"})
		return
	}

	img, err := s.svc.Items.UploadImage(r.Context(), actorID(r), itemID, position, file.Filename, file.Data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

func (s *HTTPServer) reorderItemImages(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderedIDs      []string `json:"ordered_ids"`
		OrderedIDsCamel []string `json:"orderedIds"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids := body.OrderedIDs
	if ids == nil {
		ids = body.OrderedIDsCamel
	}
	images, err := s.svc.Items.ReorderImages(r.Context(), actorID(r), pathID(r), ids)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "images": images})
}

func (s *HTTPServer) syncItemImages(w http.ResponseWriter, r *http.Request) {
	var body struct {
		models.ImageSync
		KeepIDsCamel    []string `json:"keepIds"`
		RemoveURLsCamel []string `json:"removeUrls"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sync := body.ImageSync
	if sync.KeepIDs == nil {
		sync.KeepIDs = body.KeepIDsCamel
	}
	if sync.RemoveURLs == nil {
		sync.RemoveURLs = body.RemoveURLsCamel
	}

	images, err := s.svc.Items.SyncImages(r.Context(), actorID(r), pathID(r), sync)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (s *HTTPServer) deleteItemImage(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Items.DeleteImage(r.Context(), actorID(r), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) deleteImagesByURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ImageURL      string `json:"image_url"`
		ImageURLCamel string `json:"imageUrl"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	url := firstNonEmpty(body.ImageURL, body.ImageURLCamel)
	if _, err := s.svc.Items.DeleteImagesByURL(r.Context(), actorID(r), url); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) deleteImagesExcept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID          string   `json:"item_id"`
		ItemIDCamel     string   `json:"itemId"`
		AllowedIDs      []string `json:"allowed_ids"`
		AllowedIDsCamel []string `json:"allowedIds"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keep := body.AllowedIDs
	if keep == nil {
		keep = body.AllowedIDsCamel
	}
	n, err := s.svc.Items.DeleteImagesExcept(r.Context(), actorID(r), firstNonEmpty(body.ItemID, body.ItemIDCamel), keep)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *HTTPServer) deleteImagesNotInPositions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID           string `json:"item_id"`
		ItemIDCamel      string `json:"itemId"`
		Positions        []int  `json:"positions"`
		AllowedPositions []int  `json:"allowed_positions"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	positions := body.Positions
	if positions == nil {
		positions = body.AllowedPositions
	}
	n, err := s.svc.Items.DeleteImagesNotInPositions(r.Context(), actorID(r), firstNonEmpty(body.ItemID, body.ItemIDCamel), positions)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
