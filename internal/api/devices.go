package api

import (
	"net/http"

	"selefli/internal/models"
	"selefli/internal/service"
)

func (s *HTTPServer) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.svc.Devices.List(r.Context(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if devices == nil {
		devices = []models.UserDevice{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *HTTPServer) registerDevice(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterDeviceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	device, err := s.svc.Devices.Register(r.Context(), actorID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

func (s *HTTPServer) updateDevice(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateDeviceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	device, err := s.svc.Devices.Update(r.Context(), actorID(r), pathID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *HTTPServer) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Devices.Delete(r.Context(), actorID(r), pathID(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
