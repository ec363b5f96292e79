package server

import (
	"net/http"

	"plantkeeper/internal/api"
)

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	plants, err := s.service.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plants)
}

func (s *Server) handleCreatePlant(w http.ResponseWriter, r *http.Request) {
	var req api.CreatePlantRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	plant, err := s.service.Create(r.Context(), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, plant)
}

func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	plant, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plant)
}

func (s *Server) handleRenamePlant(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.RenamePlantRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	plant, err := s.service.Rename(r.Context(), id, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plant)
}

func (s *Server) handleWaterPlant(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.WaterPlantRequest
	if !s.decodeJSONReqOpt(w, r, &req, true) {
		return
	}
	at, err := resolveWateredAt(req)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	plant, err := s.service.Water(r.Context(), id, at)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plant)
}

func (s *Server) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	if err := s.service.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
