package api

import "plantkeeper/internal/models"

// PlantResponse is the wire form of one plant. models.Plant carries its own
// JSON encoding, so the record is sent as is.
type PlantResponse = models.Plant

// CreatePlantRequest is the body of POST /plants.
type CreatePlantRequest struct {
	Name string `json:"name"`
}

// RenamePlantRequest is the body of PUT /plants/{id}.
type RenamePlantRequest struct {
	Name string `json:"name"`
}

// WaterPlantRequest is the optional body of PUT /plants/{id}/water. ISODate
// is the field name older clients send; both fields must agree when present.
type WaterPlantRequest struct {
	LastWatered string `json:"lastWatered,omitempty"`
	ISODate     string `json:"ISODate,omitempty"`
}

// ImageUploadResponse is returned by PUT /images/{id}.
type ImageUploadResponse struct {
	Message string        `json:"message"`
	NewPath string        `json:"newPath"`
	Plant   PlantResponse `json:"plant"`
}

// PingResponse is the discovery payload of GET /ping.
type PingResponse struct {
	UUID string `json:"uuid"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}
