package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/radlab-io/authgate/api/service"
	"github.com/radlab-io/authgate/authgateerrors"
	"go.uber.org/zap"
)

type Handlers struct {
	service *service.Service
	logger  *zap.Logger
}

func NewHandlers(service *service.Service, logger *zap.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  logger,
	}
}

type CheckAccessRequest struct {
	Path       string `json:"path"`
	Credential string `json:"credential"`
}

type RevokeRequest struct {
	SubjectID string `json:"subjectId"`
}

func (h *Handlers) GetAuthorizationPolicyHandler(w http.ResponseWriter, r *http.Request) {
	policyJSON, err := h.service.GetPolicyJSON()
	if err != nil {
		http.Error(w, "Failed to retrieve authorization policy JSON", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(policyJSON)
}

func (h *Handlers) CheckAccessHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("Failed to read check-access request body", zap.Error(err))
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)

		return
	}

	defer r.Body.Close()

	var checkAccessRequest CheckAccessRequest

	if err := json.Unmarshal(body, &checkAccessRequest); err != nil {
		h.logger.Error("Failed to unmarshal check-access request body", zap.Error(err))
		http.Error(w, "Invalid request", http.StatusBadRequest)

		return
	}

	if checkAccessRequest.Credential == "" {
		credential, found := bearerCredential(r)
		if !found {
			http.Error(w, "Missing credential", http.StatusBadRequest)

			return
		}

		checkAccessRequest.Credential = credential
	}

	h.logger.Info("Received check-access request", zap.String("path", checkAccessRequest.Path))

	result, err := h.service.CheckAccess(r.Context(), checkAccessRequest.Credential, checkAccessRequest.Path)
	if err != nil {
		h.logger.Error("Error checking access", zap.Error(err))
		http.Error(w, "Error checking access", http.StatusInternalServerError)

		return
	}

	if !result.Allowed {
		h.logger.Info("Access denied", zap.String("path", checkAccessRequest.Path), zap.String("reason", result.Reason))
	}

	responseBody, err := json.Marshal(result)
	if err != nil {
		h.logger.Error("Failed to marshal response", zap.Error(err))
		http.Error(w, "Failed to process response", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(responseBody)
}

func (h *Handlers) RevokeHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("Failed to read revoke request body", zap.Error(err))
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)

		return
	}

	defer r.Body.Close()

	var revokeRequest RevokeRequest

	if err := json.Unmarshal(body, &revokeRequest); err != nil || revokeRequest.SubjectID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)

		return
	}

	if err := h.service.Revoke(revokeRequest.SubjectID); err != nil {
		if errors.Is(err, authgateerrors.ErrNotFound) {
			http.Error(w, "Unknown subject", http.StatusNotFound)

			return
		}

		h.logger.Error("Error revoking subject", zap.Error(err))
		http.Error(w, "Error revoking subject", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func bearerCredential(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")

	const prefix = "Bearer "
	if len(authHeader) > len(prefix) && authHeader[:len(prefix)] == prefix {
		return authHeader[len(prefix):], true
	}

	return "", false
}
