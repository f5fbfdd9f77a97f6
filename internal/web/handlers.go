package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/relay"
)

const (
	msgEmptyRequest = "Пустой запрос"
	msgBadRequest   = "Некорректный запрос: "
	msgTooLarge     = "Запрос слишком большой"
	msgServerError  = "Произошла ошибка сервера: "
	msgResetDone    = "История очищена"
)

type chatRequest struct {
	Prompt   string `json:"prompt"`
	FileData string `json:"file_data" validate:"omitempty,base64"`
	MimeType string `json:"mime_type" validate:"required_with=FileData,omitempty,supported_mime"`
}

type chatResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgBadRequest+err.Error())
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.FileData = strings.TrimSpace(req.FileData)
	req.MimeType = strings.TrimSpace(req.MimeType)

	if req.Prompt == "" && req.FileData == "" {
		writeError(w, http.StatusBadRequest, msgEmptyRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest+describe(err))
		return
	}

	key := sessionKey(r.Context())
	answer, err := s.relay.Ask(r.Context(), key, relay.Input{
		Prompt:   req.Prompt,
		FileData: req.FileData,
		MimeType: req.MimeType,
	})
	if err != nil {
		s.logger.Error("chat request failed", "session", key, "error", err)
		writeError(w, http.StatusInternalServerError, msgServerError+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Text: answer})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r.Context())
	if _, err := s.relay.Reset(r.Context(), key); err != nil {
		s.logger.Error("reset failed", "session", key, "error", err)
		writeError(w, http.StatusInternalServerError, msgServerError+err.Error())
		return
	}
	s.logger.Info("web history reset", "session", key)
	writeJSON(w, http.StatusOK, map[string]string{"status": msgResetDone})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
