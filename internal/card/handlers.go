package card

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds multipart uploads; high-resolution phone frames can
// run tens of megabytes.
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set.
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// serviceError maps domain errors to HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrInvalidCredentials):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusBadRequest, err.Error())
	}
}

// handleIndex serves the HTML interface.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the CSS file.
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file.
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleRegister creates an account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.service.Register(req.Email, req.Password, req.Name)
	if err != nil {
		slog.Error("Error registering user", "email", req.Email, "error", err)
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleLogin verifies credentials and sets the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.service.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		slog.Error("Error logging in", "email", req.Email, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": session.Token})
}

// handleLogout invalidates the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := s.service.Logout(token); err != nil {
			slog.Warn("Error deleting session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, requestUser(r))
}

// handleListCards returns the user's own and shared cards, optionally
// filtered by ?q=.
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.service.ListCards(requestUser(r).ID, r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("Error listing cards", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// handleCreateCard creates a card from a submitted draft.
func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var input CardInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	card, err := s.service.CreateCard(requestUser(r).ID, input)
	if err != nil {
		slog.Error("Error creating card", "error", err)
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// handleGetCard returns a single card.
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.service.GetCard(requestUser(r).ID, r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleDeleteCard deletes an owned card.
func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteCard(requestUser(r).ID, r.PathValue("id")); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleShareCard grants another user access to an owned card.
func (s *Server) handleShareCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeJSONError(w, http.StatusBadRequest, "Recipient email required")
		return
	}

	card, err := s.service.ShareCard(requestUser(r).ID, r.PathValue("id"), req.Email)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleGetCardImage serves the stored card image.
func (s *Server) handleGetCardImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetCardImage(requestUser(r).ID, r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleUpdateCardImage replaces the image on an owned card.
func (s *Server) handleUpdateCardImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := readUpload(w, r)
	if !ok {
		return
	}

	card, err := s.service.UpdateCardImage(requestUser(r).ID, r.PathValue("id"), data, contentType)
	if err != nil {
		slog.Error("Error updating card image", "error", err)
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// handleCapture runs the capture pipeline on an uploaded frame and returns
// an editable draft. Nothing is persisted as a card here.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := readUpload(w, r)
	if !ok {
		return
	}

	draft, err := s.service.CaptureDraft(r.Context(), data, contentType)
	if err != nil {
		slog.Error("Error processing capture", "error", err)
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// readUpload reads a multipart "file" field, sniffing the content type from
// the filename when the part does not declare one.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			msg = "File is too large. Maximum size is 50MB."
		}
		writeJSONError(w, http.StatusBadRequest, msg)
		return nil, "", false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return nil, "", false
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeJSONError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return nil, "", false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading upload", "error", err, "filename", header.Filename)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return nil, "", false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	return data, strings.ToLower(strings.TrimSpace(contentType)), true
}
