package net

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
	"SignFlow/internal/logger"
	"SignFlow/internal/service"
	"SignFlow/internal/state"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *state.Session)

// withSession resolves the {id} path value to a live session.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.svc.Sessions.Get(r.PathValue("id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.svc.Sessions.Create()
	WriteJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	WriteJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	s.hub.CloseSession(sess.Token())
	s.svc.Sessions.Close(sess.Token())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	limit := s.svc.UploadLimit()
	if limit > 0 {
		// Leave room for the multipart framing around the file.
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_upload", "missing file field")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}

	doc, err := s.svc.Upload(sess, header.Filename, data)
	if err != nil {
		writeErr(w, err)
		return
	}
	log.Printf("[http] Session %s loaded %s (%d pages)", sess.Token(), doc.Name, doc.NumPages)
	s.prerender(sess.Token(), 1)
	WriteJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	doc, err := sess.Document()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeFile(w, "application/pdf", doc.Name, doc.Data)
}

func (s *Server) handlePageImage(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	doc, err := sess.Document()
	if err != nil {
		writeErr(w, err)
		return
	}
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 || page > doc.NumPages {
		WriteError(w, http.StatusNotFound, "page_not_found", fmt.Sprintf("page %q not in document", r.PathValue("page")))
		return
	}
	p, err := s.svc.RenderPage(r.Context(), sess, page)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Image.PNG)))
	w.Write(p.Image.PNG)
}

type pageRequest struct {
	Page  *int `json:"page"`
	Delta *int `json:"delta"`
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	var req pageRequest
	if err := ReadJSON(r, &req); err != nil || (req.Page == nil) == (req.Delta == nil) {
		WriteError(w, http.StatusBadRequest, "invalid_request", "expected one of page or delta")
		return
	}
	target := sess.Page()
	if req.Page != nil {
		target = *req.Page
	} else {
		target += *req.Delta
	}
	before := sess.Page()
	page, err := sess.GoToPage(target)
	if err != nil {
		writeErr(w, err)
		return
	}
	if page != before {
		s.prerender(sess.Token(), page)
	}
	WriteJSON(w, http.StatusOK, map[string]int{"page": page})
}

type zoomRequest struct {
	Percent *int `json:"percent"`
	Step    *int `json:"step"`
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	var req zoomRequest
	if err := ReadJSON(r, &req); err != nil || (req.Percent == nil) == (req.Step == nil) {
		WriteError(w, http.StatusBadRequest, "invalid_request", "expected one of percent or step")
		return
	}
	var zoom int
	switch {
	case req.Percent != nil:
		zoom = sess.SetZoom(*req.Percent)
	case *req.Step > 0:
		zoom = sess.ZoomIn()
	case *req.Step < 0:
		zoom = sess.ZoomOut()
	default:
		zoom = sess.Zoom()
	}
	WriteJSON(w, http.StatusOK, map[string]int{"zoom": zoom})
}

func (s *Server) handleDrawMode(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	WriteJSON(w, http.StatusOK, map[string]bool{"draw_mode": sess.ToggleDrawMode()})
}

// boxRequest is a box in percent of the page image, or in displayed pixels
// when Unit is "px".
type boxRequest struct {
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	W    *float64 `json:"w"`
	H    *float64 `json:"h"`
	Unit string   `json:"unit,omitempty"`
}

func (s *Server) handleCreateBox(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	var req boxRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_box", "malformed box: "+err.Error())
		return
	}
	if req.X == nil || req.Y == nil || req.W == nil || req.H == nil {
		WriteError(w, http.StatusBadRequest, "invalid_box", "x, y, w and h are required")
		return
	}
	rect := coords.Rect{X0: *req.X, Y0: *req.Y, W: *req.W, H: *req.H}

	var (
		b   state.Box
		err error
	)
	switch req.Unit {
	case "", "pct", "percent":
		b, err = sess.CreateBox(rect)
	case "px":
		b, err = sess.CreateBoxFromPixels(rect)
	default:
		WriteError(w, http.StatusBadRequest, "invalid_box", "unknown unit "+req.Unit)
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, b)
}

func (s *Server) handleClearBoxes(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	sess.ClearBoxes()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteBox(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	sess.DeleteBox(r.PathValue("box"))
	w.WriteHeader(http.StatusNoContent)
}

type signatureRequest struct {
	Strokes []ink.Stroke `json:"strokes"`
	Pad     coords.Size  `json:"pad"`
}

func (s *Server) handleAttachSignature(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	var req signatureRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_signature", err.Error())
		return
	}
	b, err := sess.AttachSignature(r.PathValue("box"), req.Strokes, req.Pad)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, b)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	width, _ := strconv.Atoi(r.URL.Query().Get("w"))
	height, _ := strconv.Atoi(r.URL.Query().Get("h"))
	data, err := s.svc.Thumbnail(sess, r.PathValue("box"), width, height)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

type signingRequest struct {
	Box    string  `json:"box"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s *Server) handleOpenSigning(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	var req signingRequest
	if err := ReadJSON(r, &req); err != nil || req.Box == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "expected a box id")
		return
	}
	if err := sess.OpenSigning(req.Box, coords.Size{W: req.Width, H: req.Height}); err != nil {
		writeErr(w, err)
		return
	}
	pad, _ := sess.Signing()
	WriteJSON(w, http.StatusOK, pad)
}

func (s *Server) handleSigningAction(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	switch action := r.PathValue("action"); action {
	case "apply":
		b, err := sess.ApplySignature()
		if err != nil {
			writeErr(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, b)
	case "cancel":
		if err := sess.CancelSigning(); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "clear":
		if err := sess.ClearPad(); err != nil {
			writeErr(w, err)
			return
		}
		pad, _ := sess.Signing()
		WriteJSON(w, http.StatusOK, pad)
	default:
		WriteError(w, http.StatusNotFound, "not_found", "unknown signing action "+action)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	res, err := s.svc.Export(r.Context(), sess)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request, sess *state.Session) {
	artifact := sess.Exported()
	if artifact == "" {
		WriteError(w, http.StatusNotFound, "not_exported", "the document has not been exported yet")
		return
	}
	data, err := s.svc.Store().Get(artifact)
	if err != nil {
		writeErr(w, err)
		return
	}
	name := "signed.pdf"
	if doc, err := sess.Document(); err == nil {
		name = service.SignedName(doc.Name)
	}
	writeFile(w, "application/pdf", name, data)
}

// FrontendLog is an error or message reported by a browser client.
type FrontendLog struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	URL     string `json:"url,omitempty"`
}

func (s *Server) handleFrontendLog(w http.ResponseWriter, r *http.Request) {
	var entry FrontendLog
	if err := ReadJSON(r, &entry); err != nil || entry.Message == "" {
		WriteError(w, http.StatusBadRequest, "invalid_log", "expected a message")
		return
	}
	relayFrontendLog(entry)
	w.WriteHeader(http.StatusNoContent)
}

func relayFrontendLog(e FrontendLog) {
	msg := e.Message
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	switch strings.ToLower(e.Level) {
	case "debug":
		logger.Debug("frontend", "%s", msg)
	case "warn", "warning":
		logger.Warn("frontend", "%s", msg)
	case "error":
		log.Printf("[frontend] ERROR %s", msg)
		if e.Stack != "" {
			log.Printf("[frontend] %s", e.Stack)
		}
	default:
		logger.Info("frontend", "%s", msg)
	}
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
