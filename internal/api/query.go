package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/isearch-project/musebag/internal/mqf"
	"github.com/isearch-project/musebag/internal/query"
	"github.com/isearch-project/musebag/internal/session"
)

// maxUploadBytes bounds the in-memory part of multipart parsing.
const maxUploadBytes = 32 << 20

// canvasDataPrefix is the data URL prefix the sketch canvas posts.
const canvasDataPrefix = "data:image/png;base64,"

// queryHandler serves query composition/submission and query item staging.
type queryHandler struct {
	sessions   *session.Manager
	composer   *query.Composer
	formulator *mqf.Client
	tmpDir     string
	logger     *slog.Logger
}

// submit composes the query document (plus the real-world context
// companion when the request carries a timestamp) and submits it to the
// query formulator. The composed query is stored on the session before
// submission; the query counter advances only after a successful submit.
func (h *queryHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token := h.sessions.EnsureToken(w, r)

	extID, err := h.sessions.ExternalSessionID(r.Context(), token)
	if err != nil {
		h.logger.Error("assigning external session id", "error", err)
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	p, err := h.sessions.Profile(r.Context(), token)
	if err != nil {
		h.logger.Error("loading session profile", "error", err)
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	result, err := h.composer.Compose(r.Context(), &req, extID, p.Email)
	if err != nil {
		if errors.Is(err, query.ErrNoQuery) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Query error: %v", err))
			return
		}
		h.logger.Error("composing query", "error", err)
		writeError(w, http.StatusInternalServerError, "query composition failed")
		return
	}

	// A new composed query starts a fresh lifecycle.
	if _, err := h.sessions.Update(r.Context(), token, func(p *session.Profile) error {
		p.ResetQuery()
		p.Query = &session.StoredQuery{ID: extID, RUCoD: result.RUCoD}
		return nil
	}); err != nil {
		h.logger.Error("storing query on session", "error", err)
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	raw, err := h.formulator.SubmitQuery(r.Context(), result.RUCoD, result.RWML, extID, p.Settings)
	if err != nil {
		if errors.Is(err, mqf.ErrRemote) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.logger.Error("submitting query", "error", err)
		writeError(w, http.StatusBadGateway, "query formulator unavailable")
		return
	}

	if _, err := h.sessions.Update(r.Context(), token, func(p *session.Profile) error {
		p.QueryCounter++
		return nil
	}); err != nil {
		h.logger.Error("advancing query counter", "error", err)
	}

	writeJSON(w, http.StatusOK, raw)
}

// itemOutcome is the per-producer result of a query item request.
type itemOutcome struct {
	item *mqf.UploadItem
	err  error
}

// submitItems stages the request's query items and distributes them to
// the query formulator. A single request may carry a file upload (form
// name "files") and a canvas sketch ("canvas" + "name" + "subtype");
// both producers run concurrently and succeed or fail independently.
// The response lists one entry per producer, item or error envelope.
func (h *queryHandler) submitItems(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	token := h.sessions.EnsureToken(w, r)

	extID, err := h.sessions.ExternalSessionID(r.Context(), token)
	if err != nil {
		h.logger.Error("assigning external session id", "error", err)
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	file, header, fileErr := r.FormFile("files")
	hasFile := fileErr == nil
	if hasFile {
		defer file.Close()
	}
	canvas := r.FormValue("canvas")
	hasCanvas := canvas != ""

	if !hasFile && !hasCanvas {
		writeError(w, http.StatusBadRequest, "no query item provided")
		return
	}

	var fileOut, canvasOut itemOutcome

	var g errgroup.Group
	if hasFile {
		g.Go(func() error {
			fileOut = h.distributeUpload(r, extID, token, file, header)
			return nil
		})
	}
	if hasCanvas {
		g.Go(func() error {
			canvasOut = h.distributeSketch(r, extID, token, canvas)
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]any, 0, 2)
	for _, out := range []struct {
		present bool
		outcome itemOutcome
	}{
		{hasFile, fileOut},
		{hasCanvas, canvasOut},
	} {
		if !out.present {
			continue
		}
		if out.outcome.err != nil {
			entries = append(entries, errorEnvelope{Error: out.outcome.err.Error()})
			continue
		}
		entries = append(entries, out.outcome.item)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// distributeUpload stages an uploaded file in the tmp directory and
// relays it to the query formulator.
func (h *queryHandler) distributeUpload(r *http.Request, extID, token string, file io.Reader, header *multipart.FileHeader) itemOutcome {
	staged := filepath.Join(h.tmpDir, uuid.NewString()+filepath.Ext(header.Filename))

	dst, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		h.logger.Error("staging uploaded file", "error", err)
		return itemOutcome{err: fmt.Errorf("storing uploaded file: %w", err)}
	}
	_, copyErr := io.Copy(dst, file)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		h.logger.Error("staging uploaded file", "copy_error", copyErr, "close_error", closeErr)
		return itemOutcome{err: errors.New("storing uploaded file failed")}
	}

	item := &mqf.UploadItem{
		Path: staged,
		Name: header.Filename,
		Type: header.Header.Get("Content-Type"),
		Size: header.Size,
	}
	return h.distribute(r, extID, token, item)
}

// distributeSketch decodes the posted canvas data URL, writes the PNG to
// the tmp directory, and relays it to the query formulator.
func (h *queryHandler) distributeSketch(r *http.Request, extID, token, canvas string) itemOutcome {
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(canvas, canvasDataPrefix))
	if err != nil {
		return itemOutcome{err: fmt.Errorf("decoding canvas data: %w", err)}
	}

	name := r.FormValue("name")
	if name == "" {
		name = uuid.NewString() + ".png"
	}
	staged := filepath.Join(h.tmpDir, filepath.Base(name))

	if err := os.WriteFile(staged, data, 0o600); err != nil {
		h.logger.Error("writing sketch file", "error", err)
		return itemOutcome{err: errors.New("storing sketch failed")}
	}

	item := &mqf.UploadItem{
		Path:    staged,
		Name:    name,
		Type:    "image/png",
		Subtype: r.FormValue("subtype"),
		Size:    int64(len(data)),
	}
	return h.distribute(r, extID, token, item)
}

// distribute relays a staged item and records the rewritten item on the
// session's current query lifecycle.
func (h *queryHandler) distribute(r *http.Request, extID, token string, item *mqf.UploadItem) itemOutcome {
	if err := h.formulator.Distribute(r.Context(), extID, item); err != nil {
		return itemOutcome{err: err}
	}

	if _, err := h.sessions.Update(r.Context(), token, func(p *session.Profile) error {
		return p.AppendItem(*item)
	}); err != nil {
		h.logger.Error("recording query item", "error", err)
		return itemOutcome{err: errors.New("recording query item failed")}
	}

	return itemOutcome{item: item}
}
