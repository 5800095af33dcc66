package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/a7mdelbanna/classboom/internal/core"
	"github.com/a7mdelbanna/classboom/internal/logging"
)

// multipartOverhead is the body allowance on top of the file size limit for
// multipart boundaries and headers.
const multipartOverhead = 1 << 20

// SchemaResponse describes an importable entity to the client.
type SchemaResponse struct {
	Entity string          `json:"entity"`
	Label  string          `json:"label"`
	Fields []FieldResponse `json:"fields"`
}

// FieldResponse describes one target field.
type FieldResponse struct {
	Name     core.Field `json:"name"`
	Label    string     `json:"label"`
	Required bool       `json:"required"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": s.service.SessionCount(),
	})
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas := s.service.ListSchemas()
	out := make([]SchemaResponse, len(schemas))
	for i, sc := range schemas {
		fields := make([]FieldResponse, len(sc.Fields))
		for j, f := range sc.Fields {
			fields[j] = FieldResponse{Name: f.Name, Label: f.Label, Required: f.Required}
		}
		out[i] = SchemaResponse{Entity: sc.Entity, Label: sc.Label, Fields: fields}
	}
	writeJSON(w, out)
}

// handleSample downloads the CSV template of an entity.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	schema, ok := core.Get(entity)
	if !ok {
		respondError(w, r, fmt.Errorf("%w: %s", core.ErrUnknownEntity, entity))
		return
	}

	var buf bytes.Buffer
	if err := core.SampleCSV(&buf, schema); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", core.SampleFileName(schema)))
	w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"imports":  s.service.UploadLimiterStatus(),
		"sessions": s.service.SessionCount(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entity string `json:"entity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Entity == "" {
		respondError(w, r, errBadRequestBody)
		return
	}

	id, err := s.service.CreateSession(req.Entity)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseSession(chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload accepts the multipart "file" field and parses it into the session.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	maxSize := s.cfg.Import.MaxFileSize

	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondError(w, r, &core.LimitError{Kind: core.LimitFileSize, Limit: maxSize, Actual: -1})
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	snap, err := s.service.Upload(id, header.Filename, file, header.Size)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "session_id", id).Info("upload accepted",
		"file", header.Filename,
		"size", header.Size,
	)
	writeJSON(w, snap)
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var req core.ColumnMapping
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceColumn == "" || req.TargetField == "" {
		respondError(w, r, errBadRequestBody)
		return
	}

	snap, err := s.service.UpdateMapping(chi.URLParam(r, "sessionID"), req.SourceColumn, req.TargetField)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Preview(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, snap)
}

// handleStartImport begins the background commit into the institution named
// by X-Institution-ID. Progress is followed on the progress stream.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	institution, err := institutionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	snap, err := s.service.Snapshot(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	creator, err := s.creators.For(snap.Entity, institution)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.StartImport(ctx, id, creator); err != nil {
		respondError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"session_id": id,
		"step":       string(core.StepImporting),
		"progress":   "/api/import/sessions/" + id + "/progress",
	})
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelImport(chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Reset(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, snap)
}

// handleResult returns the commit result, or 202 while the commit runs.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	switch {
	case snap.Result != nil:
		writeJSON(w, snap.Result)
	case snap.Step == core.StepImporting:
		writeJSONStatus(w, http.StatusAccepted, map[string]string{"step": string(snap.Step)})
	default:
		respondError(w, r, core.ErrNotImporting)
	}
}

// handleErrorReport downloads validation and commit errors as CSV.
func (s *Server) handleErrorReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var buf bytes.Buffer
	if err := s.service.WriteErrorReport(id, &buf); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "import-errors-"+id+".csv"))
	w.Write(buf.Bytes())
}

// handleProgress streams commit progress via Server-Sent Events.
// Event IDs are progress percentages; a reconnecting client passes the last
// one as lastEventId (or Last-Event-ID) to skip events it has seen.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			percent := progress.Percent()
			if percent <= lastEventID && !progress.Done {
				continue
			}
			lastEventID = percent

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
