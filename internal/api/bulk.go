package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/opensource-finance/kestrel/internal/bulk"
)

// BulkPredict scores an uploaded CSV file. The file is read from the
// multipart field "file" or, for any other content type, from the raw
// body. ?format=csv answers with the CSV export instead of JSON.
func (h *Handler) BulkPredict(w http.ResponseWriter, r *http.Request) {
	if h.bulk == nil {
		writeError(w, http.StatusServiceUnavailable, "bulk scoring not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, name, err := uploadedFile(r, h.maxUpload)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	result, err := h.bulk.Process(r.Context(), name, file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		case errors.Is(err, bulk.ErrEmptyFile), errors.Is(err, bulk.ErrTooManyRows):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("bulk scoring failed",
				"file", name,
				"trace_id", GetTraceID(r.Context()),
				"error", err,
			)
			writeError(w, http.StatusBadRequest, "failed to process file: "+err.Error())
		}
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
		w.WriteHeader(http.StatusOK)
		if err := bulk.WriteCSV(w, result); err != nil {
			slog.Error("failed to write bulk export", "id", result.ID, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// BulkTemplate serves the upload template.
func (h *Handler) BulkTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="bulk_prediction_template.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := bulk.Template(w); err != nil {
		slog.Error("failed to write bulk template", "error", err)
	}
}

func uploadedFile(r *http.Request, maxMemory int64) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, "upload.csv", nil
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.New("missing file field")
	}
	return file, header.Filename, nil
}
