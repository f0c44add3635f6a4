package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/services"
)

type ImportHandler struct {
	importer *services.CSVImporter
	log      *logger.Logger

	mu      sync.Mutex
	running bool
}

func NewImportHandler(importer *services.CSVImporter, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		importer: importer,
		log:      log.With("handler", "ImportHandler"),
	}
}

// Run handles POST /api/import-csv with the export uploaded as a multipart
// "file" field. Only one ingestion run may be active at a time.
func (h *ImportHandler) Run(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_csv_file", errors.New("upload the export as a multipart 'file' field"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_csv_file", err)
		return
	}
	defer file.Close()

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		RespondError(c, http.StatusConflict, "import_in_progress", errors.New("an import run is already in progress"))
		return
	}
	h.running = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	summary, err := h.importer.Import(c.Request.Context(), file)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCSV) {
			RespondError(c, http.StatusBadRequest, "invalid_csv", err)
			return
		}
		h.log.Error("CSV import failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "import_failed", err)
		return
	}
	RespondOK(c, summary)
}
