package handler

import (
	"net/http"
	"time"

	mw "github.com/kiranshivaraju/recipebox/internal/api/middleware"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/importer"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

// Imports serves the asynchronous URL import endpoints. Ownership is
// checked here; the importer itself does not know about callers.
type Imports struct {
	svc *importer.Service
	now func() time.Time
}

func NewImports(svc *importer.Service) *Imports {
	return &Imports{svc: svc, now: time.Now}
}

type startImportResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// importJobView is the wire form of a job. Clients read it bare, without the
// data envelope.
type importJobView struct {
	ID        string                 `json:"id"`
	URL       string                 `json:"url"`
	Status    string                 `json:"status"`
	Result    *models.ImportedRecipe `json:"result"`
	Error     *string                `json:"error"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

func newImportJobView(j *models.ImportJob) importJobView {
	return importJobView{
		ID:        j.ID.String(),
		URL:       j.URL,
		Status:    j.Status,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// Start handles POST /api/imports/start.
func (h *Imports) Start(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r)

	var req struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &req) {
		return
	}

	job, err := h.svc.StartImport(r.Context(), userID, req.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Plain(w, http.StatusOK, startImportResponse{
		JobID:   job.ID.String(),
		Status:  job.Status,
		Message: "Import started. Poll the status endpoint for progress.",
	})
}

// Status handles GET /api/imports/status/{jobId}.
func (h *Imports) Status(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	response.Plain(w, http.StatusOK, newImportJobView(job))
}

// List handles GET /api/imports/user.
func (h *Imports) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r)
	jobs, err := h.svc.GetUserImportJobs(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]importJobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, newImportJobView(j))
	}
	response.Plain(w, http.StatusOK, views)
}

// Delete handles DELETE /api/imports/{jobId}.
func (h *Imports) Delete(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteImportJob(r.Context(), job.ID); err != nil {
		writeError(w, r, err)
		return
	}
	response.Plain(w, http.StatusOK, message{Message: "Import job deleted"})
}

// Cleanup handles POST /api/admin/imports/cleanup.
func (h *Imports) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.CleanupOldImportJobs(r.Context(), h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, map[string]int64{"deleted": n})
}

// ownedJob loads the job named in the path and checks the caller may see
// it. It writes the error response itself and returns false on failure.
func (h *Imports) ownedJob(w http.ResponseWriter, r *http.Request) (*models.ImportJob, bool) {
	id, ok := uuidParam(w, r, "jobId")
	if !ok {
		return nil, false
	}
	job, err := h.svc.GetImportJob(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	userID, _ := mw.GetUserID(r)
	if job.UserID != userID && !mw.IsAdmin(r) {
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "Not authorized to access this import", nil)
		return nil, false
	}
	return job, true
}
