package audit

import (
	"net/http"
	"time"

	"github.com/campusiq/gatehouse/pkg/apperror"
	"github.com/campusiq/gatehouse/pkg/httputil"
	"github.com/campusiq/gatehouse/pkg/observability"
)

// Handlers exposes the filtered audit trail query.
type Handlers struct {
	db     *DBLogger
	logger *observability.Logger
}

func NewHandlers(db *DBLogger, logger *observability.Logger) *Handlers {
	return &Handlers{db: db, logger: logger}
}

// Search answers GET /audit with query-string filters.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filters{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		SuperOnly:  q.Get("superOnly") == "true",
	}

	f.ActorID = httputil.QueryInt64(r, "actorId", 0)
	f.Limit = httputil.QueryInt(r, "limit", 100)
	f.Offset = httputil.QueryInt(r, "offset", 0)

	var err error
	if from := q.Get("from"); from != "" {
		if f.From, err = time.Parse(time.RFC3339, from); err != nil {
			httputil.WriteError(w, r, apperror.InvalidInput("from must be RFC3339"))
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if f.To, err = time.Parse(time.RFC3339, to); err != nil {
			httputil.WriteError(w, r, apperror.InvalidInput("to must be RFC3339"))
			return
		}
	}

	records, err := h.db.Search(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httputil.WriteOK(w, r, map[string]interface{}{"records": records})
}
