// Package respond maps domain errors onto HTTP statuses with the uniform
// error body. Handlers never inspect error text; the typed error decides
// the status.
package respond

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/tapewise/backend/internal/oid"
	"github.com/tapewise/backend/internal/store"
	"github.com/tapewise/backend/pkg/utils"
)

// DomainError writes the status and body for a service-layer error.
func DomainError(w http.ResponseWriter, err error) {
	var invalidOid *oid.InvalidOidError
	var notFound *store.NotFoundError
	var forbidden *store.ForbiddenError
	var conflict *store.ConflictError
	var unsupported *store.UnsupportedError

	switch {
	case errors.As(err, &invalidOid):
		utils.RespondError(w, http.StatusBadRequest, "invalid_oid", invalidOid.Error())
	case errors.As(err, &notFound):
		utils.RespondError(w, http.StatusNotFound, "not_found", notFound.Error())
	case errors.As(err, &forbidden):
		utils.RespondError(w, http.StatusForbidden, "forbidden", forbidden.Error())
	case errors.As(err, &conflict):
		utils.RespondError(w, http.StatusConflict, "conflict", conflict.Error())
	case errors.As(err, &unsupported):
		utils.RespondError(w, http.StatusUnprocessableEntity, "unsupported", unsupported.Error())
	default:
		log.Error("internal error", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
