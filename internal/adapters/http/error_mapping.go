package httpadapter

import (
	"net/http"

	"github.com/regulens/regulens/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrInvalidTransition),
		domain.IsKind(err, domain.ErrAssignmentConflict),
		domain.IsKind(err, domain.ErrDuplicateActiveTask):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrIndexUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
