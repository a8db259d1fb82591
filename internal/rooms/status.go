package rooms

import (
	"errors"
	"net/http"

	"watchsync/internal/media"
)

// HTTPStatus maps a rooms error to the status the REST routes answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrParticipantNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorizedControl):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrEmptyVideoURL), errors.Is(err, ErrDisplayNameRequired),
		errors.Is(err, media.ErrInvalidYouTubeURL):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
