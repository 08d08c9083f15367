package adapter

import (
	"errors"

	"github.com/thebtf/semcache/pkg/models"
)

// envelopeFromErr maps any error returned by the engine's internal layers
// onto the response envelope's (code, desc) pair. Errors that aren't a
// *models.Error (a bug in some lower layer) still get a non-zero code
// rather than silently reporting success.
func envelopeFromErr(err error) (models.ErrorCode, string) {
	if err == nil {
		return models.CodeSuccess, ""
	}
	var e *models.Error
	if errors.As(err, &e) {
		return e.Code, e.Error()
	}
	return models.CodeQueryStoreFailed, err.Error()
}
