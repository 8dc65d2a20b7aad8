package goflow

import (
	"fmt"
	"net/http"

	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
)

// classifyStatus maps an HTTP response status to the error handling design's
// typed kinds, per spec §6's error mapping table.
func classifyStatus(status int, body []byte) error {
	msg := fmt.Sprintf("job driver responded %d", status)
	if len(body) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, string(body))
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return vqerrors.New(vqerrors.KindAuthError, msg)
	case status == http.StatusNotFound:
		return vqerrors.New(vqerrors.KindNotFound, msg)
	case status >= 400 && status < 500:
		return vqerrors.New(vqerrors.KindClientError, msg)
	case status >= 500:
		return vqerrors.New(vqerrors.KindServerError, msg)
	default:
		return nil
	}
}
