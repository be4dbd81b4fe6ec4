// response/body.go
package response

import (
	"io"

	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
)

// ReadLimitedBody reads at most limit bytes of r. A body with even one byte more is reported
// as *errors.ResponseTooLargeError instead of being returned cut short.
func ReadLimitedBody(r io.Reader, limit int64, operation string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, &ndcerrors.ResponseTooLargeError{Operation: operation, Limit: limit}
	}
	return body, nil
}
