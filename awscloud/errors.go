package awscloud

import (
	"errors"

	"github.com/aws/smithy-go"
)

// hasErrorCode reports whether err carries one of the given provider error
// codes. Matching on structured codes rather than message text keeps the
// idempotent-conflict handling stable across SDK message changes.
func hasErrorCode(err error, codes ...string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	for _, code := range codes {
		if ae.ErrorCode() == code {
			return true
		}
	}
	return false
}
