// Package autherr holds the login failure sentinels the strategies
// share. The distinction matters downstream: bad credentials are the
// user's problem, a missing form means the portal markup drifted and
// the selectors need maintenance.
package autherr

import "errors"

var ErrBadCredentials = errors.New("the portal rejected the provided credentials")

var ErrFormNotFound = errors.New("could not locate the login form on the page")
