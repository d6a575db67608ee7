//go:generate mockgen -destination=mock_doer.go -package=unit github.com/webqa/qa-runner/suites/unit Doer

// Package unit holds white box tests of small services, driven through mocks.
package unit

import "net/http"

// Doer sends HTTP requests. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
