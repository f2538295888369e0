// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound service calls (remote ledger).
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
