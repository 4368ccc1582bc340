package ws

import "github.com/oklog/ulid/v2"

// newConnID returns a sortable connection id, handy when correlating a
// burst of reconnects in logs.
func newConnID() string {
	return ulid.Make().String()
}
