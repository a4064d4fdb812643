package pg

import (
	"time"

	"signflow.dev/internal/ids"
)

func newID() string    { return ids.New() }
func nowUTC() time.Time { return time.Now().UTC() }
