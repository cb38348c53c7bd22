package main

import (
	"strings"

	"github.com/mama165/sdk-go/database"
)

const maxDetail = 120

// IndexMapper labels Badger rows by key prefix for the debug inspector.
// Credential hashes are never displayed.
func IndexMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	prefix, _, _ := strings.Cut(key, ":")
	row.Type = strings.ToUpper(prefix)

	switch prefix {
	case "cred":
		row.Detail = "<redacted>"
	case "loc", "unread", "meta":
		row.Detail = key
	default:
		detail := string(val)
		if len(detail) > maxDetail {
			detail = detail[:maxDetail] + "..."
		}
		row.Detail = detail
	}
	return row
}
