package aws

import "strings"

// ShouldArchive reports whether name is a recovery log segment worth
// durably archiving to S3. Scratch and temp files churn constantly
// and carry nothing a recovery scan needs, so they're skipped.
func ShouldArchive(name string) bool {
	if strings.HasSuffix(name, ".dbtmp") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	return strings.HasSuffix(name, ".log")
}
