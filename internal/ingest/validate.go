package ingest

import "fmt"

// acceptedContentType is the only document type the pipeline accepts.
const acceptedContentType = "application/pdf"

// ValidateContentType checks the caller-declared content type of an upload.
// It is a contract on declared metadata, not a security boundary; no content
// sniffing happens here.
func ValidateContentType(declared string) error {
	if declared == acceptedContentType {
		return nil
	}
	return newError(KindValidation, fmt.Sprintf("uploaded file is not %s, it is %s", acceptedContentType, declared))
}
