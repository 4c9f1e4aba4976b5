package models

// ProcessImageRequest is the body of POST /process_image. ImageURL is either
// a path returned by /upload_image or an http(s), az:// or s3:// reference.
type ProcessImageRequest struct {
	ImageURL string `json:"image_url"`
}

// UploadResponse is returned by POST /upload_image.
type UploadResponse struct {
	FilePath string `json:"file_path"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
