package constants

import "time"

// File upload constants
const (
	// MultipartMemory is the part of a multipart upload kept in memory before spilling to disk
	MultipartMemory = 32 << 20

	// UploadOverhead is added to the image size limit to allow for multipart framing
	UploadOverhead = 1 << 20

	// MaxTrainingImages caps the portraits of one face enrollment
	MaxTrainingImages = 10
)

// HTTP server constants
const (
	// SSEHeartbeatInterval keeps idle event streams alive through proxies
	SSEHeartbeatInterval = 15 * time.Second

	// ShutdownTimeout bounds graceful shutdown of the web server
	ShutdownTimeout = 30 * time.Second
)
