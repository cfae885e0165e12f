package database

// Persisted recognition methods
const (
	MethodFaceRecognition = "face_recognition"
	MethodManual          = "manual"
)
