package models

// TokenRequest represents a request to mint a room join token.
type TokenRequest struct {
	Room      string `json:"room" binding:"required"`
	Identity  string `json:"identity" binding:"required"`
	ExpiresIn int    `json:"expiresIn"` // Seconds until expiration (default 3600)
}

// TokenResponse represents the response to a token request.
type TokenResponse struct {
	Token     string `json:"token"`
	Room      string `json:"room"`
	Identity  string `json:"identity"`
	ExpiresAt string `json:"expiresAt"`
}

// StatsResponse is the link stats snapshot returned by the API.
type StatsResponse struct {
	Identity          string `json:"identity"`
	FramesSent        uint64 `json:"framesSent"`
	FramesReceived    uint64 `json:"framesReceived"`
	BytesSent         uint64 `json:"bytesSent"`
	BytesReceived     uint64 `json:"bytesReceived"`
	SegmentsSent      uint64 `json:"segmentsSent"`
	SegmentsReceived  uint64 `json:"segmentsReceived"`
	FramesDiscarded   uint64 `json:"framesDiscarded"`
	TruncatedSegments uint64 `json:"truncatedSegments"`
	LastFrameTime     string `json:"lastFrameTime,omitempty"`
}
