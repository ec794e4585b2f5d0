package api

import (
	"encoding/json"

	"magpie/internal/preflight"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	// Kind is the error family: configuration, validation, not_found,
	// timeout, external or transient.
	Kind string `json:"kind,omitempty"`
	Hint string `json:"hint,omitempty"`
}

// Counts summarizes catalog contents.
type Counts struct {
	Workflows int `json:"workflows"`
	Pages     int `json:"pages"`
	Backends  int `json:"backends"`
	History   int `json:"history"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	DatabasePath   string             `json:"databasePath"`
	LockFilePath   string             `json:"lockFilePath"`
	APIAddress     string             `json:"apiAddress,omitempty"`
	ImportDir      string             `json:"importDir,omitempty"`
	HistoryBackend string             `json:"historyBackend"`
	SchemaVersions []string           `json:"schemaVersions"`
	Counts         Counts             `json:"counts"`
	Checks         []preflight.Result `json:"checks,omitempty"`
}

// WorkflowRequest imports or updates a workflow. Graph is the API-format export.
type WorkflowRequest struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       json.RawMessage `json:"apiJson"`
}

// GenerateRequest is the JSON form of a page generation. Image, when set, is
// a data URL or bare base64 reference image.
type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
	Model          string `json:"model,omitempty"`
	BatchSize      int    `json:"batchSize,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Department     string `json:"department,omitempty"`
	Image          string `json:"image,omitempty"`
	ImageName      string `json:"imageName,omitempty"`
}

// AnalyzeRequest carries one image as a data URL.
type AnalyzeRequest struct {
	Image string `json:"image"`
}

// ImageGenerateRequest asks the hosted model for a new image.
type ImageGenerateRequest struct {
	Prompt      string `json:"prompt"`
	Variant     string `json:"variant,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// OutfitRequest dresses the person image in the garment image.
type OutfitRequest struct {
	Person  string `json:"person"`
	Garment string `json:"garment"`
	Prompt  string `json:"prompt,omitempty"`
	Variant string `json:"variant,omitempty"`
}

// ImageResponse returns generated image content as a data URL.
type ImageResponse struct {
	Image    string `json:"image"`
	MIMEType string `json:"mimeType"`
}

// ProcessResponse is the result of compressing or converting an image.
type ProcessResponse struct {
	Image        string  `json:"image"`
	Format       string  `json:"format"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Size         int     `json:"size"`
	SizeLabel    string  `json:"sizeLabel"`
	OriginalSize int     `json:"originalSize"`
	Savings      float64 `json:"savingsPercent"`
}

// RegisterRequest creates a studio account.
type RegisterRequest struct {
	Phone      string `json:"phone"`
	Password   string `json:"password"`
	Nickname   string `json:"nickname"`
	Department string `json:"department"`
}

// LoginRequest authenticates a studio account.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// ProfileRequest edits an account. Nil fields are kept; NewPassword, when
// set, requires CurrentPassword.
type ProfileRequest struct {
	Nickname        *string `json:"nickname,omitempty"`
	AvatarURL       *string `json:"avatarUrl,omitempty"`
	Department      *string `json:"department,omitempty"`
	CurrentPassword string  `json:"currentPassword,omitempty"`
	NewPassword     string  `json:"newPassword,omitempty"`
}

// RoleRequest changes an account's role. Actor is the phone of the super
// admin making the change.
type RoleRequest struct {
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

// CommentRequest posts a guestbook message or reply as the given account.
type CommentRequest struct {
	Phone   string `json:"phone"`
	Content string `json:"content"`
}

// LikeResponse reports the like count after a like.
type LikeResponse struct {
	Likes int `json:"likes"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
