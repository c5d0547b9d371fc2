package server

import (
	"ferry/internal/domain"
	"ferry/internal/engine"
)

// Request payloads

type CreateLocationRequest struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind,omitempty" enum:"local,remote,removable"`
	Path      string  `json:"path"`
	Label     *string `json:"label,omitempty"`
	Available bool    `json:"available,omitempty"`
}

type SetLocationAvailableRequest struct {
	Available bool `json:"available"`
}

type CreateIntentRequest struct {
	Name            *string  `json:"name,omitempty"`
	SourceID        string   `json:"source_id"`
	DestinationIDs  []string `json:"destination_ids"`
	Kind            string   `json:"kind,omitempty" enum:"one_shot,sync"`
	Priority        int      `json:"priority,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

type ResolveReviewRequest struct {
	Resolution string `json:"resolution" enum:"retry,skip,accept,rescan"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type LocationResponse struct {
	Location domain.Location `json:"location"`
}

type LocationListResponse struct {
	Locations []domain.Location `json:"locations"`
}

type IntentResponse struct {
	Intent domain.Intent `json:"intent"`
}

type IntentListResponse struct {
	Intents []domain.Intent `json:"intents"`
}

type ScanResponse struct {
	Result engine.ScanResult `json:"result"`
	Intent domain.Intent     `json:"intent"`
}

type RunResponse struct {
	Result engine.RunResult `json:"result"`
	Intent domain.Intent    `json:"intent"`
}

type JobListResponse struct {
	Jobs []domain.TransferJob `json:"jobs"`
}

type ReviewListResponse struct {
	Reviews []domain.ReviewItem `json:"reviews"`
}

type ReviewResponse struct {
	Review domain.ReviewItem `json:"review"`
}

type EventListResponse struct {
	Events []domain.Event `json:"events"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
}

type APIKeyListResponse struct {
	Keys []APIKeyResponse `json:"keys"`
}

type StatusResponse struct {
	Locations int64            `json:"locations"`
	Intents   int64            `json:"intents"`
	Jobs      map[string]int64 `json:"jobs"`
	OpenItems int64            `json:"open_reviews"`
}
