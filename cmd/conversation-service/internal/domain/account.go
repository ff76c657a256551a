package domain

import "time"

// Account 上游模型账号
type Account struct {
	Identity       string `json:"email"`
	Credential     string `json:"refreshToken"`
	ProjectContext string `json:"projectId,omitempty"`
}

// AccountStatus 账号可用性快照
type AccountStatus struct {
	Identity         string    `json:"identity"`
	ProjectContext   string    `json:"project,omitempty"`
	UnavailableUntil time.Time `json:"unavailable_until,omitempty"`
	Available        bool      `json:"available"`
}
