package domain

import "time"

// SyncRun summarizes one execution of the sync pipeline.
type SyncRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Rows       int       `json:"rows"`
	Reanalyzed int       `json:"reanalyzed"`
	Carried    int       `json:"carried"`
	Failed     int       `json:"failed"`
}

// Settings are the operator-provided texts that steer the analyzer prompts.
type Settings struct {
	AssistantName string `json:"assistant_name"`
	Objectives    string `json:"objectives"`
	Taxonomy      string `json:"taxonomy"`
}

// Complete reports whether every setting needed by the analyzer is present.
func (s Settings) Complete() bool {
	return s.AssistantName != "" && s.Objectives != "" && s.Taxonomy != ""
}
