package model

// TaskOutput is the structured payload a completed task produced.
// Exactly one variant matching Type is set; the rest stay nil.
type TaskOutput struct {
	Type      TaskType         `json:"type"`
	Branch    *BranchOutput    `json:"branch,omitempty"`
	Tickets   *TicketsOutput   `json:"tickets,omitempty"`
	TestSuite *TestSuiteOutput `json:"testSuite,omitempty"`
	Build     *BuildOutput     `json:"build,omitempty"`
	Tag       *TagOutput       `json:"tag,omitempty"`
	Notes     *NotesOutput     `json:"notes,omitempty"`
}

type BranchOutput struct {
	Branch    string `json:"branch"`
	CommitSHA string `json:"commitSha,omitempty"`
}

type TicketsOutput struct {
	Keys []string `json:"keys"`
}

type TestSuiteOutput struct {
	SuiteID string `json:"suiteId"`
	Reset   bool   `json:"reset,omitempty"`
}

type BuildOutput struct {
	// Locators maps each platform to the artifact locator bound to
	// the task.
	Locators map[Platform]string `json:"locators,omitempty"`
}

type TagOutput struct {
	Tag       string `json:"tag"`
	CommitSHA string `json:"commitSha,omitempty"`
}

type NotesOutput struct {
	URL string `json:"url"`
}
