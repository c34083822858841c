package testrail

// Entity shapes mirror the remote test-management API (v2). Only the fields
// the report pipeline consumes are declared; unknown fields are ignored on
// decode.

// Plan is a test plan grouping one or more entries, each holding runs.
type Plan struct {
	ID           int         `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	ProjectID    int         `json:"project_id"`
	MilestoneID  *int        `json:"milestone_id"`
	IsCompleted  bool        `json:"is_completed"`
	CompletedOn  *int64      `json:"completed_on"`
	CreatedOn    int64       `json:"created_on"`
	PassedCount  int         `json:"passed_count"`
	FailedCount  int         `json:"failed_count"`
	BlockedCount int         `json:"blocked_count"`
	Entries      []PlanEntry `json:"entries"`
}

// PlanEntry is one suite grouping inside a plan.
type PlanEntry struct {
	ID      string `json:"id"`
	SuiteID int    `json:"suite_id"`
	Name    string `json:"name"`
	Runs    []Run  `json:"runs"`
}

// Run is a single test run. Its counters are the remote service's own
// displayed pass/fail numbers and are the source of truth for report totals.
type Run struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ProjectID     int    `json:"project_id"`
	PlanID        *int   `json:"plan_id"`
	SuiteID       int    `json:"suite_id"`
	ConfigIDs     []int  `json:"config_ids"`
	IsCompleted   bool   `json:"is_completed"`
	CompletedOn   *int64 `json:"completed_on"`
	PassedCount   int    `json:"passed_count"`
	FailedCount   int    `json:"failed_count"`
	BlockedCount  int    `json:"blocked_count"`
	RetestCount   int    `json:"retest_count"`
	UntestedCount int    `json:"untested_count"`
	URL           string `json:"url"`
}

// Test is one test instance inside a run.
type Test struct {
	ID         int    `json:"id"`
	CaseID     int    `json:"case_id"`
	RunID      int    `json:"run_id"`
	StatusID   int    `json:"status_id"`
	Title      string `json:"title"`
	PriorityID int    `json:"priority_id"`
	AssignedTo *int   `json:"assignedto_id"`
	Refs       string `json:"refs"`
}

// Result is one recorded outcome for a test.
type Result struct {
	ID            int    `json:"id"`
	TestID        int    `json:"test_id"`
	StatusID      *int   `json:"status_id"`
	CreatedBy     int    `json:"created_by"`
	CreatedOn     int64  `json:"created_on"`
	Comment       string `json:"comment"`
	Defects       string `json:"defects"`
	Elapsed       string `json:"elapsed"`
	Version       string `json:"version"`
	AttachmentIDs []int  `json:"attachment_ids"`
}

// User is a remote-service account, used for assignee/author enrichment.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// Priority is a case priority level.
type Priority struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Priority  int    `json:"priority"`
	IsDefault bool   `json:"is_default"`
}

// Status is a test status definition (passed, failed, blocked, ...).
type Status struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Label      string `json:"label"`
	IsFinal    bool   `json:"is_final"`
	IsSystem   bool   `json:"is_system"`
	IsUntested bool   `json:"is_untested"`
}

// Attachment is metadata for one uploaded file.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	TestID   int    `json:"test_id"`
	ResultID int    `json:"result_id"`
	IsImage  bool   `json:"is_image"`
}

// pageLinks carries the paginated cursor block returned by list endpoints.
type pageLinks struct {
	Next *string `json:"next"`
	Prev *string `json:"prev"`
}

// testsPage is the paginated envelope for get_tests.
type testsPage struct {
	Offset int       `json:"offset"`
	Limit  int       `json:"limit"`
	Size   int       `json:"size"`
	Links  pageLinks `json:"_links"`
	Tests  []Test    `json:"tests"`
}

// resultsPage is the paginated envelope for get_results_for_run.
type resultsPage struct {
	Offset  int       `json:"offset"`
	Limit   int       `json:"limit"`
	Size    int       `json:"size"`
	Links   pageLinks `json:"_links"`
	Results []Result  `json:"results"`
}

// attachmentsPage is the paginated envelope for get_attachments_for_run.
type attachmentsPage struct {
	Offset      int          `json:"offset"`
	Limit       int          `json:"limit"`
	Size        int          `json:"size"`
	Links       pageLinks    `json:"_links"`
	Attachments []Attachment `json:"attachments"`
}

// usersPage is the paginated envelope for get_users.
type usersPage struct {
	Offset int       `json:"offset"`
	Limit  int       `json:"limit"`
	Size   int       `json:"size"`
	Links  pageLinks `json:"_links"`
	Users  []User    `json:"users"`
}
