package models

// PaginationInfo describes one page of a list response.
type PaginationInfo struct {
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
}

// ThreadsResponse is a page of threads.
type ThreadsResponse struct {
	Threads    []*Thread      `json:"threads"`
	Pagination PaginationInfo `json:"pagination"`
}

// SyncResponse reports the outcome of a sync request.
type SyncResponse struct {
	Status string `json:"status"`
	Stored int    `json:"stored"`
}

// ThreadDetailResponse is a thread with its messages, oldest first.
type ThreadDetailResponse struct {
	Thread   *Thread          `json:"thread"`
	Messages []MessageSummary `json:"messages"`
}
