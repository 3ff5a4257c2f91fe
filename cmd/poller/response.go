package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"emailfilter/internal/domain/mail"
)

// response is the Lambda result; Body holds JSON or a short status line.
type response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type result struct {
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
	Kept    int    `json:"kept"`
}

func toResponse(summary mail.RunSummary, err error) response {
	if err != nil {
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		return response{StatusCode: http.StatusInternalServerError, Body: string(body)}
	}
	if summary.FolderNotFound {
		return response{StatusCode: http.StatusOK, Body: "No junk folder found"}
	}
	if summary.Fetched == 0 {
		return response{StatusCode: http.StatusOK, Body: "No emails to process"}
	}

	msg := fmt.Sprintf("Summary: %d deleted, %d kept", summary.Deleted, summary.Kept)
	if summary.DeleteFailed > 0 {
		msg += fmt.Sprintf(" (%d failed to delete)", summary.DeleteFailed)
	}
	body, _ := json.Marshal(result{Message: msg, Deleted: summary.Deleted, Kept: summary.Kept})
	return response{StatusCode: http.StatusOK, Body: string(body)}
}
