package vk

import (
	"fmt"
	"strconv"
)

// Post is one wall.get item. Only the fields the mirror reads are decoded.
type Post struct {
	ID          int64        `json:"id"`
	OwnerID     int64        `json:"owner_id"`
	Text        string       `json:"text"`
	Date        int64        `json:"date"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ExternalID is the string form of the post id used as the dedup key.
func (p Post) ExternalID() string { return strconv.FormatInt(p.ID, 10) }

type Attachment struct {
	Type  string `json:"type"`
	Photo *Photo `json:"photo,omitempty"`
}

type Photo struct {
	ID    int64       `json:"id"`
	Sizes []PhotoSize `json:"sizes"`
}

type PhotoSize struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// APIError is the application-level error object VK returns with HTTP 200.
// It signals bad credentials or a bad group id and is never retried.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

type wallResponse struct {
	Error    *APIError `json:"error,omitempty"`
	Response *struct {
		Count int    `json:"count"`
		Items []Post `json:"items"`
	} `json:"response,omitempty"`
}
