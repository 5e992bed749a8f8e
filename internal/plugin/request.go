package plugin

import "github.com/google/uuid"

type NoticeType string

const (
	NoticeSuccess NoticeType = "success"
	NoticeError   NoticeType = "error"
	NoticeWarning NoticeType = "warning"
	NoticeInfo    NoticeType = "info"
)

type Notice struct {
	Type    NoticeType `json:"type"`
	Message string     `json:"message"`
}

// Request carries the per call state of one operator or user action. Notices
// added while handling it are returned to the caller.
type Request struct {
	ID       string
	ClientIP string
	notices  []Notice
}

func NewRequest(clientIP string) *Request {
	return &Request{ID: uuid.NewString(), ClientIP: clientIP}
}

func (r *Request) add(t NoticeType, msg string) {
	r.notices = append(r.notices, Notice{Type: t, Message: msg})
}

func (r *Request) Success(msg string) { r.add(NoticeSuccess, msg) }
func (r *Request) Error(msg string)   { r.add(NoticeError, msg) }
func (r *Request) Warning(msg string) { r.add(NoticeWarning, msg) }
func (r *Request) Info(msg string)    { r.add(NoticeInfo, msg) }

// Notices never returns nil so it always encodes as a JSON array.
func (r *Request) Notices() []Notice {
	if r.notices == nil {
		return []Notice{}
	}
	return r.notices
}
