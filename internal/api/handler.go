package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"AnemoneDB/internal/authlog"
	"AnemoneDB/internal/credential"
	"AnemoneDB/internal/mailjob"
	"AnemoneDB/internal/models"
	"AnemoneDB/internal/notify"
	"AnemoneDB/internal/plugin"
	"AnemoneDB/internal/websocket"
)

const (
	NonceHeader  = "X-AnemoneDB-Nonce"
	maxBodyBytes = 1 << 20

	eventsPath       = "/mail/jobs/events"
	accessTokenParam = "access_token"
)

// nonceActions lists the actions a token can be requested for directly.
// mail_start tokens are only handed out by a successful confirm.
var nonceActions = map[plugin.Action]bool{
	plugin.ActionMailConfirm: true,
	plugin.ActionMailPause:   true,
	plugin.ActionMailResume:  true,
	plugin.ActionMailCancel:  true,
	plugin.ActionDDPassIssue: true,
}

type Handler struct {
	Host   plugin.Host
	Nonces *Nonces
	Events *websocket.Manager
	Token  string
	Log    *zap.Logger

	upgrader ws.Upgrader
}

type response struct {
	Data    any             `json:"data,omitempty"`
	Notices []plugin.Notice `json:"notices"`
}

type confirmResponse struct {
	Preview      mailjob.Preview `json:"preview"`
	PerformNonce string          `json:"perform_nonce"`
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /mail/nonces", h.IssueNonce)
	mux.HandleFunc("POST /mail/jobs/confirm", h.ConfirmJob)
	mux.HandleFunc("POST /mail/jobs", h.StartJob)
	mux.HandleFunc("POST /mail/jobs/pause", h.guarded(plugin.ActionMailPause))
	mux.HandleFunc("POST /mail/jobs/resume", h.guarded(plugin.ActionMailResume))
	mux.HandleFunc("POST /mail/jobs/cancel", h.guarded(plugin.ActionMailCancel))
	mux.HandleFunc("GET /mail/jobs", h.simple(plugin.ActionMailStatus))
	mux.HandleFunc("GET "+eventsPath, h.JobEvents)
	mux.HandleFunc("GET /mail/pending", h.simple(plugin.ActionMailPending))

	mux.HandleFunc("POST /users/{login}/dd-pass", h.IssueDDPass)
	mux.HandleFunc("GET /users/{login}/dd-pass", h.DDPassStatus)
	mux.HandleFunc("POST /dd-pass/verify", h.body(plugin.ActionDDPassVerify))

	mux.HandleFunc("POST /users/{id}/welcome", h.SendWelcome)
	mux.HandleFunc("POST /password-reset", h.body(plugin.ActionPasswordReset))
	mux.HandleFunc("POST /auth/failures", h.body(plugin.ActionAuthFailure))

	mux.HandleFunc("POST /plugin/activate", h.Activate)
	mux.HandleFunc("POST /plugin/deactivate", h.Deactivate)

	return h.authenticate(mux)
}

// authenticate requires the operator API token on every route.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.Token)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.write(w, http.StatusUnauthorized, nil, []plugin.Notice{{Type: plugin.NoticeError, Message: "unauthorized"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a WebSocket handshake, so the events stream alone also takes the token
// from the access_token query parameter.
func bearerToken(r *http.Request) (string, bool) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token, true
	}
	if r.Method == http.MethodGet && r.URL.Path == eventsPath {
		token := r.URL.Query().Get(accessTokenParam)
		return token, token != ""
	}
	return "", false
}

func (h *Handler) newRequest(w http.ResponseWriter, r *http.Request) *plugin.Request {
	req := plugin.NewRequest(authlog.ClientIP(r))
	w.Header().Set("X-Request-ID", req.ID)
	return req
}

func (h *Handler) IssueNonce(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest(w, r)
	action := plugin.Action(r.URL.Query().Get("action"))
	if !nonceActions[action] {
		req.Error("unknown action")
		h.write(w, http.StatusBadRequest, nil, req.Notices())
		return
	}

	token, err := h.Nonces.Issue(string(action), "")
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.write(w, http.StatusOK, map[string]string{"action": string(action), "nonce": token}, req.Notices())
}

// ConfirmJob is the first step of starting a campaign. It validates the
// request and returns the token that authorises exactly this payload.
func (h *Handler) ConfirmJob(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest(w, r)
	if !h.checkNonce(w, r, req, plugin.ActionMailConfirm, "") {
		return
	}

	start, raw, ok := h.decodeStart(w, r, req)
	if !ok {
		return
	}

	out, err := h.Host.OnUserAction(r.Context(), req, plugin.ActionMailConfirm, raw)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	digest, err := Digest(start)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	token, err := h.Nonces.Issue(string(plugin.ActionMailStart), digest)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	preview, _ := out.(mailjob.Preview)
	h.write(w, http.StatusOK, confirmResponse{Preview: preview, PerformNonce: token}, req.Notices())
}

// StartJob performs a confirmed campaign.
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest(w, r)

	start, raw, ok := h.decodeStart(w, r, req)
	if !ok {
		return
	}
	digest, err := Digest(start)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if !h.checkNonce(w, r, req, plugin.ActionMailStart, digest) {
		return
	}

	h.run(w, r, req, plugin.ActionMailStart, raw, http.StatusCreated)
}

func (h *Handler) IssueDDPass(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest(w, r)
	if !h.checkNonce(w, r, req, plugin.ActionDDPassIssue, "") {
		return
	}
	raw, _ := json.Marshal(plugin.LoginPayload{Login: r.PathValue("login")})
	h.run(w, r, req, plugin.ActionDDPassIssue, raw, http.StatusCreated)
}

func (h *Handler) DDPassStatus(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest(w, r)
	raw, _ := json.Marshal(plugin.LoginPayload{Login: r.PathValue("login")})
	h.run(w, r, req, plugin.ActionDDPassStatus, raw, http.StatusOK)
}

func (h *Handler) SendWelcome(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest(w, r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		req.Error("user id must be a number")
		h.write(w, http.StatusBadRequest, nil, req.Notices())
		return
	}
	raw, _ := json.Marshal(plugin.UserPayload{UserID: id})
	h.run(w, r, req, plugin.ActionWelcome, raw, http.StatusAccepted)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest(w, r)
	if err := h.Host.OnActivate(r.Context(), req); err != nil {
		h.fail(w, req, err)
		return
	}
	req.Success("Service activated.")
	h.write(w, http.StatusOK, nil, req.Notices())
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	req := h.newRequest(w, r)
	if err := h.Host.OnDeactivate(r.Context(), req); err != nil {
		h.fail(w, req, err)
		return
	}
	h.write(w, http.StatusOK, nil, req.Notices())
}

func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.Events.AddClient(r.Context(), conn)
}

// guarded runs a body-less action behind its nonce.
func (h *Handler) guarded(action plugin.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := h.newRequest(w, r)
		if !h.checkNonce(w, r, req, action, "") {
			return
		}
		h.run(w, r, req, action, nil, http.StatusOK)
	}
}

func (h *Handler) simple(action plugin.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.run(w, r, h.newRequest(w, r), action, nil, http.StatusOK)
	}
}

// body passes the JSON request body through as the action payload.
func (h *Handler) body(action plugin.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := h.newRequest(w, r)
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			req.Error("request body too large")
			h.write(w, http.StatusRequestEntityTooLarge, nil, req.Notices())
			return
		}
		h.run(w, r, req, action, raw, http.StatusOK)
	}
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, req *plugin.Request, action plugin.Action, raw json.RawMessage, status int) {
	out, err := h.Host.OnUserAction(r.Context(), req, action, raw)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.write(w, status, out, req.Notices())
}

func (h *Handler) decodeStart(w http.ResponseWriter, r *http.Request, req *plugin.Request) (models.StartRequest, json.RawMessage, bool) {
	var start models.StartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&start); err != nil {
		req.Error("malformed request body")
		h.write(w, http.StatusBadRequest, nil, req.Notices())
		return start, nil, false
	}
	raw, err := json.Marshal(start)
	if err != nil {
		h.fail(w, req, err)
		return start, nil, false
	}
	return start, raw, true
}

func (h *Handler) checkNonce(w http.ResponseWriter, r *http.Request, req *plugin.Request, action plugin.Action, digest string) bool {
	if err := h.Nonces.Verify(r.Header.Get(NonceHeader), string(action), digest); err != nil {
		req.Error(err.Error())
		h.write(w, http.StatusForbidden, nil, req.Notices())
		return false
	}
	return true
}

// fail maps err to a status code. The host has already recorded notices for
// errors it understands.
func (h *Handler) fail(w http.ResponseWriter, req *plugin.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("request_id", req.ID), zap.Error(err))
	}
	notices := req.Notices()
	if len(notices) == 0 {
		notices = []plugin.Notice{{Type: plugin.NoticeError, Message: http.StatusText(status)}}
	}
	h.write(w, status, nil, notices)
}

func statusFor(err error) int {
	var verr *mailjob.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, mailjob.ErrNoRecipients):
		return http.StatusUnprocessableEntity
	case errors.Is(err, plugin.ErrBadPayload), errors.Is(err, credential.ErrLoginMissing):
		return http.StatusBadRequest
	case errors.Is(err, mailjob.ErrNoJob), errors.Is(err, notify.ErrUnknownUser),
		errors.Is(err, credential.ErrNotFound), errors.Is(err, plugin.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, mailjob.ErrTickInProgress), errors.Is(err, mailjob.ErrNotActive),
		errors.Is(err, mailjob.ErrNotPaused), errors.Is(err, mailjob.ErrPendingWork):
		return http.StatusConflict
	case errors.Is(err, credential.ErrInvalid):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (h *Handler) write(w http.ResponseWriter, status int, data any, notices []plugin.Notice) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response{Data: data, Notices: notices}); err != nil {
		h.Log.Warn("failed to write response", zap.Error(err))
	}
}
