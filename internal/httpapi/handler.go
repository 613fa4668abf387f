package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"homeprov/internal/provision"
)

const maxBodySize = 1024 * 1024

type Provisioner interface {
	CheckHomeDir(ctx context.Context, credential, username string) provision.Response
	CreateHomeDir(ctx context.Context, credential, username string, rawDirs interface{}) provision.Response
}

type Handler struct {
	provisioner Provisioner
	log         logrus.FieldLogger
}

func NewHandler(provisioner Provisioner, log logrus.FieldLogger) *Handler {
	return &Handler{provisioner: provisioner, log: log}
}

// requestBody is decoded leniently: a malformed body behaves like an empty
// one so the caller still gets the auth and username answers first.
type requestBody struct {
	Username string      `json:"username"`
	Dirs     interface{} `json:"dirs"`
}

func (h *Handler) decode(r *http.Request) requestBody {
	var body requestBody
	if r.Body == nil {
		return body
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || len(data) == 0 {
		return body
	}
	if err := json.Unmarshal(data, &body); err != nil {
		h.log.WithError(err).Debug("Ignoring malformed request body")
		return requestBody{}
	}
	return body
}

// HandleCheck accepts the username as a query parameter or in a JSON body.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" && r.Method == http.MethodPost {
		username = h.decode(r).Username
	}

	credential := provision.CredentialFromHeader(r.Header.Get("Authorization"))
	writeResponse(w, h.provisioner.CheckHomeDir(r.Context(), credential, username))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	body := h.decode(r)
	credential := provision.CredentialFromHeader(r.Header.Get("Authorization"))
	writeResponse(w, h.provisioner.CreateHomeDir(r.Context(), credential, body.Username, body.Dirs))
}

func writeResponse(w http.ResponseWriter, resp provision.Response) {
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp.Body)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
