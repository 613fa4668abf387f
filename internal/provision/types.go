package provision

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Caller-facing error codes. 1-3 are the historical contract; 4 and 5 were
// added when script failures and storage timeouts got their own answers.
const (
	CodeEmptyUsername  = 1
	CodeNoIdentity     = 2
	CodeFailedDirs     = 3
	CodeHomeCreation   = 4
	CodeStorageTimeout = 5
)

const (
	OperationCheck  = "check"
	OperationCreate = "create"
)

// WellKnownDirs are the directories reported by CheckHomeDir.
var WellKnownDirs = []string{"Desktop", "Documents", "Music", "Pictures", "Videos"}

// ErrProbeTimeout means EOS never gave a definite answer about the home.
var ErrProbeTimeout = errors.New("storage did not report a definite status")

// Response is what a transport sends back: an HTTP status and an optional
// JSON body (ErrorBody, CheckBody or nil).
type Response struct {
	Status int
	Body   interface{}
}

type ErrorBody struct {
	Code int         `json:"code"`
	Msg  interface{} `json:"msg"`
}

type CheckBody struct {
	Dirs map[string]bool `json:"dirs"`
}

// Outcome summarises a create request for logging.
type Outcome struct {
	Created    bool
	FailedDirs []string
}

func noIdentityMessage(username string) string {
	return fmt.Sprintf("Your account (%s) has no computing group assigned. <br> Please use the CERN Account Service to fix this.  "+
		"You may also check out <a href=\"https://cern.service-now.com/service-portal/article.do?n=KB0002981\">CERNBOX FAQ</a> for additional information. "+
		"<br> If the problem persists then please report it via CERN Service Portal.", username)
}

func errorResponse(status, code int, msg interface{}) Response {
	return Response{Status: status, Body: ErrorBody{Code: code, Msg: msg}}
}

var (
	internalError = Response{Status: http.StatusInternalServerError}
	unauthorized  = Response{Status: http.StatusUnauthorized}
	notFound      = Response{Status: http.StatusNotFound}
	created       = Response{Status: http.StatusCreated}
)

// CredentialFromHeader returns the token part of an Authorization header
// ("Bearer <token>", "Basic <token>", ...). The scheme is not checked.
func CredentialFromHeader(authz string) string {
	parts := strings.SplitN(strings.TrimSpace(authz), " ", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SanitizeDirs keeps the string elements of a decoded JSON value, in order.
// Anything that is not a list yields no directories.
func SanitizeDirs(raw interface{}) []string {
	dirs := []string{}
	switch v := raw.(type) {
	case []string:
		dirs = append(dirs, v...)
	case []interface{}:
		for _, d := range v {
			if s, ok := d.(string); ok {
				dirs = append(dirs, s)
			}
		}
	}
	return dirs
}
