package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"homeprov/internal/provision"
	"homeprov/types"
)

const (
	CommandCheckHomeDir  = "checkHomeDir"
	CommandCreateHomeDir = "createHomeDir"
)

type Provisioner interface {
	CheckHomeDir(ctx context.Context, credential, username string) provision.Response
	CreateHomeDir(ctx context.Context, credential, username string, rawDirs interface{}) provision.Response
}

// Dispatch runs a forwarded request against p. The request data carries
// {command, username, dirs, secret}; when secret is absent the credential
// is taken from a forwarded Authorization header.
func Dispatch(ctx context.Context, p Provisioner, request types.ForwardedRequest, logger logrus.FieldLogger) types.ForwardedResponse {
	data, _ := request.Data.(map[string]interface{})
	command := stringField(data, "command")
	username := stringField(data, "username")

	logger = logger.WithFields(logrus.Fields{
		"command":  command,
		"username": username,
		"path":     request.Path,
	})
	logger.Info("📥 Received forwarded request")

	credential, ok := data["secret"].(string)
	if !ok {
		credential = provision.CredentialFromHeader(headerValue(request.Headers, "authorization"))
	}

	var resp provision.Response
	switch command {
	case CommandCheckHomeDir:
		resp = p.CheckHomeDir(ctx, credential, username)
	case CommandCreateHomeDir:
		resp = p.CreateHomeDir(ctx, credential, username, data["dirs"])
	default:
		logger.Warn("Unknown command")
		return forwarded(http.StatusBadRequest, map[string]interface{}{"error": "unknown command: " + command})
	}

	logger.WithField("status", resp.Status).Info("📤 Sending forwarded response")
	return forwarded(resp.Status, resp.Body)
}

func forwarded(status int, body interface{}) types.ForwardedResponse {
	return types.ForwardedResponse{
		Headers:    map[string]interface{}{"content-type": "application/json"},
		Status:     status,
		StatusText: http.StatusText(status),
		Data:       body,
	}
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func headerValue(headers map[string]interface{}, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			s, _ := v.(string)
			return s
		}
	}
	return ""
}
