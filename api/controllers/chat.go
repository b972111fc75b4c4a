package controllers

import (
	"net/http"

	"github.com/angelmondragon/supportdesk-backend/api/responses"
	"github.com/angelmondragon/supportdesk-backend/api/validators"
	"github.com/angelmondragon/supportdesk-backend/internal/chat"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

type chatMessageBody struct {
	Content string `json:"content" validate:"required,notblank"`
}

// ChatHistory returns the decrypted conversation of a complaint.
func ChatHistory(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		complaintID, err := validators.ParseUUIDParam(r, complaintIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context(), principal, complaintID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

// ChatSend posts a message. Everyone in the complaint room receives it over
// the socket as well.
func ChatSend(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		complaintID, err := validators.ParseUUIDParam(r, complaintIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body chatMessageBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.Send(r.Context(), principal, chat.SendInput{ComplaintID: complaintID, Content: body.Content})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, msg)
	}
}
