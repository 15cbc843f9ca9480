package controllers

import (
	"net/http"

	"github.com/serialforge/groupbuy-backend/api/middleware"
	"github.com/serialforge/groupbuy-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if user := middleware.UserIDFromContext(r.Context()); user != "" {
			payload["user_id"] = user
		}
		if guest := middleware.GuestIDFromContext(r.Context()); guest != "" {
			payload["guest_id"] = guest
		}
		responses.WriteSuccess(w, payload)
	}
}
