package booking

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"rueda/apierror"
	"rueda/models"
	"rueda/store"
	"rueda/utils"
)

// GET /api/notifications?unread=true
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	me := utils.GetUserIDFromRequest(r)
	unread := utils.QueryBool(r, "unread")

	list, err := store.Get(ctx, h.retry, func() ([]models.Notification, error) {
		return h.stores.Notifications.ListNotifications(ctx, me, unread)
	})
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

type markReadBody struct {
	IDs []string `json:"ids" validate:"max=500,dive,required"`
}

// MarkRead flags the listed notifications as read; an empty list marks all.
//
// POST /api/notifications/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body markReadBody
	if err := utils.DecodeAndValidate(r, &body); err != nil {
		apierror.Write(w, r, err)
		return
	}
	ctx := r.Context()
	n, err := store.Get(ctx, h.retry, func() (int, error) {
		return h.stores.Notifications.MarkRead(ctx, utils.GetUserIDFromRequest(r), body.IDs...)
	})
	if err != nil {
		apierror.Write(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"updated": n})
}
