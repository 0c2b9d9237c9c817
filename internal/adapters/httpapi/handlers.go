package httpapi

import (
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"teammatch/internal/blob"
	"teammatch/internal/core"
)

type createEventRequest struct {
	core.NewEvent
	UploadKey string `json:"upload_key" binding:"required"`
}

type createTeamRequest struct {
	ThemeKey    string `json:"theme_key" binding:"required"`
	Name        string `json:"name" binding:"required"`
	LeaderID    string `json:"leader_id" binding:"required"`
	LeaderAlias string `json:"leader_alias"`
	Needs       string `json:"needs"`
}

type joinRequest struct {
	MemberID string `json:"member_id" binding:"required"`
	Alias    string `json:"alias"`
}

type needsRequest struct {
	Needs string `json:"needs"`
}

func (h *Handler) upload(c *gin.Context) {
	if h.blobs == nil {
		h.fail(c, core.ErrNoBlobStore)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, err)
			return
		}
		badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer func() { _ = f.Close() }()

	key := blob.UploadKey(path.Base(fh.Filename))
	info, err := h.blobs.Put(c.Request.Context(), key, f, blob.PutOptions{
		ContentType: fh.Header.Get("Content-Type"),
		Metadata:    map[string]string{"filename": fh.Filename},
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": info.Key, "size": info.Size})
}

func (h *Handler) createEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	event, problems, err := h.svc.CreateEventFromUpload(c.Request.Context(), req.NewEvent, req.UploadKey)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(problems) > 0 {
		c.JSON(http.StatusUnprocessableEntity, errorBody{Code: codeInvalidTable, Error: "theme table rejected", Details: problems})
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *Handler) listEvents(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		events []core.Event
		err    error
	)
	switch {
	case c.Query("organizer") != "":
		events, err = h.svc.EventsOrganizedBy(ctx, c.Query("organizer"))
	case c.Query("member") != "":
		events, err = h.svc.EventsJoinedBy(ctx, c.Query("member"))
	default:
		events, err = h.svc.ListEvents(ctx)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) eventNameAvailable(c *gin.Context) {
	unique, err := h.svc.IsEventNameUnique(c.Request.Context(), c.Query("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": unique})
}

func (h *Handler) getEvent(c *gin.Context) {
	event, err := h.svc.GetEvent(c.Request.Context(), c.Param("event"))
	respond(h, c, event, err)
}

func (h *Handler) deleteEvent(c *gin.Context) {
	summary, err := h.svc.DeleteEvent(c.Request.Context(), c.Param("event"))
	respond(h, c, summary, err)
}

func (h *Handler) listThemes(c *gin.Context) {
	themes, err := h.svc.ListThemes(c.Request.Context(), c.Param("event"))
	respond(h, c, themes, err)
}

func (h *Handler) themeDetails(c *gin.Context) {
	card, err := h.svc.ThemeDetails(c.Request.Context(), c.Param("event"), c.Param("theme"))
	respond(h, c, card, err)
}

func (h *Handler) themesAvailableToLead(c *gin.Context) {
	themes, err := h.svc.ThemesAvailableToLead(c.Request.Context(), c.Query("member"), c.Param("event"))
	respond(h, c, themes, err)
}

func (h *Handler) themesAvailableToJoin(c *gin.Context) {
	themes, err := h.svc.ThemesAvailableToJoin(c.Request.Context(), c.Query("member"), c.Param("event"))
	respond(h, c, themes, err)
}

func (h *Handler) teamsAvailableToJoin(c *gin.Context) {
	teams, err := h.svc.TeamsAvailableToJoin(c.Request.Context(), c.Query("member"), c.Param("event"), c.Param("theme"))
	respond(h, c, teams, err)
}

func (h *Handler) canLeadTheme(c *gin.Context) {
	ok, err := h.svc.CanLeadTheme(c.Request.Context(), c.Query("member"), c.Param("event"), c.Param("theme"))
	respond(h, c, gin.H{"allowed": ok}, err)
}

func (h *Handler) createTeam(c *gin.Context) {
	var req createTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	team, err := h.svc.CreateTeam(c.Request.Context(), core.NewTeam{
		EventKey:    c.Param("event"),
		ThemeKey:    req.ThemeKey,
		Name:        req.Name,
		LeaderID:    req.LeaderID,
		LeaderAlias: req.LeaderAlias,
		Needs:       req.Needs,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, team)
}

func (h *Handler) teamNameAvailable(c *gin.Context) {
	unique, err := h.svc.IsTeamNameUnique(c.Request.Context(), c.Param("event"), c.Query("name"))
	respond(h, c, gin.H{"available": unique}, err)
}

func (h *Handler) getTeam(c *gin.Context) {
	team, err := h.svc.GetTeam(c.Request.Context(), c.Param("event"), c.Param("team"))
	respond(h, c, team, err)
}

func (h *Handler) deleteTeam(c *gin.Context) {
	notify, err := h.svc.DeleteTeam(c.Request.Context(), c.Param("event"), c.Param("team"), c.Query("leader_id"))
	respond(h, c, gin.H{"notify": notify}, err)
}

func (h *Handler) teamOccupancy(c *gin.Context) {
	occ, err := h.svc.TeamOccupancy(c.Request.Context(), c.Param("event"), c.Param("team"))
	respond(h, c, occ, err)
}

func (h *Handler) pendingRequests(c *gin.Context) {
	rows, err := h.svc.PendingRequests(c.Request.Context(), c.Param("event"), c.Param("team"))
	respond(h, c, rows, err)
}

func (h *Handler) teamMembers(c *gin.Context) {
	rows, err := h.svc.TeamMembers(c.Request.Context(), c.Param("event"), c.Param("team"))
	respond(h, c, rows, err)
}

func (h *Handler) requestToJoin(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	info, err := h.svc.RequestToJoin(c.Request.Context(), req.MemberID, req.Alias, c.Param("event"), c.Param("team"))
	respond(h, c, info, err)
}

func (h *Handler) acceptMember(c *gin.Context) {
	occ, err := h.svc.AcceptMember(c.Request.Context(), c.Param("event"), c.Param("team"), c.Param("member"))
	respond(h, c, occ, err)
}

func (h *Handler) removeMember(c *gin.Context) {
	removed, err := h.svc.RemoveMember(c.Request.Context(), c.Param("event"), c.Param("team"), c.Param("member"))
	respond(h, c, removed, err)
}

func (h *Handler) toggleOpen(c *gin.Context) {
	open, err := h.svc.ToggleTeamOpen(c.Request.Context(), c.Param("event"), c.Param("team"))
	respond(h, c, gin.H{"open": open}, err)
}

func (h *Handler) updateNeeds(c *gin.Context) {
	var req needsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	team, err := h.svc.UpdateTeamNeeds(c.Request.Context(), c.Param("event"), c.Param("team"), req.Needs)
	respond(h, c, team, err)
}

func (h *Handler) teamOfMember(c *gin.Context) {
	team, err := h.svc.TeamOfMember(c.Request.Context(), c.Param("member"), c.Param("event"))
	respond(h, c, team, err)
}

func (h *Handler) memberAlias(c *gin.Context) {
	alias, err := h.svc.MemberAlias(c.Request.Context(), c.Param("member"))
	respond(h, c, gin.H{"alias": alias}, err)
}

func respond(h *Handler, c *gin.Context, body any, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}
