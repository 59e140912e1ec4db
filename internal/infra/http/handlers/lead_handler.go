package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/conduit/internal/usecase"
)

type LeadHandler struct {
	Leads    *usecase.LeadService
	Messages *usecase.MessageService
	Logger   *slog.Logger
}

func NewLeadHandler(leads *usecase.LeadService, messages *usecase.MessageService, logger *slog.Logger) *LeadHandler {
	return &LeadHandler{Leads: leads, Messages: messages, Logger: logger}
}

// Routes mounts the lead API on r.
func (h *LeadHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Post("/send", h.Send)
	r.Post("/reply", h.Reply)
	r.Post("/ai/reply", h.AIReply)
	r.Get("/{id}", h.Get)
}

// Create handles POST /leads.
func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input usecase.CreateLeadInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	lead, err := h.Leads.Create(r.Context(), input)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeData(w, http.StatusCreated, lead)
}

// Get handles GET /leads/{id} and returns the full timeline.
func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := usecase.ValidateLeadID(id); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	tl, err := h.Leads.Timeline(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeData(w, http.StatusOK, tl)
}

// Send handles POST /leads/send.
func (h *LeadHandler) Send(w http.ResponseWriter, r *http.Request) {
	var input usecase.SendMessageInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	out, err := h.Messages.EnqueueSend(r.Context(), input)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeData(w, http.StatusAccepted, out)
}

// Reply handles POST /leads/reply, the inbound webhook for prospect replies.
func (h *LeadHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var input usecase.ReplyInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	msg, err := h.Messages.HandleReply(r.Context(), input)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

// AIReply handles POST /leads/ai/reply.
func (h *LeadHandler) AIReply(w http.ResponseWriter, r *http.Request) {
	var input usecase.AIReplyInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	out, err := h.Messages.RequestAIReply(r.Context(), input)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeData(w, http.StatusAccepted, out)
}
