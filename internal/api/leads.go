package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/sdr/internal/storage"
)

type createLeadRequest struct {
	FirstName      string  `json:"first_name" validate:"required"`
	LastName       string  `json:"last_name" validate:"required"`
	Email          string  `json:"email" validate:"required,email"`
	Phone          *string `json:"phone"`
	CompanyName    string  `json:"company_name" validate:"required"`
	JobTitle       *string `json:"job_title"`
	CompanySize    *string `json:"company_size"`
	Industry       *string `json:"industry"`
	CompanyWebsite *string `json:"company_website"`
	LinkedInURL    *string `json:"linkedin_url"`
	Notes          *string `json:"notes"`
}

type updateLeadRequest struct {
	FirstName      *string  `json:"first_name" validate:"omitnil,min=1"`
	LastName       *string  `json:"last_name" validate:"omitnil,min=1"`
	Email          *string  `json:"email" validate:"omitnil,email"`
	Phone          *string  `json:"phone"`
	CompanyName    *string  `json:"company_name" validate:"omitnil,min=1"`
	JobTitle       *string  `json:"job_title"`
	CompanySize    *string  `json:"company_size"`
	Industry       *string  `json:"industry"`
	CompanyWebsite *string  `json:"company_website"`
	LinkedInURL    *string  `json:"linkedin_url"`
	Notes          *string  `json:"notes"`
	LeadScore      *float64 `json:"lead_score" validate:"omitempty,gte=0"`
	PipelineStage  *string  `json:"pipeline_stage" validate:"omitempty,oneof=new qualified contacted meeting_scheduled proposal_sent negotiation closed_won closed_lost"`
}

func (u updateLeadRequest) patch() storage.LeadPatch {
	p := storage.LeadPatch{
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Email:          u.Email,
		Phone:          u.Phone,
		CompanyName:    u.CompanyName,
		JobTitle:       u.JobTitle,
		CompanySize:    u.CompanySize,
		Industry:       u.Industry,
		CompanyWebsite: u.CompanyWebsite,
		LinkedInURL:    u.LinkedInURL,
		Notes:          u.Notes,
		LeadScore:      u.LeadScore,
	}
	if u.PipelineStage != nil {
		st := storage.PipelineStage(*u.PipelineStage)
		p.PipelineStage = &st
	}
	return p
}

type interactionRequest struct {
	InteractionType string  `json:"interaction_type" validate:"required,oneof=email call meeting linkedin note"`
	Subject         *string `json:"subject"`
	Content         string  `json:"content" validate:"required"`
}

type scoreRequest struct {
	CriteriaIDs []int64 `json:"criteria_ids" validate:"omitempty,dive,gt=0"`
}

type generateMessageRequest struct {
	MessageType        string `json:"message_type" validate:"required"`
	CustomInstructions string `json:"custom_instructions"`
}

// leadDetail is a lead with its activity, newest first.
type leadDetail struct {
	storage.Lead
	Interactions []storage.Interaction `json:"interactions"`
	Messages     []storage.Message     `json:"messages"`
}

func handleCreateLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLeadRequest
		if !decodeBody(w, r, &req) {
			return
		}

		lead, err := deps.Store.CreateLead(storage.Lead{
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Email:          req.Email,
			Phone:          req.Phone,
			CompanyName:    req.CompanyName,
			JobTitle:       req.JobTitle,
			CompanySize:    req.CompanySize,
			Industry:       req.Industry,
			CompanyWebsite: req.CompanyWebsite,
			LinkedInURL:    req.LinkedInURL,
			Notes:          req.Notes,
		})
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func handleListLeads(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage := storage.PipelineStage(strings.TrimSpace(r.URL.Query().Get("stage")))
		if stage != "" && !stage.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid stage %q", stage)
			return
		}

		leads, err := deps.Store.ListLeads(storage.LeadFilter{
			Stage:  stage,
			Search: r.URL.Query().Get("search"),
			Offset: parseIntParam(r, "skip", 0, 0),
			Limit:  parseIntParam(r, "limit", 100, 1000),
		})
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		if leads == nil {
			leads = []storage.Lead{}
		}
		writeJSON(w, http.StatusOK, leads)
	}
}

func handleGetLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		lead, err := deps.Store.GetLead(id)
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		interactions, err := deps.Store.ListInteractions(id)
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		messages, err := deps.Store.ListMessages(id)
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		if messages == nil {
			messages = []storage.Message{}
		}

		writeJSON(w, http.StatusOK, leadDetail{Lead: lead, Interactions: interactions, Messages: messages})
	}
}

func handleUpdateLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req updateLeadRequest
		if !decodeBody(w, r, &req) {
			return
		}

		lead, err := deps.Store.UpdateLead(id, req.patch())
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func handleDeleteLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		if err := deps.Store.DeleteLead(id); err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Lead deleted successfully"})
	}
}

func handlePipelineStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.PipelineStats()
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleQualifyLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		q, err := deps.Scoring.Qualify(r.Context(), id)
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func handleScoreLead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req scoreRequest
		if r.ContentLength != 0 {
			if !decodeBody(w, r, &req) {
				return
			}
		}

		res, err := deps.Scoring.Score(r.Context(), id, req.CriteriaIDs)
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleAddInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req interactionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ix, err := deps.Store.AddInteraction(storage.Interaction{
			LeadID:          id,
			InteractionType: storage.InteractionType(req.InteractionType),
			Subject:         req.Subject,
			Content:         req.Content,
		})
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		writeJSON(w, http.StatusOK, ix)
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		if _, err := deps.Store.GetLead(id); err != nil {
			writeServiceError(w, "lead", err)
			return
		}

		interactions, err := deps.Store.ListInteractions(id)
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, http.StatusOK, interactions)
	}
}

func handleGenerateMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req generateMessageRequest
		if !decodeBody(w, r, &req) {
			return
		}

		msg, err := deps.Outreach.Generate(r.Context(), id, req.MessageType, req.CustomInstructions)
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		if _, err := deps.Store.GetLead(id); err != nil {
			writeServiceError(w, "lead", err)
			return
		}

		messages, err := deps.Store.ListMessages(id)
		if err != nil {
			writeServiceError(w, "lead", err)
			return
		}
		if messages == nil {
			messages = []storage.Message{}
		}
		writeJSON(w, http.StatusOK, messages)
	}
}
