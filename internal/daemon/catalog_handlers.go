package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"magpie/internal/api"
	"magpie/internal/catalog"
	"magpie/internal/comfy"
	"magpie/internal/services"
)

func (s *apiServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *apiServer) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings catalog.Settings
	if err := decodeJSON(w, r, &settings); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := s.store.SaveSettings(r.Context(), settings); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.handleGetSettings(w, r)
}

func (s *apiServer) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if workflows == nil {
		workflows = []catalog.WorkflowSummary{}
	}
	s.writeJSON(w, http.StatusOK, workflows)
}

func workflowInput(req api.WorkflowRequest) catalog.WorkflowInput {
	in := catalog.WorkflowInput{ID: req.ID, Name: req.Name, Description: req.Description}
	if len(req.Graph) > 0 && string(req.Graph) != "null" {
		in.Graph = []byte(req.Graph)
	}
	return in
}

func (s *apiServer) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req api.WorkflowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	in := workflowInput(req)
	if in.Graph == nil {
		s.writeFailure(w, r, fmt.Errorf("%w: apiJson is required", services.ErrValidation))
		return
	}
	wf, err := s.store.SaveWorkflow(r.Context(), in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, wf)
}

func (s *apiServer) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *apiServer) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req api.WorkflowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	in := workflowInput(req)
	in.ID = r.PathValue("id")
	wf, err := s.store.UpdateWorkflow(r.Context(), in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *apiServer) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.store.ListPages(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if pages == nil {
		pages = []catalog.Page{}
	}
	s.writeJSON(w, http.StatusOK, pages)
}

func (s *apiServer) handleReplacePages(w http.ResponseWriter, r *http.Request) {
	var pages []catalog.Page
	if err := decodeJSON(w, r, &pages); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := s.store.SavePages(r.Context(), pages); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.handleListPages(w, r)
}

func (s *apiServer) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.GetPage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *apiServer) handleSavePage(w http.ResponseWriter, r *http.Request) {
	var page catalog.Page
	if err := decodeJSON(w, r, &page); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	id := r.PathValue("id")
	if page.ID != "" && page.ID != id {
		s.writeFailure(w, r, fmt.Errorf("%w: body id %q does not match path id %q", services.ErrValidation, page.ID, id))
		return
	}
	page.ID = id
	saved, err := s.store.SavePage(r.Context(), page)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *apiServer) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePage(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListBackends(w http.ResponseWriter, r *http.Request) {
	backends, err := s.store.ListBackends(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if backends == nil {
		backends = []catalog.Backend{}
	}
	s.writeJSON(w, http.StatusOK, backends)
}

func (s *apiServer) handleReplaceBackends(w http.ResponseWriter, r *http.Request) {
	var backends []catalog.Backend
	if err := decodeJSON(w, r, &backends); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := s.store.SaveBackends(r.Context(), backends); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.handleListBackends(w, r)
}

func (s *apiServer) handleCheckBackend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	backends, err := s.store.ListBackends(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	for _, b := range backends {
		if b.ID != id {
			continue
		}
		if strings.TrimSpace(b.URL) == "" {
			s.writeFailure(w, r, fmt.Errorf("%w: backend %q has no url", services.ErrConfiguration, id))
			return
		}
		report := comfy.NewClient(comfy.ConfigFrom(s.daemon.cfg, b.URL)).CheckConnection(r.Context())
		s.writeJSON(w, http.StatusOK, report)
		return
	}
	s.writeFailure(w, r, fmt.Errorf("%w: backend %q", catalog.ErrNotFound, id))
}

func (s *apiServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.ListComments(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if comments == nil {
		comments = []catalog.Comment{}
	}
	s.writeJSON(w, http.StatusOK, comments)
}

func (s *apiServer) commentInput(w http.ResponseWriter, r *http.Request) (catalog.CommentInput, bool) {
	var req api.CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return catalog.CommentInput{}, false
	}
	user, err := s.store.GetUser(r.Context(), strings.TrimSpace(req.Phone))
	if err != nil {
		s.writeFailure(w, r, err)
		return catalog.CommentInput{}, false
	}
	return catalog.AuthorFrom(user, req.Content), true
}

func (s *apiServer) handleAddComment(w http.ResponseWriter, r *http.Request) {
	in, ok := s.commentInput(w, r)
	if !ok {
		return
	}
	comment, err := s.store.AddComment(r.Context(), in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, comment)
}

func (s *apiServer) handleReply(w http.ResponseWriter, r *http.Request) {
	in, ok := s.commentInput(w, r)
	if !ok {
		return
	}
	reply, err := s.store.ReplyToComment(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, reply)
}

func (s *apiServer) handleLike(w http.ResponseWriter, r *http.Request) {
	likes, err := s.store.LikeComment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LikeResponse{Likes: likes})
}

func (s *apiServer) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteComment(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	user, err := s.store.Register(r.Context(), catalog.Registration{
		Phone:      req.Phone,
		Password:   req.Password,
		Nickname:   req.Nickname,
		Department: req.Department,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *apiServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if users == nil {
		users = []catalog.User{}
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *apiServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req api.ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	phone := r.PathValue("phone")
	if req.NewPassword != "" {
		if err := s.store.ChangePassword(r.Context(), phone, req.CurrentPassword, req.NewPassword); err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}
	user, err := s.store.UpdateProfile(r.Context(), phone, catalog.ProfileUpdate{
		Nickname:   req.Nickname,
		AvatarURL:  req.AvatarURL,
		Department: req.Department,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *apiServer) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req api.RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	actor, err := s.store.GetUser(r.Context(), req.Actor)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.writeFailure(w, r, fmt.Errorf("%w: unknown actor %q", catalog.ErrForbidden, req.Actor))
		return
	case err != nil:
		s.writeFailure(w, r, err)
		return
	case actor.Role != catalog.RoleSuperAdmin:
		s.writeFailure(w, r, fmt.Errorf("%w: role changes require a super admin", catalog.ErrForbidden))
		return
	}
	user, err := s.store.SetRole(r.Context(), r.PathValue("phone"), catalog.Role(req.Role))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *apiServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	user, err := s.store.Authenticate(r.Context(), req.Phone, req.Password)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}
