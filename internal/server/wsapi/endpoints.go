package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
)

var errForbiddenUnauthenticated = fmt.Errorf("%w: authentication required", common.ErrorForbidden)

type success struct {
	Success bool `json:"success"`
}

var succeeded = success{Success: true}

type sessionContext struct {
	CSRFToken             string `json:"csrf_token"`
	ServerTime            int64  `json:"server_time"`
	Authenticated         bool   `json:"authenticated"`
	DomainKeyCreationTime int64  `json:"domain_key_creation_time"`
}

func (h *Handler) sessionContext(_ context.Context, s *auth.Session, _ *request) (any, error) {
	csrf, err := h.svc.Sessions.GetOrCreateCSRF(s)
	if err != nil {
		return nil, err
	}
	return sessionContext{
		CSRFToken:             csrf,
		ServerTime:            h.clock.Now().UnixMilli(),
		Authenticated:         h.svc.Sessions.CheckAuthenticated(s) != "",
		DomainKeyCreationTime: h.svc.CA.Key().CreatedAt.UnixMilli(),
	}, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *Handler) userCreationStatus(ctx context.Context, s *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	principal := h.svc.Sessions.CheckAuthenticated(s)
	st, err := h.svc.Secrets.Status(ctx, models.PurposeCreateAccount, email, principal, s.AccountID)
	if err != nil {
		return nil, err
	}
	if st == services.StatusComplete {
		s.PendingCreation = ""
	}
	return statusResponse{Status: string(st)}, nil
}

func (h *Handler) emailAdditionStatus(ctx context.Context, s *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	principal := h.svc.Sessions.CheckAuthenticated(s)
	st, err := h.svc.Secrets.Status(ctx, models.PurposeAddEmail, email, principal, s.AccountID)
	if err != nil {
		return nil, err
	}
	if st == services.StatusComplete {
		s.PendingAddition = ""
	}
	return statusResponse{Status: string(st)}, nil
}

func (h *Handler) stageUser(ctx context.Context, s *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	// Staging a new account drops any existing authentication.
	h.svc.Sessions.Logout(s)

	tok, err := h.svc.Secrets.Stage(ctx, models.PurposeCreateAccount, email, req.get("site"), "")
	if err != nil {
		return nil, err
	}
	s.PendingCreation = tok
	return succeeded, nil
}

func (h *Handler) completeUserCreation(ctx context.Context, s *auth.Session, req *request) (any, error) {
	token, err := req.require("token")
	if err != nil {
		return nil, err
	}
	if _, err := h.svc.Accounts.CompleteUserCreation(ctx, s, token, req.get("pass")); err != nil {
		return nil, err
	}
	return succeeded, nil
}

func (h *Handler) stageEmail(ctx context.Context, s *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	tok, err := h.svc.Secrets.Stage(ctx, models.PurposeAddEmail, email, req.get("site"), s.AccountID)
	if err != nil {
		return nil, err
	}
	s.PendingAddition = tok
	return succeeded, nil
}

func (h *Handler) completeEmailAddition(ctx context.Context, s *auth.Session, req *request) (any, error) {
	token, err := req.require("token")
	if err != nil {
		return nil, err
	}
	if _, err := h.svc.Accounts.CompleteEmailAddition(ctx, s, token); err != nil {
		return nil, err
	}
	return succeeded, nil
}

func (h *Handler) authenticateUser(ctx context.Context, s *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	authed, err := h.svc.Sessions.Authenticate(ctx, s, email, req.get("pass"))
	if err != nil {
		return nil, err
	}
	return success{Success: authed}, nil
}

func (h *Handler) removeEmail(ctx context.Context, s *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	if err := h.svc.Accounts.RemoveEmail(ctx, s, email); err != nil {
		return nil, err
	}
	return succeeded, nil
}

func (h *Handler) accountCancel(ctx context.Context, s *auth.Session, _ *request) (any, error) {
	if err := h.svc.Accounts.CancelAccount(ctx, s); err != nil {
		return nil, err
	}
	return succeeded, nil
}

type certResponse struct {
	Success bool   `json:"success"`
	Cert    string `json:"cert"`
}

func (h *Handler) certKey(ctx context.Context, s *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	raw, err := req.require("pubkey")
	if err != nil {
		return nil, err
	}
	pub, err := keys.ParsePublicKey([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: bad public key", common.ErrorValidation)
	}
	cert, err := h.svc.CA.IssueCertificate(ctx, s, email, pub)
	if err != nil {
		return nil, err
	}
	return certResponse{Success: true, Cert: cert}, nil
}

func (h *Handler) logout(_ context.Context, s *auth.Session, _ *request) (any, error) {
	h.svc.Sessions.Logout(s)
	return succeeded, nil
}

func (h *Handler) haveEmail(ctx context.Context, _ *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	known, err := h.svc.Accounts.HaveEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return struct {
		EmailKnown bool `json:"email_known"`
	}{known}, nil
}

func (h *Handler) emailForToken(ctx context.Context, _ *auth.Session, req *request) (any, error) {
	token, err := req.require("token")
	if err != nil {
		return nil, err
	}
	email, err := h.svc.Accounts.EmailForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return struct {
		Success bool   `json:"success"`
		Email   string `json:"email"`
	}{true, email}, nil
}

func (h *Handler) listEmails(ctx context.Context, s *auth.Session, _ *request) (any, error) {
	return h.svc.Accounts.ListEmails(ctx, s)
}

func (h *Handler) addressInfo(ctx context.Context, _ *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	return h.svc.AddressInfo.Info(ctx, email)
}

func (h *Handler) stageReset(ctx context.Context, _ *auth.Session, req *request) (any, error) {
	email, err := req.require("email")
	if err != nil {
		return nil, err
	}
	if _, err := h.svc.Secrets.Stage(ctx, models.PurposeResetPassword, email, req.get("site"), ""); err != nil {
		return nil, err
	}
	return succeeded, nil
}

func (h *Handler) completeReset(ctx context.Context, s *auth.Session, req *request) (any, error) {
	token, err := req.require("token")
	if err != nil {
		return nil, err
	}
	if _, err := h.svc.Accounts.CompleteReset(ctx, s, token, req.get("pass")); err != nil {
		return nil, err
	}
	return succeeded, nil
}

// WellKnown is the issuer's published support document.
type WellKnown struct {
	PublicKey json.RawMessage `json:"public-key"`
	Created   int64           `json:"created"`
}

func (h *Handler) wellKnown(w http.ResponseWriter, r *http.Request) {
	key := h.svc.CA.Key()
	jwk, err := keys.MarshalPublicJWK(key.Public())
	if err != nil {
		h.logger.Error(r.Context(), "encoding issuer key failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, failure{})
		return
	}
	writeJSON(w, http.StatusOK, WellKnown{
		PublicKey: jwk,
		Created:   key.CreatedAt.UnixMilli(),
	})
}

func (h *Handler) ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("pong"))
}
