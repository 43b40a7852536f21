package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	appintegration "github.com/erp/marketplace-ingest/internal/application/integration"
	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/dto"
)

// CredentialReader lists stored credentials
type CredentialReader interface {
	GetByShop(ctx context.Context, shopCode string) (*integration.Credential, error)
	List(ctx context.Context) ([]*integration.Credential, error)
}

// AuthorizationCodeStore stores one-time codes for re-authorization
type AuthorizationCodeStore interface {
	StoreAuthorizationCode(ctx context.Context, shopCode, code string) (*integration.Credential, error)
}

var _ AuthorizationCodeStore = (*appintegration.TokenManager)(nil)

// CredentialHandler exposes token state without secrets and accepts new
// authorization codes
type CredentialHandler struct {
	BaseHandler
	store    CredentialReader
	codes    AuthorizationCodeStore
	buffer   time.Duration
	validate *validator.Validate
	now      func() time.Time
}

// NewCredentialHandler creates a new CredentialHandler. buffer is the token
// renewal buffer used to evaluate credential state.
func NewCredentialHandler(store CredentialReader, codes AuthorizationCodeStore, buffer time.Duration) *CredentialHandler {
	return &CredentialHandler{
		store:    store,
		codes:    codes,
		buffer:   buffer,
		validate: validator.New(),
		now:      time.Now,
	}
}

// ListCredentials returns the state of every shop credential
//
//	@ID				listCredentials
//	@Summary		List shop credential states
//	@Tags			credentials
//	@Produce		json
//	@Success		200	{object}	dto.Response{data=[]appintegration.CredentialStatusResponse}
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Failure		500	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/credentials [get]
func (h *CredentialHandler) ListCredentials(c *gin.Context) {
	creds, err := h.store.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	now := h.now()
	out := make([]appintegration.CredentialStatusResponse, 0, len(creds))
	for _, cred := range creds {
		out = append(out, appintegration.ToCredentialStatusResponse(cred, now, h.buffer))
	}
	h.Success(c, out)
}

// GetCredential returns the state of one shop credential
//
//	@ID				getCredential
//	@Summary		Get a shop credential state
//	@Tags			credentials
//	@Produce		json
//	@Param			code	path	string	true	"Shop code"
//	@Success		200	{object}	dto.Response{data=appintegration.CredentialStatusResponse}
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Failure		404	{object}	dto.Response
//	@Failure		500	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/credentials/{code} [get]
func (h *CredentialHandler) GetCredential(c *gin.Context) {
	cred, err := h.store.GetByShop(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToCredentialStatusResponse(cred, h.now(), h.buffer))
}

// Authorize stores a new one-time authorization code; the next token use
// exchanges it for fresh tokens
//
//	@ID				authorizeCredential
//	@Summary		Store a one-time authorization code
//	@Tags			credentials
//	@Accept			json
//	@Produce		json
//	@Param			code	path	string	true	"Shop code"
//	@Param			request	body	appintegration.AuthorizeRequest	true	"Authorization code"
//	@Success		200	{object}	dto.Response{data=appintegration.CredentialStatusResponse}
//	@Failure		400	{object}	dto.Response
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Failure		404	{object}	dto.Response
//	@Failure		413	{object}	dto.Response
//	@Failure		500	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/credentials/{code}/authorize [post]
func (h *CredentialHandler) Authorize(c *gin.Context) {
	var req appintegration.AuthorizeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeValidation, err.Error())
		return
	}

	cred, err := h.codes.StoreAuthorizationCode(c.Request.Context(), c.Param("code"), req.Code)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToCredentialStatusResponse(cred, h.now(), h.buffer))
}
