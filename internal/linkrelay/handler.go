package linkrelay

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"linkrelay/internal/logger"
	"linkrelay/pkg/errors"
)

type Handler struct {
	service   *Service
	validator *Validator
	logger    logger.Logger
}

func NewHandler(service *Service, validator *Validator, log logger.Logger) *Handler {
	return &Handler{service: service, validator: validator, logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.POST("/sendlink", h.SendLink)
	router.GET("/test", h.Test)
	router.GET("/MYAPI", h.MyAPI)
	router.GET("/YOURAPI", h.YourAPI)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.WarnwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

// SendLink godoc
// @Summary      Submit a profile link and wait for the worker's reply
// @Description  Sends the profile reference to the work queue tagged with a correlation token, then waits for the reply carrying the same token. When no reply arrives in time the response carries a message instead of data.
// @Tags         sendlink
// @Accept       json
// @Produce      json
// @Param        request  body      SendLinkRequest  true  "Profile to process"
// @Success      200      {object}  SendLinkResponse
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      409      {object}  errors.ErrorResponse
// @Failure      429      {object}  errors.ErrorResponse
// @Failure      500      {object}  errors.ErrorResponse
// @Router       /sendlink [post]
func (h *Handler) SendLink(c *gin.Context) {
	var req SendLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.ErrValidation.WithCause(err).WithDetail("errors", []FieldError{
			{Field: "body", Message: "request body must be a JSON object with a string 'profileId'"},
		}))
		return
	}

	if fieldErrors := h.validator.Validate(c.Request.Context(), req); len(fieldErrors) > 0 {
		h.handleError(c, errors.ErrValidation.WithDetail("errors", fieldErrors))
		return
	}

	resp, err := h.service.SendLink(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Test godoc
// @Summary      Test endpoint
// @Tags         probes
// @Produce      plain
// @Success      200  {string}  string
// @Router       /test [get]
func (h *Handler) Test(c *gin.Context) {
	c.String(http.StatusOK, "This is a test endpoint.")
}

// MyAPI godoc
// @Summary      Echo endpoint
// @Tags         probes
// @Produce      plain
// @Success      200  {string}  string
// @Router       /MYAPI [get]
func (h *Handler) MyAPI(c *gin.Context) {
	c.String(http.StatusOK, "This is MYAPI..")
}

// YourAPI godoc
// @Summary      Echo endpoint
// @Tags         probes
// @Produce      plain
// @Success      200  {string}  string
// @Router       /YOURAPI [get]
func (h *Handler) YourAPI(c *gin.Context) {
	c.String(http.StatusOK, "This is YOURAPI..")
}
