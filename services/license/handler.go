package license

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"licensekeeper/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	msgInvalidJSON      = "Invalid JSON body."
	msgMethodNotAllowed = "Method Not Allowed"
	msgValidationFailed = "Validation failed."
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type validateRequest struct {
	ClientID   string `json:"client_id"`
	LicenseKey string `json:"license_key"`
}

type ValidateResponse struct {
	Status     string `json:"status"`
	ValidUntil string `json:"valid_until"`
}

type createLicenseRequest struct {
	ClientID   string `json:"client_id" binding:"required"`
	LicenseKey string `json:"license_key" binding:"required"`
	ValidUntil string `json:"valid_until" binding:"required,datetime=2006-01-02"`
}

type updateValidityRequest struct {
	ValidUntil string `json:"valid_until" binding:"required,datetime=2006-01-02"`
}

type LicenseView struct {
	ClientID         string `json:"client_id"`
	LicenseKeyPrefix string `json:"license_key_prefix"`
	ValidUntil       string `json:"valid_until"`
}

type ListLicensesResponse struct {
	Licenses []LicenseView `json:"licenses"`
	Count    int           `json:"count"`
}

type LicenseResponse struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	LicenseKey string `json:"license_key"`
	ValidUntil string `json:"valid_until"`
}

type UpdateValidityResponse struct {
	ClientID     string `json:"client_id"`
	ValidUntil   string `json:"valid_until"`
	RowsAffected int64  `json:"rows_affected"`
}

// Validate handles POST on the public validation path.
func (h *Handler) Validate(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || !isJSONObject(raw) {
		recordValidation(OutcomeBadRequest)
		_ = c.Error(errutil.BadRequest(msgInvalidJSON, err))
		return
	}

	var req validateRequest
	if err := binding.JSON.BindBody(raw, &req); err != nil {
		recordValidation(OutcomeBadRequest)
		_ = c.Error(errutil.BadRequest(msgInvalidJSON, err))
		return
	}

	verdict, err := h.svc.Validate(c.Request.Context(), req.ClientID, req.LicenseKey)
	recordValidation(outcomeOf(verdict, err))
	if err != nil {
		_ = c.Error(err)
		return
	}

	if verdict.Valid {
		c.JSON(http.StatusOK, ValidateResponse{Status: string(OutcomeValid), ValidUntil: verdict.ValidUntil})
		return
	}
	c.JSON(http.StatusForbidden, ValidateResponse{Status: string(OutcomeExpired), ValidUntil: verdict.ValidUntil})
}

// Preflight answers CORS preflight requests.
func (h *Handler) Preflight(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

func (h *Handler) MethodNotAllowed(c *gin.Context) {
	_ = c.Error(errutil.MethodNotAllowed(msgMethodNotAllowed, nil))
}

func (h *Handler) ListLicenses(c *gin.Context) {
	licenses := h.svc.ListLicenses(c.Request.Context())

	views := make([]LicenseView, 0, len(licenses))
	for _, l := range licenses {
		views = append(views, LicenseView{
			ClientID:         l.ClientID,
			LicenseKeyPrefix: MaskKey(l.LicenseKey),
			ValidUntil:       l.ValidUntilString(),
		})
	}

	c.JSON(http.StatusOK, ListLicensesResponse{
		Licenses: views,
		Count:    len(views),
	})
}

func (h *Handler) CreateLicense(c *gin.Context) {
	var req createLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	license, err := h.svc.CreateLicense(c.Request.Context(), CreateLicenseRequest{
		ClientID:   req.ClientID,
		LicenseKey: req.LicenseKey,
		ValidUntil: req.ValidUntil,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, LicenseResponse{
		ID:         license.ID,
		ClientID:   license.ClientID,
		LicenseKey: license.LicenseKey,
		ValidUntil: license.ValidUntilString(),
	})
}

func (h *Handler) UpdateValidity(c *gin.Context) {
	clientID := c.Param("client_id")

	var req updateValidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	rows, err := h.svc.UpdateValidity(c.Request.Context(), clientID, req.ValidUntil)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, UpdateValidityResponse{
		ClientID:     clientID,
		ValidUntil:   req.ValidUntil,
		RowsAffected: rows,
	})
}

// isJSONObject rejects anything but exactly one JSON object, trailing data included.
func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{' && json.Valid(raw)
}

// bindError separates malformed bodies (400) from well-formed bodies that fail
// field rules (422 with per-field details).
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errutil.BadRequest(msgInvalidJSON, err)
	}

	details := make([]errutil.Detail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, errutil.Detail{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return errutil.ValidationFailed(msgValidationFailed, err, errutil.WithDetails(details...))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
