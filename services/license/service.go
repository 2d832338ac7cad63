package license

import (
	"context"
	"errors"
	"strings"
	"time"

	"licensekeeper/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultValidity = 30 * 24 * time.Hour
	maskedPrefixLen = 8

	msgMissingCredentials = "Missing client_id or license_key."
	msgInvalidCredentials = "Subscription expired or invalid key."
)

type Service struct {
	repo Repository
	node *snowflake.Node
	now  func() time.Time
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return newService(NewRepository(p.DB), p.Node, time.Now)
}

func newService(repo Repository, node *snowflake.Node, now func() time.Time) *Service {
	return &Service{
		repo: repo,
		node: node,
		now:  now,
	}
}

type CreateLicenseRequest struct {
	ClientID   string `json:"client_id"`
	LicenseKey string `json:"license_key"`
	ValidUntil string `json:"valid_until"`
}

// Verdict is the result of checking a client/key pair that exists in the store.
type Verdict struct {
	Valid      bool
	ValidUntil string
}

func loggerFromContext(ctx context.Context) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return zap.L()
	}
	return zap.L().With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// ListLicenses never fails from the caller's point of view: a store error is
// logged and yields an empty list.
func (s *Service) ListLicenses(ctx context.Context) []*License {
	licenses, err := s.repo.List(ctx)
	if err != nil {
		loggerFromContext(ctx).Error("failed to list licenses", zap.Error(err))
		return []*License{}
	}
	if licenses == nil {
		return []*License{}
	}
	return licenses
}

func (s *Service) CreateLicense(ctx context.Context, req CreateLicenseRequest) (*License, error) {
	zapLog := loggerFromContext(ctx)

	clientID := strings.TrimSpace(req.ClientID)
	licenseKey := strings.TrimSpace(req.LicenseKey)

	var details []errutil.Detail
	if clientID == "" {
		details = append(details, errutil.Detail{Field: "client_id", Message: "client_id is required"})
	}
	if licenseKey == "" {
		details = append(details, errutil.Detail{Field: "license_key", Message: "license_key is required"})
	}

	validUntil, detail, ok := parseRequiredDate(req.ValidUntil)
	if !ok {
		details = append(details, detail)
	}

	if len(details) > 0 {
		return nil, errutil.ValidationFailed("Please fill out all fields.", nil, errutil.WithDetails(details...))
	}

	license := &License{
		ID:         s.node.Generate().String(),
		ClientID:   clientID,
		LicenseKey: licenseKey,
		ValidUntil: validUntil,
	}

	if err := s.repo.Create(ctx, license); err != nil {
		zapLog.Error("failed to create license", zap.String("client_id", clientID), zap.Error(err))
		return nil, errutil.Internal(errutil.InternalMessage, err)
	}

	zapLog.Info("license created",
		zap.String("id", license.ID),
		zap.String("client_id", clientID),
		zap.String("valid_until", license.ValidUntilString()),
	)

	return license, nil
}

// UpdateValidity moves the expiry of every license belonging to clientID.
// Matching no rows is not an error.
func (s *Service) UpdateValidity(ctx context.Context, clientID, newDate string) (int64, error) {
	zapLog := loggerFromContext(ctx)

	validUntil, detail, ok := parseRequiredDate(newDate)
	if !ok {
		return 0, errutil.ValidationFailed("Please select a new date.", nil, errutil.WithDetails(detail))
	}

	rows, err := s.repo.UpdateValidUntil(ctx, clientID, validUntil)
	if err != nil {
		zapLog.Error("failed to update license validity", zap.String("client_id", clientID), zap.Error(err))
		return 0, errutil.Internal(errutil.InternalMessage, err)
	}

	if rows == 0 {
		zapLog.Warn("license validity update matched no rows", zap.String("client_id", clientID))
	} else {
		zapLog.Info("license validity updated",
			zap.String("client_id", clientID),
			zap.String("valid_until", FormatDate(validUntil)),
			zap.Int64("rows_affected", rows),
		)
	}

	return rows, nil
}

// Validate checks a client/key pair against the store. Unknown pairs are
// Forbidden; a known pair yields a Verdict whose Valid is true only while
// valid_until is strictly after now.
func (s *Service) Validate(ctx context.Context, clientID, licenseKey string) (*Verdict, error) {
	if clientID == "" || licenseKey == "" {
		return nil, errutil.BadRequest(msgMissingCredentials, nil)
	}

	license, err := s.repo.FindByCredentials(ctx, clientID, licenseKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.Forbidden(msgInvalidCredentials, nil)
		}
		loggerFromContext(ctx).Error("failed to look up license", zap.String("client_id", clientID), zap.Error(err))
		return nil, errutil.Internal(errutil.InternalMessage, err)
	}

	return &Verdict{
		Valid:      license.ExpiresAt().After(s.now()),
		ValidUntil: license.ValidUntilString(),
	}, nil
}

// Ping reports whether the store answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// DefaultValidUntil is the expiry offered when an operator does not pick one.
func DefaultValidUntil(now time.Time) string {
	return now.UTC().Add(defaultValidity).Format(DateLayout)
}

// MaskKey hides all but the first characters of a license key.
func MaskKey(key string) string {
	r := []rune(key)
	if len(r) > maskedPrefixLen {
		r = r[:maskedPrefixLen]
	}
	return string(r) + "..."
}

func parseRequiredDate(value string) (d datatypes.Date, detail errutil.Detail, ok bool) {
	if strings.TrimSpace(value) == "" {
		return d, errutil.Detail{Field: "valid_until", Message: "valid_until is required"}, false
	}
	parsed, err := ParseDate(value)
	if err != nil {
		return d, errutil.Detail{Field: "valid_until", Message: "valid_until must be a date in YYYY-MM-DD format"}, false
	}
	return parsed, errutil.Detail{}, true
}
