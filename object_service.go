package sfapi

import (
	"context"
	"encoding/json"
	"net/http"

	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
	"github.com/Sakib25800/framer-salesforce-api/internal/metrics"
	"github.com/Sakib25800/framer-salesforce-api/tracing"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const duplicatesDetected = "DUPLICATES_DETECTED"

// duplicateIDPath selects the id of the first matching record of the first
// DUPLICATES_DETECTED error in a create response.
const duplicateIDPath = `#(errorCode=="` + duplicatesDetected + `").duplicateResult.matchResults.0.matchRecords.0.record.Id`

// UpsertResult is the outcome of a create-or-update.
type UpsertResult struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Updated bool            `json:"updated"`
	Errors  json.RawMessage `json:"errors"`
}

// ObjectService reconciles records into the sObject API.
type ObjectService struct {
	objects ObjectAPI
}

// NewObjectService creates a new ObjectService instance
func NewObjectService(objects ObjectAPI) *ObjectService {
	return &ObjectService{objects: objects}
}

// Upsert creates a record from fields. When the org's duplicate rules
// reject the create, the matched record is updated instead. Field values
// are coerced first.
func (s *ObjectService) Upsert(ctx context.Context, user *AuthenticatedUser, objectName string, fields map[string]any) (*UpsertResult, error) {
	if err := validateObjectName(objectName); err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer.Start(ctx, "ObjectService.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("salesforce.object", objectName))

	fields = CoerceFields(fields)
	conn := user.Connection()

	created, err := s.objects.Create(ctx, conn, objectName, fields)
	if err != nil {
		metrics.UpsertsTotal.WithLabelValues(objectName, "failed").Inc()
		return nil, apierrors.NewReconcile("failed to create "+objectName, http.StatusBadGateway, nil).WithCause(err)
	}

	if created.OK() {
		metrics.UpsertsTotal.WithLabelValues(objectName, "created").Inc()
		return createdResult(created.Body), nil
	}

	if !gjson.GetBytes(created.Body, `#(errorCode=="`+duplicatesDetected+`")`).Exists() {
		span.SetStatus(codes.Error, "create rejected")
		metrics.UpsertsTotal.WithLabelValues(objectName, "failed").Inc()
		return nil, apierrors.NewReconcile("failed to create "+objectName, created.StatusCode, errorDetails(created.Body))
	}

	id := gjson.GetBytes(created.Body, duplicateIDPath).String()
	if id == "" {
		span.SetStatus(codes.Error, "duplicate without match")
		metrics.UpsertsTotal.WithLabelValues(objectName, "failed").Inc()
		return nil, apierrors.NewReconcile("duplicate detected but no matching record id", created.StatusCode, errorDetails(created.Body))
	}

	log.Ctx(ctx).Debug().Str("object", objectName).Str("id", id).Msg("duplicate detected, updating existing record")

	updated, err := s.objects.Update(ctx, conn, objectName, id, fields)
	if err != nil {
		metrics.UpsertsTotal.WithLabelValues(objectName, "failed").Inc()
		return nil, apierrors.NewReconcile("failed to update "+objectName, http.StatusBadGateway, nil).WithCause(err)
	}
	if !updated.OK() {
		span.SetStatus(codes.Error, "update rejected")
		metrics.UpsertsTotal.WithLabelValues(objectName, "failed").Inc()
		return nil, apierrors.NewReconcile("failed to update "+objectName, updated.StatusCode, errorDetails(updated.Body))
	}

	metrics.UpsertsTotal.WithLabelValues(objectName, "updated").Inc()

	return &UpsertResult{
		ID:      id,
		Success: true,
		Updated: true,
		Errors:  json.RawMessage(`[]`),
	}, nil
}

// AssertObjectExists fails with a not-found error when the org has no
// object named objectName.
func (s *ObjectService) AssertObjectExists(ctx context.Context, user *AuthenticatedUser, objectName string) error {
	if err := validateObjectName(objectName); err != nil {
		return err
	}

	resp, err := s.objects.Describe(ctx, user.Connection(), objectName)
	if err != nil {
		return apierrors.NewUpstream("failed to describe " + objectName).WithCause(err)
	}

	switch {
	case resp.OK():
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apierrors.NewNotFound("Salesforce object " + objectName + " does not exist")
	default:
		return apierrors.NewReconcile("failed to describe "+objectName, resp.StatusCode, errorDetails(resp.Body))
	}
}

func createdResult(body []byte) *UpsertResult {
	result := &UpsertResult{
		ID:      gjson.GetBytes(body, "id").String(),
		Success: true,
		Errors:  json.RawMessage(`[]`),
	}

	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() {
		result.Errors = json.RawMessage(errs.Raw)
	}

	return result
}

// errorDetails normalises a provider error body to a JSON array. Bodies that
// are not JSON are wrapped as a single message.
func errorDetails(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	parsed := gjson.ParseBytes(body)
	switch {
	case !gjson.ValidBytes(body):
		wrapped, _ := json.Marshal([]map[string]string{{"message": string(body)}})
		return wrapped
	case parsed.IsArray():
		return json.RawMessage(parsed.Raw)
	default:
		return json.RawMessage("[" + parsed.Raw + "]")
	}
}
