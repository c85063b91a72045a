package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"reservas/internal/domain"
	"reservas/internal/models"
	"reservas/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Create(ctx context.Context, in service.SpaceInput) (service.MutationResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(service.MutationResult), args.Error(1)
}
func (m *mockCatalog) Update(ctx context.Context, id int64, in service.SpaceInput) (service.MutationResult, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(service.MutationResult), args.Error(1)
}
func (m *mockCatalog) Delete(ctx context.Context, id int64) (service.MutationResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.MutationResult), args.Error(1)
}
func (m *mockCatalog) Get(ctx context.Context, id int64) (*models.Space, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Space), args.Error(1)
}
func (m *mockCatalog) Patch(ctx context.Context, id int64, p service.SpacePatch) (service.MutationResult, error) {
	args := m.Called(ctx, id, p)
	return args.Get(0).(service.MutationResult), args.Error(1)
}
func (m *mockCatalog) Query(ctx context.Context, q models.SpaceQuery) (service.SpacePage, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(service.SpacePage), args.Error(1)
}
func (m *mockCatalog) CreateSpaceType(ctx context.Context, in service.SpaceTypeInput) (*models.SpaceType, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SpaceType), args.Error(1)
}
func (m *mockCatalog) UpdateSpaceType(ctx context.Context, id int64, in service.SpaceTypeInput) (*models.SpaceType, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SpaceType), args.Error(1)
}
func (m *mockCatalog) DeleteSpaceType(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockCatalog) GetSpaceType(ctx context.Context, id int64) (*models.SpaceType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SpaceType), args.Error(1)
}
func (m *mockCatalog) ListSpaceTypes(ctx context.Context) ([]*models.SpaceType, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.SpaceType), args.Error(1)
}
func (m *mockCatalog) Resync(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestCatalogHTTP_Create(t *testing.T) {
	catalog := new(mockCatalog)
	in := service.SpaceInput{Name: "Sala A", TypeID: 1, Capacity: 10, HourlyRate: 75, DailyRate: 500}
	space := &models.Space{ID: 1, Name: "Sala A", Capacity: 10, HourlyRate: 75, DailyRate: 500, Active: true}
	catalog.On("Create", mock.Anything, in).Return(service.MutationResult{Space: space}, nil).Once()
	h := NewCatalogHTTPServer(openAPIConfig(), catalog, nil, testLogger()).Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/spaces",
		`{"nombre":"Sala A","tipoEspacioId":1,"capacidad":10,"tarifaHora":75,"tarifaDia":500}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Sala A", body["data"].(map[string]any)["name"])
	assert.NotContains(t, body, "warning")
	catalog.AssertExpectations(t)
}

func TestCatalogHTTP_PublishFailureIsAWarning(t *testing.T) {
	catalog := new(mockCatalog)
	space := &models.Space{ID: 2, Name: "Sala B", Capacity: 4, Active: true}
	result := service.MutationResult{Space: space, PublishErr: errors.New("kafka down")}
	catalog.On("Update", mock.Anything, int64(2), mock.AnythingOfType("service.SpaceInput")).Return(result, nil).Once()
	h := NewCatalogHTTPServer(openAPIConfig(), catalog, nil, testLogger()).Handler()

	rec := doRequest(t, h, http.MethodPut, "/api/v1/spaces/2", `{"nombre":"Sala B","capacidad":4}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, result.Warning(), body["warning"])
	assert.NotContains(t, rec.Body.String(), "kafka down")
}

func TestCatalogHTTP_ErrorsAndLookups(t *testing.T) {
	catalog := new(mockCatalog)
	catalog.On("Get", mock.Anything, int64(5)).Return(nil, domain.ErrSpaceNotFound)
	catalog.On("Delete", mock.Anything, int64(5)).Return(service.MutationResult{}, domain.ErrSpaceNotFound)
	catalog.On("Create", mock.Anything, mock.Anything).Return(service.MutationResult{}, service.ErrSpaceNameTaken)
	catalog.On("Query", mock.Anything, models.SpaceQuery{}).
		Return(service.SpacePage{Data: []*models.Space{{ID: 1}, {ID: 2}}, Page: 1, Size: 2, Total: 2}, nil)
	h := NewCatalogHTTPServer(openAPIConfig(), catalog, nil, testLogger()).Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/spaces/5", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/spaces/5", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/spaces", `{"nombre":"Sala A","capacidad":1}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "space_name_taken", decodeBody(t, rec)["code"])

	rec = doRequest(t, h, http.MethodGet, "/api/v1/spaces", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, float64(2), body["total"])
}

func TestCatalogHTTP_ListQuery(t *testing.T) {
	catalog := new(mockCatalog)
	typeID := int64(3)
	active := true
	want := models.SpaceQuery{
		Page: 2, Size: models.DefaultPageSize, OrderBy: "hourly_rate", Descending: true,
		Name: "sala", TypeID: &typeID, Active: &active, MinCapacity: 10,
	}
	catalog.On("Query", mock.Anything, want).
		Return(service.SpacePage{Data: []*models.Space{{ID: 21}}, Page: 2, Size: 20, Total: 21}, nil).Once()
	h := NewCatalogHTTPServer(openAPIConfig(), catalog, nil, testLogger()).Handler()

	rec := doRequest(t, h, http.MethodGet,
		"/api/v1/spaces?page=2&order_by=hourly_rate&order_dir=DESC&name=sala&type_id=3&active=true&min_capacity=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, float64(20), body["size"])
	assert.Equal(t, float64(21), body["total"])
	catalog.AssertExpectations(t)

	for _, bad := range []string{"page=x", "size=-1", "order_dir=up", "type_id=a", "active=maybe"} {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/spaces?"+bad, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	catalog.On("Query", mock.Anything, models.SpaceQuery{OrderBy: "secret"}).
		Return(service.SpacePage{}, domain.Invalid("unsupported order_by secret")).Once()
	rec = doRequest(t, h, http.MethodGet, "/api/v1/spaces?order_by=secret", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCatalogHTTP_Patch(t *testing.T) {
	catalog := new(mockCatalog)
	rate := 90.0
	space := &models.Space{ID: 4, Name: "Sala A", Capacity: 10, HourlyRate: 90, Active: true}
	catalog.On("Patch", mock.Anything, int64(4), service.SpacePatch{HourlyRate: &rate}).
		Return(service.MutationResult{Space: space}, nil).Once()
	catalog.On("Patch", mock.Anything, int64(4), service.SpacePatch{}).
		Return(service.MutationResult{}, domain.Invalid("no fields to update")).Once()
	h := NewCatalogHTTPServer(openAPIConfig(), catalog, nil, testLogger()).Handler()

	rec := doRequest(t, h, http.MethodPatch, "/api/v1/spaces/4", `{"tarifaHora":90}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(90), decodeBody(t, rec)["data"].(map[string]any)["hourly_rate"])

	rec = doRequest(t, h, http.MethodPatch, "/api/v1/spaces/4", `{}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, h, http.MethodPatch, "/api/v1/spaces/4", `{"color":"azul"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	catalog.AssertExpectations(t)
}

func TestCatalogHTTP_SpaceTypes(t *testing.T) {
	catalog := new(mockCatalog)
	salon := &models.SpaceType{ID: 1, Name: "Salón", Description: "eventos"}
	catalog.On("CreateSpaceType", mock.Anything, service.SpaceTypeInput{Name: "Salón", Description: "eventos"}).Return(salon, nil).Once()
	catalog.On("ListSpaceTypes", mock.Anything).Return([]*models.SpaceType{salon}, nil).Once()
	catalog.On("GetSpaceType", mock.Anything, int64(9)).Return(nil, domain.ErrSpaceTypeNotFound).Once()
	catalog.On("UpdateSpaceType", mock.Anything, int64(1), service.SpaceTypeInput{Name: "Salón mayor"}).
		Return(&models.SpaceType{ID: 1, Name: "Salón mayor"}, nil).Once()
	catalog.On("DeleteSpaceType", mock.Anything, int64(1)).Return(service.ErrSpaceTypeInUse).Once()
	catalog.On("DeleteSpaceType", mock.Anything, int64(2)).Return(nil).Once()
	h := NewCatalogHTTPServer(openAPIConfig(), catalog, nil, testLogger()).Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/space-types", `{"nombre":"Salón","descripcion":"eventos"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Salón", decodeBody(t, rec)["data"].(map[string]any)["name"])

	rec = doRequest(t, h, http.MethodGet, "/api/v1/space-types", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/space-types/9", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "/api/v1/space-types/1", `{"nombre":"Salón mayor"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/space-types/1", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "space_type_in_use", decodeBody(t, rec)["code"])

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/space-types/2", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	catalog.AssertExpectations(t)
}

func TestCatalogHTTP_Resync(t *testing.T) {
	catalog := new(mockCatalog)
	catalog.On("Resync", mock.Anything).Return(3, nil).Once()
	h := NewCatalogHTTPServer(openAPIConfig(), catalog, nil, testLogger()).Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/spaces/resync", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["data"].(map[string]any)["published"])
	catalog.AssertExpectations(t)
}
