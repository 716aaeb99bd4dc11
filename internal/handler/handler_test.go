package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"procureflow/internal/middleware"
	"procureflow/internal/model"
	"procureflow/internal/repository"
	"procureflow/internal/service"
	"procureflow/internal/testutil"
	"procureflow/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRunner struct {
	ticks []string
	err   error
}

func (f *fakeRunner) RunTick(_ context.Context, name string) error {
	f.ticks = append(f.ticks, name)
	return f.err
}

type apiFixture struct {
	db       *gorm.DB
	router   *gin.Engine
	auth     *middleware.Auth
	runner   *fakeRunner
	staff    *model.User
	manager  *model.User
	admin    *model.User
	notifier *testutil.RecordingNotifier
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	store := workflow.Store{
		Tx:        repository.NewTransactionManager(db),
		Requests:  repository.NewPurchaseRequestRepository(db),
		Approvals: repository.NewApprovalRepository(db),
		Orders:    repository.NewPurchaseOrderRepository(db),
		Users:     repository.NewUserRepository(db),
		Audit:     repository.NewAuditRepository(db),
	}
	f := &apiFixture{
		db:       db,
		auth:     middleware.NewAuth([]byte("test-secret")),
		runner:   &fakeRunner{},
		notifier: &testutil.RecordingNotifier{},
		admin:    testutil.CreateUser(t, db, "admin", model.RoleAdmin, "Administration"),
		manager:  testutil.CreateUser(t, db, "manager.it", model.RoleManager, "IT"),
		staff:    testutil.CreateUser(t, db, "alice", model.RoleStaff, "IT"),
	}
	decider := workflow.NewApprovalRouter(store, f.notifier, f.admin.ID, zap.NewNop())
	requests := service.NewPurchaseRequestService(store.Tx, store.Requests, store.Approvals, store.Users, store.Audit, decider, f.notifier)

	f.router = gin.New()
	api := f.router.Group("")
	NewPurchaseRequestHandler(requests, f.auth).RegisterRoutes(api)
	NewStatisticsHandler(service.NewStatisticsService(repository.NewStatisticsRepository(db), store.Orders), f.auth).RegisterRoutes(api)
	NewAuditHandler(service.NewAuditService(store.Audit), f.auth).RegisterRoutes(api)
	NewWorkflowHandler(f.runner, f.auth).RegisterRoutes(api)
	NewUserHandler(service.NewUserService(store.Users, f.auth, time.Hour), f.auth).RegisterRoutes(api)
	return f
}

func (f *apiFixture) do(t *testing.T, user *model.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := f.auth.IssueToken(user.ID, user.Role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestCreateAndGetPurchaseRequest(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.staff, http.MethodPost, "/api/purchase-requests", gin.H{
		"title":        "Monitors",
		"department":   "IT",
		"priority":     "HIGH",
		"total_amount": "2500.00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created model.PurchaseRequest
	decode(t, w, &created)
	assert.Equal(t, model.RequestPending, created.Status)
	assert.Equal(t, f.staff.ID, created.RequestedBy)

	w = f.do(t, f.staff, http.MethodGet, "/api/purchase-requests/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.PurchaseRequest
	decode(t, w, &got)
	assert.Equal(t, created.RequestNumber, got.RequestNumber)
	require.NotNil(t, got.Requester)
	assert.Equal(t, "alice", got.Requester.Username)
}

func TestCreatePurchaseRequest_Validation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.staff, http.MethodPost, "/api/purchase-requests", gin.H{
		"title":      "Monitors",
		"department": "IT",
		"priority":   "SOMEDAY",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, f.staff, http.MethodPost, "/api/purchase-requests", gin.H{
		"title":        "Refund",
		"department":   "IT",
		"priority":     "LOW",
		"total_amount": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorization(t *testing.T) {
	f := newAPIFixture(t)
	req := testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{Status: model.RequestUnderReview})

	w := f.do(t, nil, http.MethodGet, "/api/purchase-requests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, f.staff, http.MethodPut, "/api/purchase-requests/"+req.ID.String()+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, f.manager, http.MethodPost, "/api/workflow/scans/statistics", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, f.staff, http.MethodGet, "/api/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	bad := httptest.NewRequest(http.MethodGet, "/api/purchase-requests", nil)
	bad.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApproveRejectFlow(t *testing.T) {
	f := newAPIFixture(t)
	req := testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{Status: model.RequestUnderReview})
	path := "/api/purchase-requests/" + req.ID.String()

	w := f.do(t, f.manager, http.MethodPut, path+"/approve", gin.H{"comments": "go ahead"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approval model.Approval
	decode(t, w, &approval)
	assert.Equal(t, model.ApprovalApproved, approval.Status)
	assert.Equal(t, "go ahead", approval.Comments)

	w = f.do(t, f.manager, http.MethodPut, path+"/reject", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, f.staff, http.MethodGet, path+"/approvals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var approvals []model.Approval
	decode(t, w, &approvals)
	assert.Len(t, approvals, 1)
}

func TestCancelAndComplete(t *testing.T) {
	f := newAPIFixture(t)
	pending := testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{})
	inProgress := testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{Status: model.RequestInProgress})

	w := f.do(t, f.staff, http.MethodPut, "/api/purchase-requests/"+pending.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, f.staff, http.MethodPut, "/api/purchase-requests/"+pending.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, f.manager, http.MethodPut, "/api/purchase-requests/"+inProgress.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var done model.PurchaseRequest
	decode(t, w, &done)
	assert.Equal(t, model.RequestCompleted, done.Status)
}

func TestNotFoundAndBadID(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.staff, http.MethodGet, "/api/purchase-requests/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, f.staff, http.MethodGet, "/api/purchase-requests/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPurchaseRequests(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 3; i++ {
		testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{})
	}
	testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{Status: model.RequestApproved})

	w := f.do(t, f.staff, http.MethodGet, "/api/purchase-requests?status=PENDING&page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Items []model.PurchaseRequest `json:"items"`
		Total int64                   `json:"total"`
		Page  int                     `json:"page"`
		Limit int                     `json:"limit"`
	}
	decode(t, w, &page)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Limit)

	w = f.do(t, f.staff, http.MethodGet, "/api/purchase-requests?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPurchaseRequests_UserFilters(t *testing.T) {
	f := newAPIFixture(t)
	review := testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{Status: model.RequestUnderReview})
	testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{})
	testutil.CreateRequest(t, f.db, f.manager, testutil.RequestFixture{})
	require.Equal(t, http.StatusOK, f.do(t, f.admin, http.MethodPut, "/api/purchase-requests/"+review.ID.String()+"/assign",
		gin.H{"reviewer_id": f.manager.ID}).Code)

	type page struct {
		Items []model.PurchaseRequest `json:"items"`
		Total int64                   `json:"total"`
	}

	w := f.do(t, f.manager, http.MethodGet, "/api/purchase-requests?assigned_to=me", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var assigned page
	decode(t, w, &assigned)
	assert.EqualValues(t, 1, assigned.Total)
	require.Len(t, assigned.Items, 1)
	assert.Equal(t, review.ID, assigned.Items[0].ID)

	w = f.do(t, f.staff, http.MethodGet, "/api/purchase-requests?requested_by=me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine page
	decode(t, w, &mine)
	assert.EqualValues(t, 2, mine.Total)

	w = f.do(t, f.admin, http.MethodGet, "/api/purchase-requests?requested_by="+f.manager.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var theirs page
	decode(t, w, &theirs)
	assert.EqualValues(t, 1, theirs.Total)

	w = f.do(t, f.staff, http.MethodGet, "/api/purchase-requests?assigned_to=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignReviewer(t *testing.T) {
	f := newAPIFixture(t)
	review := testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{Department: "IT", Status: model.RequestUnderReview})
	pending := testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{})
	path := "/api/purchase-requests/" + review.ID.String() + "/assign"

	w := f.do(t, f.staff, http.MethodPut, path, gin.H{"reviewer_id": f.manager.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, f.admin, http.MethodPut, path, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, f.admin, http.MethodPut, path, gin.H{"reviewer_id": f.staff.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, f.admin, http.MethodPut, "/api/purchase-requests/"+pending.ID.String()+"/assign", gin.H{"reviewer_id": f.manager.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, f.admin, http.MethodPut, path, gin.H{"reviewer_id": f.manager.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got model.PurchaseRequest
	decode(t, w, &got)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, f.manager.ID, *got.AssignedTo)
	require.NotNil(t, got.Assignee)
	assert.Equal(t, "manager.it", got.Assignee.Username)
	assert.Equal(t, 1, f.notifier.Count(testutil.EventPersonal))
}

func TestStatisticsAndAudit(t *testing.T) {
	f := newAPIFixture(t)
	testutil.CreateRequest(t, f.db, f.staff, testutil.RequestFixture{Amount: "10"})

	w := f.do(t, f.staff, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.Statistics
	decode(t, w, &stats)
	assert.EqualValues(t, 1, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.PendingRequests)

	w = f.do(t, f.admin, http.MethodGet, "/api/audit-logs?limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRunScan(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.admin, http.MethodPost, "/api/workflow/scans/auto-approval", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{workflow.TickAutoApproval}, f.runner.ticks)

	w = f.do(t, f.admin, http.MethodPost, "/api/workflow/scans/nightly", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.runner.err = errors.New("db down")
	w = f.do(t, f.admin, http.MethodPost, "/api/workflow/scans/statistics", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode(t, w, nil)
	assert.Equal(t, "error", env.Status)
}

func TestUserManagementAndLogin(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.admin, http.MethodPost, "/api/users", gin.H{
		"username":   "manager.hr",
		"email":      "manager.hr@example.com",
		"password":   "hunter22",
		"role":       "manager",
		"department": "HR",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created service.UserResponse
	decode(t, w, &created)
	assert.Equal(t, "HR", created.Department)

	w = f.do(t, nil, http.MethodPost, "/api/login", gin.H{"username": "manager.hr", "password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var token service.TokenResponse
	decode(t, w, &token)
	require.NotEmpty(t, token.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token.Token)
	me := httptest.NewRecorder()
	f.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	var self service.UserResponse
	decode(t, me, &self)
	assert.Equal(t, created.ID, self.ID)

	w = f.do(t, nil, http.MethodPost, "/api/login", gin.H{"username": "manager.hr", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, f.admin, http.MethodPut, "/api/users/"+created.ID.String()+"/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, nil, http.MethodPost, "/api/login", gin.H{"username": "manager.hr", "password": "hunter22"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, f.admin, http.MethodGet, "/api/users?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &page)
	assert.EqualValues(t, 4, page.Total)

	assert.Equal(t, http.StatusForbidden, f.do(t, f.manager, http.MethodGet, "/api/users", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, f.admin, http.MethodPost, "/api/users", gin.H{"username": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, f.admin, http.MethodGet, "/api/users/"+uuid.NewString(), nil).Code)
}
