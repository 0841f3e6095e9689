package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Nihad1903/azmiu-guest-web/internal/models"
	"github.com/Nihad1903/azmiu-guest-web/internal/novus"
	"github.com/Nihad1903/azmiu-guest-web/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubProvisioner struct {
	provisionFn func(ctx context.Context, g novus.Guest) (*novus.Result, error)
	calls       int
}

func (s *stubProvisioner) Provision(ctx context.Context, g novus.Guest) (*novus.Result, error) {
	s.calls++
	if s.provisionFn != nil {
		return s.provisionFn(ctx, g)
	}
	return &novus.Result{UserID: "501", CardID: "900001", CredentialID: "77", CardNumber: "000042"}, nil
}

func setupServiceTest(t *testing.T, prov *stubProvisioner) (*RequestService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.GuestRequest{}))
	repo := repository.NewGuestRequestRepository(db)
	return NewRequestService(db, repo, prov, nil), db
}

func createUser(t *testing.T, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw",
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createPendingRequest(t *testing.T, svc *RequestService, managerID uuid.UUID) *models.GuestRequest {
	t.Helper()
	req, err := svc.Submit(context.Background(), managerID, SubmitRequestInput{
		GuestName:    "Ana",
		GuestSurname: "Guest",
		GuestEmail:   "ana@example.com",
	})
	require.NoError(t, err)
	return req
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestRequestService_Submit(t *testing.T) {
	t.Parallel()

	svc, _ := setupServiceTest(t, &stubProvisioner{})
	manager := createUser(t, svc.db, "manager1", models.RoleManager)

	req, err := svc.Submit(context.Background(), manager.ID, SubmitRequestInput{
		GuestName:    "  Ana ",
		GuestSurname: "Guest",
		GuestEmail:   "ana@example.com",
		GuestPhone:   "+994 50 123 45 67",
		Remark:       "visiting lab",
	})
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, "Ana", req.GuestName, "names must be trimmed")
	assert.Equal(t, manager.ID, req.ManagerID)
	assert.Nil(t, req.ReviewedByID)
	assert.Nil(t, req.NovusUserID)
}

func TestRequestService_Submit_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := setupServiceTest(t, &stubProvisioner{})
	manager := createUser(t, svc.db, "manager1", models.RoleManager)

	cases := []struct {
		name  string
		input SubmitRequestInput
	}{
		{"missing name", SubmitRequestInput{GuestSurname: "Guest", GuestEmail: "a@x.com"}},
		{"missing surname", SubmitRequestInput{GuestName: "Ana", GuestEmail: "a@x.com"}},
		{"bad email", SubmitRequestInput{GuestName: "Ana", GuestSurname: "Guest", GuestEmail: "not-an-email"}},
		{"bad phone", SubmitRequestInput{GuestName: "Ana", GuestSurname: "Guest", GuestEmail: "a@x.com", GuestPhone: "call me"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), manager.ID, tc.input)
			require.Error(t, err)
			assert.Equal(t, models.CodeValidation, appErrCode(t, err))
		})
	}
}

func TestRequestService_Approve(t *testing.T) {
	t.Parallel()

	var seen novus.Guest
	prov := &stubProvisioner{
		provisionFn: func(_ context.Context, g novus.Guest) (*novus.Result, error) {
			seen = g
			return &novus.Result{UserID: "501", CardID: "900001", CredentialID: "77", CardNumber: "000042"}, nil
		},
	}
	svc, db := setupServiceTest(t, prov)
	manager := createUser(t, db, "manager1", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)
	req := createPendingRequest(t, svc, manager.ID)

	approved, err := svc.Approve(context.Background(), req.ID, admin.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusApproved, approved.Status)
	require.NotNil(t, approved.NovusUserID)
	assert.Equal(t, "501", *approved.NovusUserID)
	require.NotNil(t, approved.NovusCardID)
	assert.Equal(t, "900001", *approved.NovusCardID)
	require.NotNil(t, approved.NovusCredentialID)
	assert.Equal(t, "77", *approved.NovusCredentialID)
	require.NotNil(t, approved.QRNumber)
	assert.Equal(t, "000042", *approved.QRNumber)
	require.NotNil(t, approved.ReviewedByID)
	assert.Equal(t, admin.ID, *approved.ReviewedByID)
	assert.NotNil(t, approved.ReviewedAt)

	assert.Equal(t, "Ana", seen.FirstName)
	assert.Equal(t, "Guest", seen.LastName)
	assert.Equal(t, "ana@example.com", seen.Email)

	var stored models.GuestRequest
	require.NoError(t, db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, models.RequestStatusApproved, stored.Status)
	require.NotNil(t, stored.QRNumber)
	assert.Equal(t, "000042", *stored.QRNumber)
}

func TestRequestService_Approve_ProvisioningFailureRollsBack(t *testing.T) {
	t.Parallel()

	prov := &stubProvisioner{
		provisionFn: func(context.Context, novus.Guest) (*novus.Result, error) {
			return nil, &novus.APIError{Method: "POST", Path: "/api/Cards", StatusCode: 500}
		},
	}
	svc, db := setupServiceTest(t, prov)
	manager := createUser(t, db, "manager1", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)
	req := createPendingRequest(t, svc, manager.ID)

	_, err := svc.Approve(context.Background(), req.ID, admin.ID)
	require.Error(t, err)
	assert.Equal(t, models.CodeProvisioningFailed, appErrCode(t, err))

	var apiErr *novus.APIError
	assert.ErrorAs(t, err, &apiErr, "the provider error must stay reachable through the wrapper")

	var stored models.GuestRequest
	require.NoError(t, db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, models.RequestStatusPending, stored.Status, "the request must stay PENDING after a failed approval")
	assert.Nil(t, stored.NovusUserID)
	assert.Nil(t, stored.NovusCardID)
	assert.Nil(t, stored.NovusCredentialID)
	assert.Nil(t, stored.QRNumber)
	assert.Nil(t, stored.ReviewedByID)
}

func TestRequestService_Approve_NotPending(t *testing.T) {
	t.Parallel()

	prov := &stubProvisioner{}
	svc, db := setupServiceTest(t, prov)
	manager := createUser(t, db, "manager1", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)
	req := createPendingRequest(t, svc, manager.ID)

	_, err := svc.Approve(context.Background(), req.ID, admin.ID)
	require.NoError(t, err)
	require.Equal(t, 1, prov.calls)

	_, err = svc.Approve(context.Background(), req.ID, admin.ID)
	require.Error(t, err)
	assert.Equal(t, models.CodeWorkflowState, appErrCode(t, err))
	assert.Equal(t, 1, prov.calls, "no provider calls may happen for a non-pending request")
}

func TestRequestService_Approve_NotFound(t *testing.T) {
	t.Parallel()

	prov := &stubProvisioner{}
	svc, db := setupServiceTest(t, prov)
	admin := createUser(t, db, "admin", models.RoleSuperuser)

	_, err := svc.Approve(context.Background(), uuid.New(), admin.ID)
	require.Error(t, err)
	assert.Equal(t, models.CodeNotFound, appErrCode(t, err))
	assert.Zero(t, prov.calls)
}

func TestRequestService_Reject(t *testing.T) {
	t.Parallel()

	prov := &stubProvisioner{}
	svc, db := setupServiceTest(t, prov)
	manager := createUser(t, db, "manager1", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)
	req := createPendingRequest(t, svc, manager.ID)

	rejected, err := svc.Reject(context.Background(), req.ID, admin.ID, " incomplete details ")
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusRejected, rejected.Status)
	assert.Equal(t, "incomplete details", rejected.RejectionReason)
	require.NotNil(t, rejected.ReviewedByID)
	assert.Equal(t, admin.ID, *rejected.ReviewedByID)
	assert.Zero(t, prov.calls, "rejection must not touch the provider")

	var stored models.GuestRequest
	require.NoError(t, db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, models.RequestStatusRejected, stored.Status)
	assert.Nil(t, stored.NovusUserID)
}

func TestRequestService_Reject_RequiresReason(t *testing.T) {
	t.Parallel()

	svc, db := setupServiceTest(t, &stubProvisioner{})
	manager := createUser(t, db, "manager1", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)
	req := createPendingRequest(t, svc, manager.ID)

	_, err := svc.Reject(context.Background(), req.ID, admin.ID, "   ")
	require.Error(t, err)
	assert.Equal(t, models.CodeValidation, appErrCode(t, err))

	got, gerr := svc.Get(context.Background(), req.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.RequestStatusPending, got.Status)
}

func TestRequestService_Reject_NotPending(t *testing.T) {
	t.Parallel()

	svc, db := setupServiceTest(t, &stubProvisioner{})
	manager := createUser(t, db, "manager1", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)
	req := createPendingRequest(t, svc, manager.ID)

	_, err := svc.Reject(context.Background(), req.ID, admin.ID, "no")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), req.ID, admin.ID)
	require.Error(t, err)
	assert.Equal(t, models.CodeWorkflowState, appErrCode(t, err))

	_, err = svc.Reject(context.Background(), req.ID, admin.ID, "again")
	require.Error(t, err)
	assert.Equal(t, models.CodeWorkflowState, appErrCode(t, err))
}

func TestRequestService_Delete(t *testing.T) {
	t.Parallel()

	svc, db := setupServiceTest(t, &stubProvisioner{})
	owner := createUser(t, db, "owner", models.RoleManager)
	other := createUser(t, db, "other", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)

	t.Run("owner deletes pending", func(t *testing.T) {
		req := createPendingRequest(t, svc, owner.ID)
		require.NoError(t, svc.Delete(context.Background(), req.ID, owner.ID))

		_, err := svc.Get(context.Background(), req.ID)
		require.Error(t, err)
		assert.Equal(t, models.CodeNotFound, appErrCode(t, err))
	})

	t.Run("non-owner denied", func(t *testing.T) {
		req := createPendingRequest(t, svc, owner.ID)
		err := svc.Delete(context.Background(), req.ID, other.ID)
		require.Error(t, err)
		assert.Equal(t, models.CodePermissionDenied, appErrCode(t, err))
	})

	t.Run("reviewed request cannot be deleted", func(t *testing.T) {
		req := createPendingRequest(t, svc, owner.ID)
		_, err := svc.Approve(context.Background(), req.ID, admin.ID)
		require.NoError(t, err)

		err = svc.Delete(context.Background(), req.ID, owner.ID)
		require.Error(t, err)
		assert.Equal(t, models.CodeWorkflowState, appErrCode(t, err))
	})
}

// staleReadRepository serves GetByID from a snapshot taken before a
// concurrent review committed, while writes hit the real database.
type staleReadRepository struct {
	repository.GuestRequestRepository
	stale *models.GuestRequest
}

func (r *staleReadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GuestRequest, error) {
	if r.stale != nil && r.stale.ID == id {
		snapshot := *r.stale
		r.stale = nil
		return &snapshot, nil
	}
	return r.GuestRequestRepository.GetByID(ctx, id)
}

// A review committing between the ownership check and the delete must
// not lose the reviewed row.
func TestRequestService_Delete_LosesRaceToReview(t *testing.T) {
	t.Parallel()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.GuestRequest{}))

	owner := createUser(t, db, "owner", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)

	repo := repository.NewGuestRequestRepository(db)
	svc := NewRequestService(db, repo, &stubProvisioner{}, nil)
	req := createPendingRequest(t, svc, owner.ID)

	// The caller's read sees the request still PENDING...
	snapshot := *req

	// ...but the approval commits first.
	_, err = svc.Approve(context.Background(), req.ID, admin.ID)
	require.NoError(t, err)

	raced := NewRequestService(db, &staleReadRepository{GuestRequestRepository: repo, stale: &snapshot}, &stubProvisioner{}, nil)
	err = raced.Delete(context.Background(), req.ID, owner.ID)
	require.Error(t, err)
	assert.Equal(t, models.CodeWorkflowState, appErrCode(t, err))

	got, gerr := svc.Get(context.Background(), req.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.RequestStatusApproved, got.Status, "the approved row must survive the stale delete")
	assert.NotNil(t, got.NovusCredentialID)
}

func TestRequestService_Lists(t *testing.T) {
	t.Parallel()

	svc, db := setupServiceTest(t, &stubProvisioner{})
	m1 := createUser(t, db, "manager1", models.RoleManager)
	m2 := createUser(t, db, "manager2", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)

	r1 := createPendingRequest(t, svc, m1.ID)
	createPendingRequest(t, svc, m1.ID)
	createPendingRequest(t, svc, m2.ID)

	_, err := svc.Approve(context.Background(), r1.ID, admin.ID)
	require.NoError(t, err)

	mine, err := svc.ListMine(context.Background(), m1.ID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := svc.ListAll(context.Background(), 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := svc.ListPending(context.Background(), 50, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	for _, r := range pending {
		assert.Equal(t, models.RequestStatusPending, r.Status)
	}
}

func TestRequestService_Approve_ProviderErrorMessageSurvives(t *testing.T) {
	t.Parallel()

	prov := &stubProvisioner{
		provisionFn: func(context.Context, novus.Guest) (*novus.Result, error) {
			return nil, &novus.AuthError{Message: "NOVUS authentication failed", Err: errors.New("bad credentials")}
		},
	}
	svc, db := setupServiceTest(t, prov)
	manager := createUser(t, db, "manager1", models.RoleManager)
	admin := createUser(t, db, "admin", models.RoleSuperuser)
	req := createPendingRequest(t, svc, manager.ID)

	_, err := svc.Approve(context.Background(), req.ID, admin.ID)
	require.Error(t, err)
	assert.True(t, novus.IsProviderError(err))
}
