package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/graphwarden/warden-server-go/internal/audit"
	apperrors "github.com/graphwarden/warden-server-go/internal/errors"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
	"github.com/graphwarden/warden-server-go/internal/quota"
	"github.com/graphwarden/warden-server-go/internal/remote"
	"github.com/graphwarden/warden-server-go/internal/repository"
	"github.com/graphwarden/warden-server-go/internal/tasks"
)

// Mock user repository
type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) ListRemoteEnabled(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *mockUserRepo) SaveBucket(ctx context.Context, id int64, bucket quota.TokenBucket) error {
	args := m.Called(ctx, id, bucket)
	return args.Error(0)
}

func (m *mockUserRepo) ScrubStaleCredentials(ctx context.Context, threshold time.Time) (int64, error) {
	args := m.Called(ctx, threshold)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockUserRepo) WithTx(tx *sqlx.Tx) repository.UserRepository {
	return m
}

// Mock account repository
type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockAccountRepo) FindByScreenName(ctx context.Context, screenName string) (*model.Account, error) {
	args := m.Called(ctx, screenName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockAccountRepo) GetOrCreate(ctx context.Context, id int64) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockAccountRepo) BulkGetOrCreate(ctx context.Context, ids []int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *mockAccountRepo) UpsertProfile(ctx context.Context, params model.UpsertProfileParams, now time.Time) (*model.Account, error) {
	args := m.Called(ctx, params, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockAccountRepo) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockAccountRepo) WithTx(tx *sqlx.Tx) repository.AccountRepository {
	return m
}

// Mock log message repository
type mockLogRepo struct {
	mock.Mock
}

func (m *mockLogRepo) Create(ctx context.Context, params model.CreateLogMessageParams) (*model.LogMessage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LogMessage), args.Error(1)
}

func (m *mockLogRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.LogMessage, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LogMessage), args.Error(1)
}

func (m *mockLogRepo) WithTx(tx *sqlx.Tx) repository.LogMessageRepository {
	return m
}

// Mock scheduler
type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Enqueue(ctx context.Context, task queue.Task, delay time.Duration) error {
	args := m.Called(ctx, task, delay)
	return args.Error(0)
}

// Mock task gateway
type mockTaskGateway struct {
	mock.Mock
}

func (m *mockTaskGateway) FetchProfile(ctx context.Context, p tasks.FetchProfilePayload) (*model.Account, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockTaskGateway) EnqueueSync(ctx context.Context, userID int64, listing tasks.Listing, accountID int64, fanOut *tasks.FanOutSpec) error {
	args := m.Called(ctx, userID, listing, accountID, fanOut)
	return args.Error(0)
}

type graphEnv struct {
	users    *mockUserRepo
	accounts *mockAccountRepo
	logs     *mockLogRepo
	tasks    *mockTaskGateway
	sched    *mockScheduler
	now      time.Time
	svc      *GraphService
}

func newGraphEnv() *graphEnv {
	env := &graphEnv{
		users:    new(mockUserRepo),
		accounts: new(mockAccountRepo),
		logs:     new(mockLogRepo),
		tasks:    new(mockTaskGateway),
		sched:    new(mockScheduler),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.svc = NewGraphService(
		env.users, env.accounts, env.logs,
		audit.NewRecorder(env.logs),
		env.tasks, env.sched,
		QuotaDefaults{Rate: 1, Max: 200000},
	)
	env.svc.now = func() time.Time { return env.now }
	return env
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

func testUser() *model.User {
	return &model.User{
		ID:          1,
		Username:    "tester",
		AccountID:   int64Ptr(100),
		BucketRate:  1,
		BucketMax:   200000,
		BucketValue: 200000,
		BucketTime:  quota.Seconds(time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)),
	}
}

func cachedTarget(followers int) *model.Account {
	return &model.Account{
		ID:             200,
		ScreenName:     strPtr("target"),
		FollowersCount: intPtr(followers),
	}
}

func TestGraphService_Block(t *testing.T) {
	t.Run("blocks a single cached account", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()

		env.accounts.On("FindByScreenName", ctx, "target").Return(cachedTarget(10), nil)
		env.sched.On("Enqueue", ctx, mock.MatchedBy(func(task queue.Task) bool {
			var p tasks.MutatePayload
			if task.Kind != tasks.KindCreateRelationship || json.Unmarshal(task.Payload, &p) != nil {
				return false
			}
			return p.UserID == 1 && p.Type == model.RelationshipBlocks &&
				p.Target.ID == 200 && p.Until == nil
		}), time.Duration(0)).Return(nil)

		result, err := env.svc.Block(ctx, testUser(), BlockRequest{
			ScreenName:   "@target",
			BlockAccount: true,
		})

		assert.NoError(t, err)
		assert.Equal(t, []string{"block"}, result.ActionsQueued)
		assert.Zero(t, result.TokensWithdrawn)
		env.sched.AssertExpectations(t)
	})

	t.Run("resolves uncached target remotely", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()
		until := 24 * time.Hour

		env.accounts.On("FindByScreenName", ctx, "target").Return(nil, nil)
		env.tasks.On("FetchProfile", ctx, tasks.FetchProfilePayload{
			UserID: 1,
			Target: model.TargetSelector{ScreenName: "target"},
		}).Return(cachedTarget(10), nil)
		env.sched.On("Enqueue", ctx, mock.MatchedBy(func(task queue.Task) bool {
			var p tasks.MutatePayload
			if json.Unmarshal(task.Payload, &p) != nil {
				return false
			}
			return p.Until != nil && p.Until.Equal(env.now.Add(until))
		}), time.Duration(0)).Return(nil)

		result, err := env.svc.Block(ctx, testUser(), BlockRequest{
			ScreenName:   "target",
			BlockAccount: true,
			Duration:     &until,
		})

		assert.NoError(t, err)
		assert.Equal(t, int64(200), result.Target.ID)
		env.tasks.AssertExpectations(t)
	})

	t.Run("refuses to act on own account", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()
		self := cachedTarget(10)
		self.ID = 100

		env.accounts.On("FindByScreenName", ctx, "tester").Return(self, nil)

		_, err := env.svc.Block(ctx, testUser(), BlockRequest{
			ScreenName:   "tester",
			BlockAccount: true,
		})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
		env.sched.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("enforces the follower cap for block fan-outs", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()

		env.accounts.On("FindByScreenName", ctx, "target").Return(cachedTarget(100_001), nil)

		_, err := env.svc.Block(ctx, testUser(), BlockRequest{
			ScreenName:     "target",
			BlockFollowers: true,
		})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
		env.tasks.AssertNotCalled(t, "EnqueueSync", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("enforces the tighter mute fan-out cap", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()

		env.accounts.On("FindByScreenName", ctx, "target").Return(cachedTarget(5_001), nil)

		_, err := env.svc.Block(ctx, testUser(), BlockRequest{
			ScreenName:    "target",
			MuteFollowers: true,
		})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	t.Run("fan-out withdraws quota and starts a followers walk", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()
		duration := 48 * time.Hour

		env.accounts.On("FindByScreenName", ctx, "target").Return(cachedTarget(5000), nil)
		env.users.On("SaveBucket", ctx, int64(1), mock.MatchedBy(func(b quota.TokenBucket) bool {
			return b.Value < 200000
		})).Return(nil)
		env.tasks.On("EnqueueSync", ctx, int64(1), tasks.ListingFollowers, int64(200),
			mock.MatchedBy(func(spec *tasks.FanOutSpec) bool {
				return spec != nil && spec.Type == model.RelationshipBlocks &&
					spec.Duration != nil && *spec.Duration == duration
			})).Return(nil)
		env.logs.On("Create", ctx, mock.MatchedBy(func(p model.CreateLogMessageParams) bool {
			return *p.Action == model.ActionBlockFollowers
		})).Return(&model.LogMessage{}, nil)

		result, err := env.svc.Block(ctx, testUser(), BlockRequest{
			ScreenName:     "target",
			BlockFollowers: true,
			Duration:       &duration,
		})

		assert.NoError(t, err)
		assert.Equal(t, float64(5000), result.TokensWithdrawn)
		env.users.AssertExpectations(t)
		env.tasks.AssertExpectations(t)
	})

	t.Run("unprovisioned bucket starts from the configured default", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()
		user := testUser()
		user.BucketRate = 0
		user.BucketMax = 0
		user.BucketValue = 0
		user.BucketTime = 0

		env.accounts.On("FindByScreenName", ctx, "target").Return(cachedTarget(5000), nil)
		env.users.On("SaveBucket", ctx, int64(1), mock.MatchedBy(func(b quota.TokenBucket) bool {
			return b.Rate == 1 && b.Max == 200000 && b.Value == 200000-5000
		})).Return(nil)
		env.tasks.On("EnqueueSync", ctx, int64(1), tasks.ListingFollowers, int64(200),
			mock.Anything).Return(nil)
		env.logs.On("Create", ctx, mock.Anything).Return(&model.LogMessage{}, nil)

		result, err := env.svc.Block(ctx, user, BlockRequest{
			ScreenName:     "target",
			BlockFollowers: true,
		})

		assert.NoError(t, err)
		assert.Equal(t, float64(5000), result.TokensWithdrawn)
		assert.Equal(t, float64(200000), user.BucketMax)
		env.users.AssertExpectations(t)
	})

	t.Run("insufficient quota refuses before anything is enqueued", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()
		user := testUser()
		user.BucketValue = 10
		user.BucketRate = 0
		user.BucketTime = quota.Seconds(env.now)

		env.accounts.On("FindByScreenName", ctx, "target").Return(cachedTarget(5000), nil)

		_, err := env.svc.Block(ctx, user, BlockRequest{
			ScreenName:    "target",
			MuteFollowers: true,
		})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientQuota))
		env.users.AssertNotCalled(t, "SaveBucket", mock.Anything, mock.Anything, mock.Anything)
		env.tasks.AssertNotCalled(t, "EnqueueSync", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects an empty request", func(t *testing.T) {
		env := newGraphEnv()

		_, err := env.svc.Block(context.Background(), testUser(), BlockRequest{ScreenName: "target"})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	t.Run("unknown target is not found", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()

		env.accounts.On("FindByScreenName", ctx, "ghost").Return(nil, nil)
		env.tasks.On("FetchProfile", ctx, mock.Anything).Return(nil, nil)

		_, err := env.svc.Block(ctx, testUser(), BlockRequest{
			ScreenName:   "ghost",
			BlockAccount: true,
		})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("remote rate limit during resolution surfaces as remote error", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()

		env.accounts.On("FindByScreenName", ctx, "busy").Return(nil, nil)
		env.tasks.On("FetchProfile", ctx, mock.Anything).
			Return(nil, &remote.APIError{Code: remote.CodeRateLimited, Message: "rate limit exceeded"})

		_, err := env.svc.Block(ctx, testUser(), BlockRequest{
			ScreenName:   "busy",
			BlockAccount: true,
		})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRemoteRateLimited))
		env.sched.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRemoteError(t *testing.T) {
	tests := []struct {
		name     string
		code     remote.Code
		expected apperrors.ErrorCode
	}{
		{"rate limited", remote.CodeRateLimited, apperrors.ErrCodeRemoteRateLimited},
		{"not found", remote.CodeNotFound, apperrors.ErrCodeRemoteNotFound},
		{"suspended", remote.CodeSuspended, apperrors.ErrCodeRemoteSuspended},
		{"already undone", remote.CodeAlreadyUndone, apperrors.ErrCodeRemoteAlreadyUndone},
		{"page gone", remote.CodePageGone, apperrors.ErrCodeRemoteTargetGone},
		{"unclassified", remote.CodeUnclassified, apperrors.ErrCodeRemoteUnclassified},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := remoteError(&remote.APIError{Code: tc.code, Message: "nope"})
			assert.True(t, apperrors.HasCode(err, tc.expected))
		})
	}

	t.Run("passes app errors through untouched", func(t *testing.T) {
		original := apperrors.NotFound("account")
		assert.Equal(t, error(original), remoteError(original))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, remoteError(nil))
	})
}

func TestGraphService_Sync(t *testing.T) {
	t.Run("defaults to all id listings", func(t *testing.T) {
		env := newGraphEnv()
		ctx := context.Background()

		for _, listing := range []tasks.Listing{
			tasks.ListingFollowers, tasks.ListingFriends, tasks.ListingBlocks, tasks.ListingMutes,
		} {
			env.tasks.On("EnqueueSync", ctx, int64(1), listing, int64(100), (*tasks.FanOutSpec)(nil)).Return(nil)
		}

		queued, err := env.svc.Sync(ctx, testUser(), SyncRequest{})

		assert.NoError(t, err)
		assert.Equal(t, []string{"followers", "friends", "blocks", "mutes"}, queued)
		env.tasks.AssertExpectations(t)
	})

	t.Run("rejects unknown listings", func(t *testing.T) {
		env := newGraphEnv()

		_, err := env.svc.Sync(context.Background(), testUser(), SyncRequest{Listings: []string{"likes"}})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidArgument))
	})

	t.Run("requires a linked account", func(t *testing.T) {
		env := newGraphEnv()
		user := testUser()
		user.AccountID = nil

		_, err := env.svc.Sync(context.Background(), user, SyncRequest{})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})
}

func TestGraphService_GetLog(t *testing.T) {
	env := newGraphEnv()
	ctx := context.Background()
	expected := []model.LogMessage{{ID: 1, UserID: 1, Message: "blocked spammer"}}

	env.logs.On("ListByUser", ctx, int64(1), 50, 0).Return(expected, nil)

	messages, err := env.svc.GetLog(ctx, 1, 0, -5)

	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	env.logs.AssertExpectations(t)
}
