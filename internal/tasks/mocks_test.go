package tasks

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/graphwarden/warden-server-go/internal/audit"
	"github.com/graphwarden/warden-server-go/internal/database"
	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/queue"
	"github.com/graphwarden/warden-server-go/internal/quota"
	"github.com/graphwarden/warden-server-go/internal/remote"
	"github.com/graphwarden/warden-server-go/internal/repository"
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

// Mock relationship repository
type mockRelationshipRepo struct {
	mock.Mock
}

func (m *mockRelationshipRepo) Find(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (*model.Relationship, error) {
	args := m.Called(ctx, subjectID, typ, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Relationship), args.Error(1)
}

func (m *mockRelationshipRepo) Exists(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (bool, error) {
	args := m.Called(ctx, subjectID, typ, target)
	return args.Bool(0), args.Error(1)
}

func (m *mockRelationshipRepo) AddRelationships(ctx context.Context, typ model.RelationshipType, subjectIDs, objectIDs []int64, updated time.Time, until *time.Time) error {
	args := m.Called(ctx, typ, subjectIDs, objectIDs, updated, until)
	return args.Error(0)
}

func (m *mockRelationshipRepo) SetUntil(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector, until *time.Time) (bool, error) {
	args := m.Called(ctx, subjectID, typ, target, until)
	return args.Bool(0), args.Error(1)
}

func (m *mockRelationshipRepo) Remove(ctx context.Context, filter model.RelationshipFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRelationshipRepo) Delete(ctx context.Context, subjectID int64, typ model.RelationshipType, target model.TargetSelector) (int64, error) {
	args := m.Called(ctx, subjectID, typ, target)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRelationshipRepo) FindExpired(ctx context.Context, subjectID int64, now time.Time) ([]model.Relationship, error) {
	args := m.Called(ctx, subjectID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Relationship), args.Error(1)
}

func (m *mockRelationshipRepo) WithTx(tx *sqlx.Tx) repository.RelationshipRepository {
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

// Mock marker store
type mockMarkerStore struct {
	mock.Mock
}

func (m *mockMarkerStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

func (m *mockMarkerStore) Set(ctx context.Context, key string, until time.Time, ttl time.Duration) error {
	args := m.Called(ctx, key, until, ttl)
	return args.Error(0)
}

// Mock scheduler
type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Enqueue(ctx context.Context, task queue.Task, delay time.Duration) error {
	args := m.Called(ctx, task, delay)
	return args.Error(0)
}

// Mock remote client
type mockRemoteClient struct {
	mock.Mock
}

func (m *mockRemoteClient) GetUser(ctx context.Context, target remote.Target) (*remote.User, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.User), args.Error(1)
}

func (m *mockRemoteClient) CreateBlock(ctx context.Context, target remote.Target) (*remote.User, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.User), args.Error(1)
}

func (m *mockRemoteClient) DestroyBlock(ctx context.Context, target remote.Target) (*remote.User, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.User), args.Error(1)
}

func (m *mockRemoteClient) CreateMute(ctx context.Context, target remote.Target) (*remote.User, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.User), args.Error(1)
}

func (m *mockRemoteClient) DestroyMute(ctx context.Context, target remote.Target) (*remote.User, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.User), args.Error(1)
}

func (m *mockRemoteClient) FollowerIDs(ctx context.Context, userID int64, cursor int64) (remote.Page, error) {
	args := m.Called(ctx, userID, cursor)
	return args.Get(0).(remote.Page), args.Error(1)
}

func (m *mockRemoteClient) FriendIDs(ctx context.Context, userID int64, cursor int64) (remote.Page, error) {
	args := m.Called(ctx, userID, cursor)
	return args.Get(0).(remote.Page), args.Error(1)
}

func (m *mockRemoteClient) Friends(ctx context.Context, userID int64, cursor int64) (remote.Page, error) {
	args := m.Called(ctx, userID, cursor)
	return args.Get(0).(remote.Page), args.Error(1)
}

func (m *mockRemoteClient) BlockIDs(ctx context.Context, cursor int64) (remote.Page, error) {
	args := m.Called(ctx, cursor)
	return args.Get(0).(remote.Page), args.Error(1)
}

func (m *mockRemoteClient) MuteIDs(ctx context.Context, cursor int64) (remote.Page, error) {
	args := m.Called(ctx, cursor)
	return args.Get(0).(remote.Page), args.Error(1)
}

// stubFactory hands back the same client for any credentials.
type stubFactory struct {
	client remote.Client
}

func (f *stubFactory) ClientFor(creds remote.Credentials) remote.Client {
	return f.client
}

// stubTransactor runs the function directly, no real transaction. The
// repository mocks return themselves from WithTx so a nil tx is fine.
type stubTransactor struct{}

func (stubTransactor) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

// testEnv bundles a service wired to mocks with a frozen clock.
type testEnv struct {
	users    *mockUserRepo
	accounts *mockAccountRepo
	rels     *mockRelationshipRepo
	logs     *mockLogRepo
	markers  *mockMarkerStore
	sched    *mockScheduler
	client   *mockRemoteClient
	now      time.Time
	svc      *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:    new(mockUserRepo),
		accounts: new(mockAccountRepo),
		rels:     new(mockRelationshipRepo),
		logs:     new(mockLogRepo),
		markers:  new(mockMarkerStore),
		sched:    new(mockScheduler),
		client:   new(mockRemoteClient),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.svc = NewService(
		stubTransactor{},
		env.users,
		env.accounts,
		env.rels,
		audit.NewRecorder(env.logs),
		env.markers,
		&stubFactory{client: env.client},
		env.sched,
	)
	env.svc.now = func() time.Time { return env.now }
	return env
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func enabledUser(id int64, accountID int64) *model.User {
	return &model.User{
		ID:            id,
		Username:      "tester",
		AccountID:     int64Ptr(accountID),
		RemoteEnabled: true,
		AccessToken:   strPtr("token"),
		AccessSecret:  strPtr("secret"),
	}
}
