package student_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"student-records/internal/auth"
	"student-records/internal/logger"
	"student-records/internal/metrics"
	"student-records/internal/student"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(repo student.Repository, pub student.Publisher) student.Service {
	return student.NewService(
		repo,
		auth.NewBcryptHasher(bcrypt.MinCost),
		auth.UsernameIssuer{},
		pub,
		metrics.NewMock(),
		logger.Discard(),
	)
}

func aliceRequest() student.RegisterRequest {
	return student.RegisterRequest{
		Username:     "alice",
		Password:     "secret1",
		Phone:        "1234567890",
		Dob:          "2000-01-01",
		StudentClass: "10A",
		Name:         "Alice",
	}
}

func strPtr(s string) *string { return &s }

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("StoresHashNotPlaintext", func(t *testing.T) {
		repo := newMemoryRepository()
		svc := newTestService(repo, nil)

		created, err := svc.Register(ctx, aliceRequest())
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), created.Dob)

		stored, ok := repo.stored(created.ID)
		require.True(t, ok)
		assert.NotEqual(t, "secret1", stored.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret1")))
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		repo := newMemoryRepository()
		svc := newTestService(repo, nil)

		_, err := svc.Register(ctx, aliceRequest())
		require.NoError(t, err)

		_, err = svc.Register(ctx, aliceRequest())
		assert.ErrorIs(t, err, student.ErrUsernameTaken)

		all, err := repo.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("ConcurrentDuplicatesResolvedByStorage", func(t *testing.T) {
		repo := newMemoryRepository()
		svc := newTestService(repo, nil)

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.Register(ctx, aliceRequest())
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, student.ErrUsernameTaken)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("ValidationShortCircuitsBeforeStorage", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.failErr = errors.New("storage must not be touched")
		svc := newTestService(repo, nil)

		cases := map[string]func(r *student.RegisterRequest){
			"username": func(r *student.RegisterRequest) { r.Username = "" },
			"phone":    func(r *student.RegisterRequest) { r.Phone = "12345" },
			"dob":      func(r *student.RegisterRequest) { r.Dob = "not-a-date" },
			"class":    func(r *student.RegisterRequest) { r.StudentClass = "" },
			"password": func(r *student.RegisterRequest) { r.Password = "" },
			"name":     func(r *student.RegisterRequest) { r.Name = "" },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				req := aliceRequest()
				mutate(&req)
				_, err := svc.Register(ctx, req)
				assert.ErrorIs(t, err, student.ErrInvalidInput)
			})
		}
	})

	t.Run("UsernameCheckedBeforePhone", func(t *testing.T) {
		svc := newTestService(newMemoryRepository(), nil)
		req := aliceRequest()
		req.Username = ""
		req.Phone = "bad"

		_, err := svc.Register(ctx, req)
		var vErr *student.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "username", vErr.Field)
	})

	t.Run("StorageFailureIsInternal", func(t *testing.T) {
		repo := newMemoryRepository()
		repo.failErr = errors.New("connection refused")
		svc := newTestService(repo, nil)

		_, err := svc.Register(ctx, aliceRequest())
		require.Error(t, err)
		assert.NotErrorIs(t, err, student.ErrInvalidInput)
		assert.NotErrorIs(t, err, student.ErrUsernameTaken)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("PublishesEvent", func(t *testing.T) {
		pub := &recordingPublisher{}
		svc := newTestService(newMemoryRepository(), pub)

		created, err := svc.Register(ctx, aliceRequest())
		require.NoError(t, err)

		require.Len(t, pub.events, 1)
		assert.Equal(t, student.EventRegistered, pub.events[0].Type)
		assert.Equal(t, created.ID, pub.events[0].StudentID)
		assert.Equal(t, fmt.Sprint(created.ID), pub.keys[0])
	})

	t.Run("PublishFailureDoesNotFailRequest", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("nats down")}
		svc := newTestService(newMemoryRepository(), pub)

		_, err := svc.Register(ctx, aliceRequest())
		assert.NoError(t, err)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc := newTestService(repo, nil)

	_, err := svc.Register(ctx, aliceRequest())
	require.NoError(t, err)

	t.Run("Success", func(t *testing.T) {
		token, err := svc.Login(ctx, student.LoginRequest{Username: "alice", Password: "secret1"})
		require.NoError(t, err)
		assert.Equal(t, "alice", token)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := svc.Login(ctx, student.LoginRequest{Username: "alice", Password: "wrong"})
		assert.ErrorIs(t, err, student.ErrInvalidCredentials)
	})

	t.Run("UnknownUserIsIndistinguishable", func(t *testing.T) {
		_, errUnknown := svc.Login(ctx, student.LoginRequest{Username: "mallory", Password: "secret1"})
		_, errWrong := svc.Login(ctx, student.LoginRequest{Username: "alice", Password: "wrong"})
		assert.ErrorIs(t, errUnknown, student.ErrInvalidCredentials)
		assert.Equal(t, errWrong.Error(), errUnknown.Error())
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		_, err := svc.Login(ctx, student.LoginRequest{})
		assert.ErrorIs(t, err, student.ErrInvalidCredentials)
	})

	t.Run("JWTIssuer", func(t *testing.T) {
		issuer := auth.NewJWTIssuer("test-secret-key-for-testing", time.Hour)
		jwtSvc := student.NewService(repo, auth.NewBcryptHasher(bcrypt.MinCost), issuer, nil, metrics.NewMock(), logger.Discard())

		token, err := jwtSvc.Login(ctx, student.LoginRequest{Username: "alice", Password: "secret1"})
		require.NoError(t, err)

		claims := &auth.Claims{}
		_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte("test-secret-key-for-testing"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Username)
	})
}

func TestService_ListStudents(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc := newTestService(repo, nil)

	students, err := svc.ListStudents(ctx)
	require.NoError(t, err)
	assert.Empty(t, students)

	for i := 0; i < 3; i++ {
		req := aliceRequest()
		req.Username = fmt.Sprintf("student%d", i)
		_, err := svc.Register(ctx, req)
		require.NoError(t, err)
	}

	students, err = svc.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, 3)
	for _, s := range students {
		assert.Empty(t, s.Password)
	}
}

func TestService_UpdateStudent(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*memoryRepository, *recordingPublisher, student.Service, *student.Student) {
		repo := newMemoryRepository()
		pub := &recordingPublisher{}
		svc := newTestService(repo, pub)
		created, err := svc.Register(ctx, aliceRequest())
		require.NoError(t, err)
		return repo, pub, svc, created
	}

	t.Run("EmptyBodyLeavesRecordUnchanged", func(t *testing.T) {
		repo, pub, svc, created := setup(t)
		before, _ := repo.stored(created.ID)

		updated, err := svc.UpdateStudent(ctx, created.ID, student.UpdateRequest{})
		require.NoError(t, err)

		after, _ := repo.stored(created.ID)
		assert.Equal(t, before, after)
		assert.Equal(t, before.Username, updated.Username)
		assert.Equal(t, before.Phone, updated.Phone)
		assert.Equal(t, []string{student.EventRegistered}, pub.types())
	})

	t.Run("OnlyPresentFieldsChange", func(t *testing.T) {
		repo, pub, svc, created := setup(t)

		updated, err := svc.UpdateStudent(ctx, created.ID, student.UpdateRequest{
			Phone: strPtr("0987654321"),
			Name:  strPtr(""),
		})
		require.NoError(t, err)
		assert.Equal(t, "0987654321", updated.Phone)
		assert.Equal(t, "Alice", updated.Name)
		assert.Equal(t, "10A", updated.StudentClass)

		stored, _ := repo.stored(created.ID)
		assert.Equal(t, "0987654321", stored.Phone)
		assert.Equal(t, []string{student.EventRegistered, student.EventUpdated}, pub.types())
	})

	t.Run("PasswordIsRehashed", func(t *testing.T) {
		repo, _, svc, created := setup(t)

		_, err := svc.UpdateStudent(ctx, created.ID, student.UpdateRequest{Password: strPtr("newsecret")})
		require.NoError(t, err)

		stored, _ := repo.stored(created.ID)
		assert.NotEqual(t, "newsecret", stored.Password)

		_, err = svc.Login(ctx, student.LoginRequest{Username: "alice", Password: "newsecret"})
		assert.NoError(t, err)
		_, err = svc.Login(ctx, student.LoginRequest{Username: "alice", Password: "secret1"})
		assert.ErrorIs(t, err, student.ErrInvalidCredentials)
	})

	t.Run("DobIsParsed", func(t *testing.T) {
		_, _, svc, created := setup(t)

		updated, err := svc.UpdateStudent(ctx, created.ID, student.UpdateRequest{Dob: strPtr("2001-02-03")})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC), updated.Dob)
	})

	t.Run("InvalidField", func(t *testing.T) {
		_, _, svc, created := setup(t)

		_, err := svc.UpdateStudent(ctx, created.ID, student.UpdateRequest{Password: strPtr("abc")})
		assert.ErrorIs(t, err, student.ErrInvalidInput)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, _, svc, _ := setup(t)

		_, err := svc.UpdateStudent(ctx, 999, student.UpdateRequest{Name: strPtr("Ghost")})
		assert.ErrorIs(t, err, student.ErrStudentNotFound)

		_, err = svc.UpdateStudent(ctx, 999, student.UpdateRequest{})
		assert.ErrorIs(t, err, student.ErrStudentNotFound)

		_, err = svc.UpdateStudent(ctx, 0, student.UpdateRequest{})
		assert.ErrorIs(t, err, student.ErrStudentNotFound)
	})

	t.Run("UsernameCollision", func(t *testing.T) {
		_, _, svc, created := setup(t)
		req := aliceRequest()
		req.Username = "bob"
		_, err := svc.Register(ctx, req)
		require.NoError(t, err)

		_, err = svc.UpdateStudent(ctx, created.ID, student.UpdateRequest{Username: strPtr("bob")})
		assert.ErrorIs(t, err, student.ErrUsernameTaken)
	})
}

func TestService_DeleteStudent(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub)

	created, err := svc.Register(ctx, aliceRequest())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteStudent(ctx, created.ID))

	_, err = repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, student.ErrStudentNotFound)

	assert.ErrorIs(t, svc.DeleteStudent(ctx, created.ID), student.ErrStudentNotFound)
	assert.ErrorIs(t, svc.DeleteStudent(ctx, 0), student.ErrStudentNotFound)
	assert.Equal(t, []string{student.EventRegistered, student.EventDeleted}, pub.types())
}
