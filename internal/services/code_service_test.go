package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-api/internal/apperrors"
	"referral-api/internal/cache"
	"referral-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-memory database keeps pooled connections on the same
	// DB while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Code{},
		&models.Refer{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func setupTestCache(t *testing.T) (*cache.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	return cache.NewClientFromRedis(rdb, zap.NewNop()), mr
}

func newTestCodeService(t *testing.T) (*CodeService, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()

	db := setupTestDB(t)
	cacheClient, mr := setupTestCache(t)

	return NewCodeService(db, cacheClient, zap.NewNop()), db, mr
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return &user
}

func TestCreateCodeSingleActivePerUser(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	code, err := service.Create(ctx, alice.ID, "ALICE1", 7)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if code.Code != "ALICE1" {
		t.Errorf("expected code ALICE1, got %s", code.Code)
	}

	// Second attempt for the same user must fail validation.
	if _, err := service.Create(ctx, alice.ID, "ALICE2", 7); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error on second create, got %v", err)
	}

	// A different user is unaffected.
	if _, err := service.Create(ctx, bob.ID, "BOB1", 7); err != nil {
		t.Errorf("create for another user failed: %v", err)
	}
}

func TestCreateCodeRacesClosedByUniqueIndex(t *testing.T) {
	service, db, mr := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	if _, err := service.Create(ctx, alice.ID, "ALICE1", 7); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Simulate a concurrent request that passed the advisory pre-checks:
	// wipe the cache so only the store-level unique index can stop it.
	mr.FlushAll()

	var existing models.Code
	if err := db.Where("user_id = ?", alice.ID).First(&existing).Error; err != nil {
		t.Fatalf("expected code in store: %v", err)
	}

	dup := models.Code{
		UserID:    alice.ID,
		Code:      "ALICE2",
		LiveDays:  7,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := db.Create(&dup).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("expected duplicated key error from store, got %v", err)
	}
}

func TestCreateCodeWritesBothCacheEntries(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	code, err := service.Create(ctx, alice.ID, "ALICE1", 7)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	record, err := service.cache.GetCode(ctx, code.Code)
	if err != nil || record == nil {
		t.Fatalf("expected cached record, got record=%v err=%v", record, err)
	}
	if record.UserID != alice.ID || record.IsExpired {
		t.Errorf("unexpected cached record: %+v", record)
	}

	pointer, err := service.cache.GetUserCode(ctx, alice.ID)
	if err != nil || pointer != "ALICE1" {
		t.Errorf("expected usercode pointer ALICE1, got %q err=%v", pointer, err)
	}
}

func TestCreateCodeGeneratesWhenEmpty(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	code, err := service.Create(ctx, alice.ID, "", 7)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(code.Code) != 8 {
		t.Errorf("expected generated 8-character code, got %q", code.Code)
	}
}

func TestCodeExpiryMath(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code := models.Code{
		LiveDays:  7,
		CreatedAt: created,
		ExpiresAt: created.Add(7 * 24 * time.Hour),
	}

	if code.IsExpiredAt(created.Add(6 * 24 * time.Hour)) {
		t.Error("code should not be expired at D+6d")
	}
	if !code.IsExpiredAt(created.Add(8 * 24 * time.Hour)) {
		t.Error("code should be expired at D+8d")
	}
	if code.IsExpiredAt(code.ExpiresAt) {
		t.Error("code should not be expired exactly at expires_at")
	}
}

func TestUpdateRecomputesExpiryFromCreation(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	code, err := service.Create(ctx, alice.ID, "ALICE1", 7)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := service.Update(ctx, code.ID, alice.ID, false, 2)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	want := code.CreatedAt.Add(2 * 24 * time.Hour)
	if !updated.ExpiresAt.Equal(want) {
		t.Errorf("expected expires_at %v, got %v", want, updated.ExpiresAt)
	}

	var stored models.Code
	if err := db.First(&stored, code.ID).Error; err != nil {
		t.Fatalf("failed to reload code: %v", err)
	}
	if stored.LiveDays != 2 {
		t.Errorf("expected live_days 2, got %d", stored.LiveDays)
	}
}

func TestUpdateExpiredCodeClearsCache(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	code, err := service.Create(ctx, alice.ID, "ALICE1", 7)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Back-date the code so created_at + new_live_days lands in the past.
	backdated := time.Now().Add(-10 * 24 * time.Hour)
	if err := db.Model(&models.Code{}).Where("id = ?", code.ID).
		Update("created_at", backdated).Error; err != nil {
		t.Fatalf("failed to backdate code: %v", err)
	}

	if _, err := service.Update(ctx, code.ID, alice.ID, false, 1); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	record, _ := service.cache.GetCode(ctx, "ALICE1")
	if record != nil {
		t.Errorf("expected code cache entry cleared, got %+v", record)
	}
	pointer, _ := service.cache.GetUserCode(ctx, alice.ID)
	if pointer != "" {
		t.Errorf("expected usercode cache entry cleared, got %q", pointer)
	}
}

func TestDeleteClearsCacheThenStore(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	code, err := service.Create(ctx, alice.ID, "ALICE1", 7)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := service.Delete(ctx, code.ID, alice.ID, false); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	record, _ := service.cache.GetCode(ctx, "ALICE1")
	if record != nil {
		t.Errorf("expected code cache entry gone, got %+v", record)
	}
	pointer, _ := service.cache.GetUserCode(ctx, alice.ID)
	if pointer != "" {
		t.Errorf("expected usercode cache entry gone, got %q", pointer)
	}

	// Subsequent lookups fall through to the store and miss there too.
	if _, err := service.GetOwn(ctx, alice.ID); !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}
	if _, err := service.ResolveForReferral(ctx, "ALICE1"); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error after delete, got %v", err)
	}
}

func TestMutationRequiresOwnerOrSuperuser(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	code, err := service.Create(ctx, alice.ID, "ALICE1", 7)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := service.Update(ctx, code.ID, bob.ID, false, 3); err != apperrors.ErrForbidden {
		t.Errorf("expected forbidden for non-owner, got %v", err)
	}
	if err := service.Delete(ctx, code.ID, bob.ID, false); err != apperrors.ErrForbidden {
		t.Errorf("expected forbidden for non-owner delete, got %v", err)
	}

	// Superuser override.
	if _, err := service.Update(ctx, code.ID, bob.ID, true, 3); err != nil {
		t.Errorf("superuser update failed: %v", err)
	}
}

func TestResolveForReferralPopulatesSnapshot(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	now := time.Now()
	code := models.Code{
		UserID:    alice.ID,
		Code:      "ALICE1",
		LiveDays:  7,
		CreatedAt: now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}
	if err := db.Create(&code).Error; err != nil {
		t.Fatalf("failed to seed code: %v", err)
	}

	record, err := service.ResolveForReferral(ctx, "ALICE1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if record.UserID != alice.ID || record.IsExpired {
		t.Errorf("unexpected record: %+v", record)
	}

	cached, _ := service.cache.GetCode(ctx, "ALICE1")
	if cached == nil || cached.IsExpired {
		t.Errorf("expected fresh snapshot cached, got %+v", cached)
	}
}

func TestResolveForReferralReusesStaleSnapshot(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	now := time.Now()
	code := models.Code{
		UserID:    alice.ID,
		Code:      "ALICE1",
		LiveDays:  7,
		CreatedAt: now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}
	if err := db.Create(&code).Error; err != nil {
		t.Fatalf("failed to seed code: %v", err)
	}

	if _, err := service.ResolveForReferral(ctx, "ALICE1"); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	// Expire the code in the store. The cached snapshot still says
	// not-expired, and lookups inside the staleness window trust it.
	if err := db.Model(&models.Code{}).Where("id = ?", code.ID).
		Update("expires_at", now.Add(-time.Hour)).Error; err != nil {
		t.Fatalf("failed to expire code: %v", err)
	}

	if _, err := service.ResolveForReferral(ctx, "ALICE1"); err != nil {
		t.Errorf("expected stale snapshot to be reused, got %v", err)
	}
}

func TestResolveForReferralExpiredAndUnknown(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	now := time.Now()
	code := models.Code{
		UserID:    alice.ID,
		Code:      "OLD1",
		LiveDays:  1,
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}
	if err := db.Create(&code).Error; err != nil {
		t.Fatalf("failed to seed code: %v", err)
	}

	if _, err := service.ResolveForReferral(ctx, "OLD1"); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for expired code, got %v", err)
	}
	if _, err := service.ResolveForReferral(ctx, "NOPE"); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for unknown code, got %v", err)
	}
}

func TestResolveOwnCodeStringFallsBackToStore(t *testing.T) {
	service, db, mr := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	if _, err := service.Create(ctx, alice.ID, "ALICE1", 7); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Drop the cache; the resend path must repopulate from the store.
	mr.FlushAll()

	code, err := service.ResolveOwnCodeString(ctx, alice.ID)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if code != "ALICE1" {
		t.Errorf("expected ALICE1, got %q", code)
	}

	pointer, _ := service.cache.GetUserCode(ctx, alice.ID)
	if pointer != "ALICE1" {
		t.Errorf("expected repopulated pointer, got %q", pointer)
	}
}

func TestResolveOwnCodeStringNotFound(t *testing.T) {
	service, db, _ := newTestCodeService(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")

	if _, err := service.ResolveOwnCodeString(ctx, alice.ID); !apperrors.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}
